package engine

import (
	"fmt"
	"reflect"
	"strings"
)

// Materializer turns raw attribute records into marker instances using only
// declarative metadata: the marker type's constructor table and settable
// property table.
type Materializer struct {
	catalog Catalog
}

// NewMaterializer creates a materializer backed by catalog.
func NewMaterializer(catalog Catalog) *Materializer {
	return &Materializer{catalog: catalog}
}

// Materialize builds the marker described by rec. owner is the element the
// record was declared on and decides whether code owned by its module may run.
//
// Failures caused by a missing, mismatched or unloadable type are returned as
// MarkerConstructionFailed errors and mean "skip this record". Any other error
// is returned as is and must not be masked by the caller.
func (m *Materializer) Materialize(rec AttributeRecord, owner Element, mode Mode) (Instance, error) {
	markerType, err := m.catalog.LookupMarker(rec.MarkerType)
	if err != nil {
		return Instance{}, skipped(rec, owner, "marker type unresolved", err)
	}

	if mode == ModeInspectionOnly && markerType.Assembly == owner.Assembly {
		return Instance{}, skipped(rec, owner, "marker type is owned by an inspection-only module",
			fmt.Errorf("%w: %s", ErrFileLoad, owner.Assembly))
	}

	params := make([]string, len(rec.Positional))
	args := make([]interface{}, len(rec.Positional))
	for i, arg := range rec.Positional {
		value, err := m.argument(arg)
		if err != nil {
			return Instance{}, skipped(rec, owner, fmt.Sprintf("positional argument %d", i), err)
		}
		params[i] = arg.Type
		args[i] = value
	}

	ctor, ok := markerType.Constructor(params)
	if !ok {
		return Instance{}, skipped(rec, owner, "no matching constructor",
			fmt.Errorf("%w: %s(%s)", ErrBadImageFormat, markerType.Name, strings.Join(params, ", ")))
	}

	value, err := ctor.New(args)
	if err != nil {
		if IsRecoverable(err) {
			return Instance{}, skipped(rec, owner, "constructor failed", err)
		}
		return Instance{}, fmt.Errorf("constructing %s on %s: %w", markerType.Name, owner, err)
	}

	for _, named := range rec.Named {
		prop, ok := markerType.Property(named.Name)
		if !ok {
			return Instance{}, skipped(rec, owner, "no settable property",
				fmt.Errorf("%w: %s.%s", ErrBadImageFormat, markerType.Name, named.Name))
		}
		if prop.Type != "" && prop.Type != RootTypeName && prop.Type != named.Value.Type {
			return Instance{}, skipped(rec, owner, "property type mismatch",
				fmt.Errorf("%w: %s.%s is %s, got %s", ErrBadImageFormat, markerType.Name, named.Name, prop.Type, named.Value.Type))
		}
		v, err := m.argument(named.Value)
		if err != nil {
			return Instance{}, skipped(rec, owner, "named argument "+named.Name, err)
		}
		if err := prop.Set(value, v); err != nil {
			if IsRecoverable(err) {
				return Instance{}, skipped(rec, owner, "property assignment "+named.Name, err)
			}
			return Instance{}, fmt.Errorf("assigning %s.%s on %s: %w", markerType.Name, named.Name, owner, err)
		}
	}

	return Instance{Type: markerType, Value: value}, nil
}

// argument converts one typed value to its declared Go type. Arrays of typed
// sub-values are rebuilt as a concrete slice of the element type.
func (m *Materializer) argument(tv TypedValue) (interface{}, error) {
	if elemName, ok := strings.CutSuffix(tv.Type, "[]"); ok {
		elemType, err := m.catalog.ArgumentType(elemName)
		if err != nil {
			return nil, err
		}
		sliceType := reflect.SliceOf(elemType.Go)
		if !tv.IsArray() {
			if tv.Value == nil {
				return reflect.Zero(sliceType).Interface(), nil
			}
			return convert(tv.Value, &ArgType{Name: tv.Type, Go: sliceType})
		}
		out := reflect.MakeSlice(sliceType, 0, len(tv.Elements))
		for _, item := range tv.Elements {
			v, err := convert(item.Value, elemType)
			if err != nil {
				return nil, err
			}
			out = reflect.Append(out, reflect.ValueOf(v))
		}
		return out.Interface(), nil
	}

	argType, err := m.catalog.ArgumentType(tv.Type)
	if err != nil {
		return nil, err
	}
	return convert(tv.Value, argType)
}

// convert coerces a raw metadata value into t.
func convert(raw interface{}, t *ArgType) (interface{}, error) {
	if t.Parse != nil {
		v, err := t.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadImageFormat, t.Name, err)
		}
		return v, nil
	}

	if raw == nil {
		return reflect.Zero(t.Go).Interface(), nil
	}

	rv := reflect.ValueOf(raw)
	if rv.Type() == t.Go {
		return raw, nil
	}
	if t.Go.Kind() == reflect.Interface && rv.Type().Implements(t.Go) {
		return raw, nil
	}
	if compatibleKinds(rv.Kind(), t.Go.Kind()) && rv.Type().ConvertibleTo(t.Go) {
		return rv.Convert(t.Go).Interface(), nil
	}
	return nil, fmt.Errorf("%w: cannot use %T as %s", ErrBadImageFormat, raw, t.Name)
}

func compatibleKinds(from, to reflect.Kind) bool {
	switch {
	case isNumeric(from) && isNumeric(to):
		return true
	case from == to:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func skipped(rec AttributeRecord, owner Element, message string, err error) error {
	return NewConstructionError(message, err).
		WithElement(owner.String()).
		WithMarker(rec.MarkerType)
}
