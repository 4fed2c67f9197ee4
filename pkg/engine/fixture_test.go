package engine

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"
)

const (
	frameworkAsm = "Test.Framework"
	runtimeAsm   = "System.Runtime"
	testsAsm     = "Contoso.Tests"
)

type label struct {
	Text string
}

type tag struct {
	Name   string
	Weight int
}

type names struct {
	Items []string
}

// world is an in-memory Catalog serving both program elements and marker types.
type world struct {
	bases       map[Element]Element
	attrs       map[Element][]AttributeRecord
	modes       map[string]Mode
	unavailable map[string]bool
	markers     map[string]*MarkerType
	argTypes    map[string]*ArgType
	baseCalls   atomic.Int64
}

func newWorld() *world {
	w := &world{
		bases:       make(map[Element]Element),
		attrs:       make(map[Element][]AttributeRecord),
		modes:       make(map[string]Mode),
		unavailable: make(map[string]bool),
		markers:     make(map[string]*MarkerType),
		argTypes: map[string]*ArgType{
			"System.String":  {Name: "System.String", Go: reflect.TypeOf("")},
			"System.Int32":   {Name: "System.Int32", Go: reflect.TypeOf(0)},
			"System.Boolean": {Name: "System.Boolean", Go: reflect.TypeOf(false)},
		},
	}

	w.addMarker(&MarkerType{
		Name:     UsageTypeName,
		Assembly: runtimeAsm,
		Constructors: []Constructor{{
			Params: []string{"System.Int32"},
			New: func(args []interface{}) (interface{}, error) {
				return &Usage{ValidOn: args[0].(int), Inherited: true}, nil
			},
		}},
		Properties: map[string]Property{
			"AllowMultiple": {Type: "System.Boolean", Set: func(target, value interface{}) error {
				target.(*Usage).AllowMultiple = value.(bool)
				return nil
			}},
			"Inherited": {Type: "System.Boolean", Set: func(target, value interface{}) error {
				target.(*Usage).Inherited = value.(bool)
				return nil
			}},
		},
		Declared: []AttributeRecord{usageRecord(false)},
	})

	w.addMarker(&MarkerType{
		Name:     "Test.LabelAttribute",
		Assembly: frameworkAsm,
		Constructors: []Constructor{{
			Params: []string{"System.String"},
			New: func(args []interface{}) (interface{}, error) {
				return &label{Text: args[0].(string)}, nil
			},
		}},
		Declared: []AttributeRecord{usageRecord(false)},
	})

	tagType := &MarkerType{
		Name:     "Test.TagAttribute",
		Assembly: frameworkAsm,
		Constructors: []Constructor{{
			Params: []string{"System.String"},
			New: func(args []interface{}) (interface{}, error) {
				return &tag{Name: args[0].(string)}, nil
			},
		}},
		Properties: map[string]Property{
			"Weight": {Type: "System.Int32", Set: func(target, value interface{}) error {
				target.(*tag).Weight = value.(int)
				return nil
			}},
		},
		Declared: []AttributeRecord{usageRecord(true)},
	}
	w.addMarker(tagType)

	w.addMarker(&MarkerType{
		Name:         "Test.SpecialTagAttribute",
		Assembly:     frameworkAsm,
		Base:         tagType.QualifiedName(),
		Constructors: tagType.Constructors,
		Properties:   tagType.Properties,
	})

	w.addMarker(&MarkerType{
		Name:     "Test.NamesAttribute",
		Assembly: frameworkAsm,
		Constructors: []Constructor{{
			Params: []string{"System.String[]"},
			New: func(args []interface{}) (interface{}, error) {
				return &names{Items: args[0].([]string)}, nil
			},
		}},
		Declared: []AttributeRecord{usageRecord(false)},
	})

	w.addMarker(&MarkerType{
		Name:     "Test.LooseAttribute",
		Assembly: frameworkAsm,
		Constructors: []Constructor{{
			New: func([]interface{}) (interface{}, error) { return &label{Text: "loose"}, nil },
		}},
	})

	w.addMarker(&MarkerType{
		Name:     "Test.BrokenAttribute",
		Assembly: frameworkAsm,
		Constructors: []Constructor{{
			New: func([]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("%w: dependency missing", ErrTypeLoad)
			},
		}},
	})

	w.addMarker(&MarkerType{
		Name:     "Test.FailingAttribute",
		Assembly: frameworkAsm,
		Constructors: []Constructor{{
			New: func([]interface{}) (interface{}, error) {
				return nil, errFailing
			},
		}},
	})

	w.addMarker(&MarkerType{
		Name:     "Contoso.Tests.LocalAttribute",
		Assembly: testsAsm,
		Constructors: []Constructor{{
			New: func([]interface{}) (interface{}, error) { return &label{Text: "local"}, nil },
		}},
	})

	return w
}

var errFailing = errors.New("constructor failed")

func (w *world) addMarker(t *MarkerType) {
	w.markers[t.QualifiedName()] = t
	w.markers[t.Name] = t
	w.attrs[t.Element()] = t.Declared
	if t.Base != "" {
		w.bases[t.Element()] = w.markers[t.Base].Element()
	}
}

// chain declares types named prefix0..prefix(n-1) where each derives from the
// previous one, and returns the most-derived.
func (w *world) chain(prefix string, n int) Element {
	var last Element
	for i := 0; i < n; i++ {
		e := TypeElement(testsAsm, fmt.Sprintf("%s%d", prefix, i))
		if i > 0 {
			w.bases[e] = last
		}
		last = e
	}
	return last
}

func (w *world) BaseElement(e Element) (Element, bool, error) {
	w.baseCalls.Add(1)
	if w.unavailable[e.Assembly] {
		return Element{}, false, NewUnavailableError("module unreadable", nil).WithElement(e.String())
	}
	base, ok := w.bases[e]
	return base, ok, nil
}

func (w *world) RawAttributes(e Element) ([]AttributeRecord, error) {
	if w.unavailable[e.Assembly] {
		return nil, NewUnavailableError("module unreadable", nil).WithElement(e.String())
	}
	return w.attrs[e], nil
}

func (w *world) ModuleMode(e Element) (Mode, error) {
	return w.modes[e.Assembly], nil
}

func (w *world) LookupMarker(name string) (*MarkerType, error) {
	if t, ok := w.markers[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTypeLoad, name)
}

func (w *world) ArgumentType(name string) (*ArgType, error) {
	if t, ok := w.argTypes[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTypeLoad, name)
}

func (w *world) marker(name string) *MarkerType {
	return w.markers[name]
}

func usageRecord(allowMultiple bool) AttributeRecord {
	return AttributeRecord{
		MarkerType: UsageTypeName + ", " + runtimeAsm,
		Positional: []TypedValue{{Type: "System.Int32", Value: 32767}},
		Named: []NamedArgument{
			{Name: "AllowMultiple", Value: TypedValue{Type: "System.Boolean", Value: allowMultiple}},
		},
	}
}

func labelRecord(text string) AttributeRecord {
	return AttributeRecord{
		MarkerType: "Test.LabelAttribute, " + frameworkAsm,
		Positional: []TypedValue{{Type: "System.String", Value: text}},
	}
}

func tagRecord(name string) AttributeRecord {
	return AttributeRecord{
		MarkerType: "Test.TagAttribute, " + frameworkAsm,
		Positional: []TypedValue{{Type: "System.String", Value: name}},
	}
}

func record(marker string) AttributeRecord {
	return AttributeRecord{MarkerType: marker + ", " + frameworkAsm}
}

type countingObserver struct {
	resolutions    int
	lastLevels     int
	skipped        map[string]int
	policyDefaults int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{skipped: make(map[string]int)}
}

func (o *countingObserver) ObserveResolution(_ Kind, levels, _ int, _ time.Duration) {
	o.resolutions++
	o.lastLevels = levels
}

func (o *countingObserver) ObserveSkipped(_, code string) {
	o.skipped[code]++
}

func (o *countingObserver) ObservePolicyDefault(string) {
	o.policyDefaults++
}

func labels(r Result) []string {
	var out []string
	for _, l := range All[*label](r) {
		out = append(out, l.Text)
	}
	return out
}

func tags(r Result) []string {
	var out []string
	for _, t := range All[*tag](r) {
		out = append(out, t.Name)
	}
	return out
}
