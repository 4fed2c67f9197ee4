package markers

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/tessera-run/tessera/pkg/engine"
)

// Argument type names understood by the built-in catalog.
const (
	TypeString           = "System.String"
	TypeInt32            = "System.Int32"
	TypeInt64            = "System.Int64"
	TypeBoolean          = "System.Boolean"
	TypeDouble           = "System.Double"
	TypeObject           = "System.Object"
	TypeAttributeTargets = "System.AttributeTargets"
	TypeExecutionScope   = "Tessera.ExecutionScope"

	TypeInheritanceBehavior = "Tessera.InheritanceBehavior"
)

// AttributeTargets is a bit set of the element kinds a marker may be applied to.
type AttributeTargets int

// Target bits.
const (
	TargetAssembly AttributeTargets = 1
	TargetClass    AttributeTargets = 4
	TargetMethod   AttributeTargets = 64
	TargetAll      AttributeTargets = 32767
)

var targetNames = map[string]AttributeTargets{
	"assembly": TargetAssembly,
	"class":    TargetClass,
	"method":   TargetMethod,
	"all":      TargetAll,
}

// Allows reports whether kind is one of the targets in t.
func (t AttributeTargets) Allows(kind engine.Kind) bool {
	switch kind {
	case engine.KindAssembly:
		return t&TargetAssembly != 0
	case engine.KindType:
		return t&TargetClass != 0
	case engine.KindMethod:
		return t&TargetMethod != 0
	}
	return false
}

// ExecutionScope is the unit of parallel execution.
type ExecutionScope int

const (
	// ClassLevel runs test classes in parallel.
	ClassLevel ExecutionScope = iota

	// MethodLevel runs individual test methods in parallel.
	MethodLevel
)

// String returns the declared name of the scope.
func (s ExecutionScope) String() string {
	switch s {
	case ClassLevel:
		return "ClassLevel"
	case MethodLevel:
		return "MethodLevel"
	}
	return fmt.Sprintf("ExecutionScope(%d)", int(s))
}

// ParseExecutionScope accepts a scope name or its numeric value.
func ParseExecutionScope(raw interface{}) (ExecutionScope, error) {
	switch v := raw.(type) {
	case nil:
		return ClassLevel, nil
	case ExecutionScope:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimPrefix(v, "ExecutionScope.")) {
		case "classlevel":
			return ClassLevel, nil
		case "methodlevel":
			return MethodLevel, nil
		}
		return 0, fmt.Errorf("unknown execution scope %q", v)
	}

	n, err := toInt64(raw)
	if err != nil {
		return 0, err
	}
	if n != int64(ClassLevel) && n != int64(MethodLevel) {
		return 0, fmt.Errorf("execution scope %d out of range", n)
	}
	return ExecutionScope(n), nil
}

// InheritanceBehavior controls whether a class lifecycle method also runs
// for classes deriving from its declaring class.
type InheritanceBehavior int

const (
	// InheritanceNone applies the method to its declaring class only.
	InheritanceNone InheritanceBehavior = iota

	// BeforeEachDerivedClass also applies the method to every derived class.
	BeforeEachDerivedClass
)

// String returns the declared name of the behavior.
func (b InheritanceBehavior) String() string {
	switch b {
	case InheritanceNone:
		return "None"
	case BeforeEachDerivedClass:
		return "BeforeEachDerivedClass"
	}
	return fmt.Sprintf("InheritanceBehavior(%d)", int(b))
}

// ParseInheritanceBehavior accepts a behavior name or its numeric value.
func ParseInheritanceBehavior(raw interface{}) (InheritanceBehavior, error) {
	switch v := raw.(type) {
	case nil:
		return InheritanceNone, nil
	case InheritanceBehavior:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimPrefix(v, "InheritanceBehavior.")) {
		case "none":
			return InheritanceNone, nil
		case "beforeeachderivedclass":
			return BeforeEachDerivedClass, nil
		}
		return 0, fmt.Errorf("unknown inheritance behavior %q", v)
	}

	n, err := toInt64(raw)
	if err != nil {
		return 0, err
	}
	if n != int64(InheritanceNone) && n != int64(BeforeEachDerivedClass) {
		return 0, fmt.Errorf("inheritance behavior %d out of range", n)
	}
	return InheritanceBehavior(n), nil
}

// ParseAttributeTargets accepts a bit mask or names joined by "|" or ",".
func ParseAttributeTargets(raw interface{}) (AttributeTargets, error) {
	switch v := raw.(type) {
	case nil:
		return TargetAll, nil
	case AttributeTargets:
		return v, nil
	case string:
		var out AttributeTargets
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == '|' || r == ',' }) {
			name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "AttributeTargets.")))
			bit, ok := targetNames[name]
			if !ok {
				return 0, fmt.Errorf("unknown attribute target %q", part)
			}
			out |= bit
		}
		return out, nil
	}

	n, err := toInt64(raw)
	if err != nil {
		return 0, err
	}
	return AttributeTargets(n), nil
}

func builtinArgTypes() []*engine.ArgType {
	return []*engine.ArgType{
		{Name: TypeString, Go: reflect.TypeOf("")},
		{Name: TypeBoolean, Go: reflect.TypeOf(false)},
		{Name: TypeDouble, Go: reflect.TypeOf(float64(0))},
		{Name: TypeObject, Go: reflect.TypeOf((*interface{})(nil)).Elem()},
		{
			Name: TypeInt32,
			Go:   reflect.TypeOf(0),
			Parse: func(raw interface{}) (interface{}, error) {
				n, err := toInt64(raw)
				if err != nil {
					return nil, err
				}
				if n < math.MinInt32 || n > math.MaxInt32 {
					return nil, fmt.Errorf("%d overflows Int32", n)
				}
				return int(n), nil
			},
		},
		{
			Name: TypeInt64,
			Go:   reflect.TypeOf(int64(0)),
			Parse: func(raw interface{}) (interface{}, error) {
				return toInt64(raw)
			},
		},
		{
			Name: TypeAttributeTargets,
			Go:   reflect.TypeOf(AttributeTargets(0)),
			Parse: func(raw interface{}) (interface{}, error) {
				return ParseAttributeTargets(raw)
			},
		},
		{
			Name: TypeExecutionScope,
			Go:   reflect.TypeOf(ClassLevel),
			Parse: func(raw interface{}) (interface{}, error) {
				return ParseExecutionScope(raw)
			},
		},
		{
			Name: TypeInheritanceBehavior,
			Go:   reflect.TypeOf(InheritanceNone),
			Parse: func(raw interface{}) (interface{}, error) {
				return ParseInheritanceBehavior(raw)
			},
		},
	}
}

// toInt64 accepts the integer shapes produced by the YAML, JSON, CUE and
// Starlark decoders. Floats must be integral.
func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows Int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case ExecutionScope:
		return int64(v), nil
	case InheritanceBehavior:
		return int64(v), nil
	case AttributeTargets:
		return int64(v), nil
	}
	return 0, fmt.Errorf("cannot use %T as an integer", raw)
}
