package markers

import (
	"fmt"

	"github.com/tessera-run/tessera/pkg/engine"
)

// Assemblies owning the built-in marker types.
const (
	FrameworkAssembly = "Tessera.Framework"
	RuntimeAssembly   = "System.Runtime"
)

// Built-in marker type names.
const (
	UsageName            = engine.UsageTypeName
	ParallelizeName      = "Tessera.ParallelizeAttribute"
	DoNotParallelizeName = "Tessera.DoNotParallelizeAttribute"
	TestClassName        = "Tessera.TestClassAttribute"
	TestMethodName       = "Tessera.TestMethodAttribute"
	TestCategoryBaseName = "Tessera.TestCategoryBaseAttribute"
	TestCategoryName     = "Tessera.TestCategoryAttribute"
	OwnerName            = "Tessera.OwnerAttribute"
	PriorityName         = "Tessera.PriorityAttribute"
	DescriptionName      = "Tessera.DescriptionAttribute"
	TimeoutName          = "Tessera.TimeoutAttribute"
	IgnoreName           = "Tessera.IgnoreAttribute"
	DeploymentItemName   = "Tessera.DeploymentItemAttribute"
	TestPropertyName     = "Tessera.TestPropertyAttribute"
	ClassInitializeName  = "Tessera.ClassInitializeAttribute"
	ClassCleanupName     = "Tessera.ClassCleanupAttribute"
	TestInitializeName   = "Tessera.TestInitializeAttribute"
	TestCleanupName      = "Tessera.TestCleanupAttribute"
)

// Parallelize enables parallel execution of an assembly's tests.
type Parallelize struct {
	// Workers is the number of worker threads; 0 means one per available core.
	Workers int
	Scope   ExecutionScope
}

// DoNotParallelize suppresses parallel execution.
type DoNotParallelize struct{}

// TestClass marks a type containing tests.
type TestClass struct{}

// TestMethod marks a test method.
type TestMethod struct {
	DisplayName string
}

// TestCategory assigns categories to a test. Category markers derive from
// the category base marker and are repeatable.
type TestCategory struct {
	Categories []string
}

// Owner names the owner of a test.
type Owner struct {
	Owner string
}

// Priority sets the priority of a test.
type Priority struct {
	Priority int
}

// Description describes a test.
type Description struct {
	Description string
}

// Timeout sets a test timeout in milliseconds.
type Timeout struct {
	Timeout int
}

// Ignore excludes a test or class from execution.
type Ignore struct {
	Message string
}

// DeploymentItem names a file or directory deployed next to the tests.
type DeploymentItem struct {
	Path            string `json:"path"`
	OutputDirectory string `json:"output_directory,omitempty"`
}

// TestProperty attaches an arbitrary name/value pair to a test.
type TestProperty struct {
	Name  string
	Value string
}

// ClassInitialize marks a method run once before the tests of a class.
type ClassInitialize struct {
	Inheritance InheritanceBehavior
}

// ClassCleanup marks a method run once after the tests of a class.
type ClassCleanup struct {
	Inheritance InheritanceBehavior
}

// TestInitialize marks a method run before each test of a class and of every
// class deriving from it.
type TestInitialize struct{}

// TestCleanup marks a method run after each test.
type TestCleanup struct{}

func builtinMarkers() []*engine.MarkerType {
	return []*engine.MarkerType{
		{
			Name:     UsageName,
			Assembly: RuntimeAssembly,
			Constructors: []engine.Constructor{
				ctor1(TypeAttributeTargets, func(on AttributeTargets) *engine.Usage {
					return &engine.Usage{ValidOn: int(on), Inherited: true}
				}),
			},
			Properties: map[string]engine.Property{
				"AllowMultiple": prop(TypeBoolean, func(u *engine.Usage, v bool) { u.AllowMultiple = v }),
				"Inherited":     prop(TypeBoolean, func(u *engine.Usage, v bool) { u.Inherited = v }),
			},
			Declared: []engine.AttributeRecord{Usage(TargetClass, false)},
		},
		{
			Name:         ParallelizeName,
			Assembly:     FrameworkAssembly,
			Constructors: []engine.Constructor{ctor0[Parallelize]()},
			Properties: map[string]engine.Property{
				"Workers": prop(TypeInt32, func(p *Parallelize, v int) { p.Workers = v }),
				"Scope":   prop(TypeExecutionScope, func(p *Parallelize, v ExecutionScope) { p.Scope = v }),
			},
			Declared: []engine.AttributeRecord{Usage(TargetAssembly, false)},
		},
		{
			Name:         DoNotParallelizeName,
			Assembly:     FrameworkAssembly,
			Constructors: []engine.Constructor{ctor0[DoNotParallelize]()},
			Declared:     []engine.AttributeRecord{Usage(TargetAssembly|TargetClass|TargetMethod, false)},
		},
		{
			Name:         TestClassName,
			Assembly:     FrameworkAssembly,
			Constructors: []engine.Constructor{ctor0[TestClass]()},
			Declared:     []engine.AttributeRecord{Usage(TargetClass, false)},
		},
		{
			Name:     TestMethodName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor0[TestMethod](),
				ctor1(TypeString, func(name string) *TestMethod { return &TestMethod{DisplayName: name} }),
			},
			Properties: map[string]engine.Property{
				"DisplayName": prop(TypeString, func(m *TestMethod, v string) { m.DisplayName = v }),
			},
			Declared: []engine.AttributeRecord{Usage(TargetMethod, false)},
		},
		{
			// Abstract: no constructors, only the shared usage policy.
			Name:     TestCategoryBaseName,
			Assembly: FrameworkAssembly,
			Declared: []engine.AttributeRecord{Usage(TargetAssembly|TargetClass|TargetMethod, true)},
		},
		{
			Name:     TestCategoryName,
			Assembly: FrameworkAssembly,
			Base:     TestCategoryBaseName + ", " + FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor1(TypeString, func(c string) *TestCategory { return &TestCategory{Categories: []string{c}} }),
			},
		},
		{
			Name:     OwnerName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor1(TypeString, func(o string) *Owner { return &Owner{Owner: o} }),
			},
			Declared: []engine.AttributeRecord{Usage(TargetClass|TargetMethod, false)},
		},
		{
			Name:     PriorityName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor1(TypeInt32, func(p int) *Priority { return &Priority{Priority: p} }),
			},
			Declared: []engine.AttributeRecord{Usage(TargetClass|TargetMethod, false)},
		},
		{
			Name:     DescriptionName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor1(TypeString, func(d string) *Description { return &Description{Description: d} }),
			},
			Declared: []engine.AttributeRecord{Usage(TargetClass|TargetMethod, false)},
		},
		{
			Name:     TimeoutName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor1(TypeInt32, func(ms int) *Timeout { return &Timeout{Timeout: ms} }),
			},
			Declared: []engine.AttributeRecord{Usage(TargetMethod, false)},
		},
		{
			Name:     IgnoreName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor0[Ignore](),
				ctor1(TypeString, func(msg string) *Ignore { return &Ignore{Message: msg} }),
			},
			Declared: []engine.AttributeRecord{Usage(TargetClass|TargetMethod, false)},
		},
		{
			Name:     DeploymentItemName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor1(TypeString, func(path string) *DeploymentItem { return &DeploymentItem{Path: path} }),
				ctor2(TypeString, TypeString, func(path, out string) *DeploymentItem {
					return &DeploymentItem{Path: path, OutputDirectory: out}
				}),
			},
			Declared: []engine.AttributeRecord{Usage(TargetClass|TargetMethod, true)},
		},
		{
			Name:     TestPropertyName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor2(TypeString, TypeString, func(name, value string) *TestProperty {
					return &TestProperty{Name: name, Value: value}
				}),
			},
			Declared: []engine.AttributeRecord{Usage(TargetMethod, true)},
		},
		{
			Name:     ClassInitializeName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor0[ClassInitialize](),
				ctor1(TypeInheritanceBehavior, func(b InheritanceBehavior) *ClassInitialize {
					return &ClassInitialize{Inheritance: b}
				}),
			},
			Declared: []engine.AttributeRecord{Usage(TargetMethod, false)},
		},
		{
			Name:     ClassCleanupName,
			Assembly: FrameworkAssembly,
			Constructors: []engine.Constructor{
				ctor0[ClassCleanup](),
				ctor1(TypeInheritanceBehavior, func(b InheritanceBehavior) *ClassCleanup {
					return &ClassCleanup{Inheritance: b}
				}),
			},
			Declared: []engine.AttributeRecord{Usage(TargetMethod, false)},
		},
		{
			Name:         TestInitializeName,
			Assembly:     FrameworkAssembly,
			Constructors: []engine.Constructor{ctor0[TestInitialize]()},
			Declared:     []engine.AttributeRecord{Usage(TargetMethod, false)},
		},
		{
			Name:         TestCleanupName,
			Assembly:     FrameworkAssembly,
			Constructors: []engine.Constructor{ctor0[TestCleanup]()},
			Declared:     []engine.AttributeRecord{Usage(TargetMethod, false)},
		},
	}
}

// Usage returns the usage meta-marker record for the given targets and cardinality.
func Usage(on AttributeTargets, allowMultiple bool) engine.AttributeRecord {
	return engine.AttributeRecord{
		MarkerType: UsageName + ", " + RuntimeAssembly,
		Positional: []engine.TypedValue{{Type: TypeAttributeTargets, Value: int(on)}},
		Named: []engine.NamedArgument{
			{Name: "AllowMultiple", Value: engine.TypedValue{Type: TypeBoolean, Value: allowMultiple}},
		},
	}
}

// Record builds a framework marker record with string positional arguments.
func Record(name string, args ...string) engine.AttributeRecord {
	rec := engine.AttributeRecord{MarkerType: name + ", " + FrameworkAssembly}
	for _, arg := range args {
		rec.Positional = append(rec.Positional, engine.TypedValue{Type: TypeString, Value: arg})
	}
	return rec
}

func ctor0[T any]() engine.Constructor {
	return engine.Constructor{
		New: func([]interface{}) (interface{}, error) {
			return new(T), nil
		},
	}
}

func ctor1[A, T any](param string, build func(A) *T) engine.Constructor {
	return engine.Constructor{
		Params: []string{param},
		New: func(args []interface{}) (interface{}, error) {
			a, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			return build(a), nil
		},
	}
}

func ctor2[A, B, T any](p1, p2 string, build func(A, B) *T) engine.Constructor {
	return engine.Constructor{
		Params: []string{p1, p2},
		New: func(args []interface{}) (interface{}, error) {
			a, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			return build(a, b), nil
		},
	}
}

func arg[A any](args []interface{}, i int) (A, error) {
	var zero A
	if i >= len(args) {
		return zero, fmt.Errorf("%w: missing argument %d", engine.ErrBadImageFormat, i)
	}
	v, ok := args[i].(A)
	if !ok {
		return zero, fmt.Errorf("%w: argument %d is %T, want %T", engine.ErrBadImageFormat, i, args[i], zero)
	}
	return v, nil
}

func prop[T, V any](typeName string, set func(*T, V)) engine.Property {
	return engine.Property{
		Type: typeName,
		Set: func(target, value interface{}) error {
			t, ok := target.(*T)
			if !ok {
				return fmt.Errorf("%w: target is %T", engine.ErrBadImageFormat, target)
			}
			v, ok := value.(V)
			if !ok {
				var want V
				return fmt.Errorf("%w: value is %T, want %T", engine.ErrBadImageFormat, value, want)
			}
			set(t, v)
			return nil
		},
	}
}
