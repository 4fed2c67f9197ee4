package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/tessera-run/tessera/pkg/markers"
	"github.com/tessera-run/tessera/pkg/metadata"
)

// DefaultStarlarkTimeout bounds manifest script execution.
const DefaultStarlarkTimeout = 30 * time.Second

// StarlarkEvaluator executes manifest scripts with a timeout. Scripts get
// the struct builtin plus marker and typed helpers for building attribute
// records.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = DefaultStarlarkTimeout
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// Evaluate executes a Starlark script with the given input and returns its
// public globals.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename, script string, input map[string]interface{}) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "tessera",
		Print: func(*starlark.Thread, string) {},
	}

	type outcome struct {
		result *StarlarkResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := se.evaluateSync(thread, filename, script, input)
		done <- outcome{result, err}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel(evalCtx.Err().Error())
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         fmt.Sprintf("execution timeout after %v", se.timeout),
		}, fmt.Errorf("starlark execution timeout: %w", evalCtx.Err())
	case o := <-done:
		if o.err != nil {
			return &StarlarkResult{
				ExecutionTime: time.Since(startTime),
				Error:         o.err.Error(),
			}, o.err
		}
		o.result.ExecutionTime = time.Since(startTime)
		return o.result, nil
	}
}

// evaluateSync performs the actual Starlark evaluation synchronously.
func (se *StarlarkEvaluator) evaluateSync(thread *starlark.Thread, filename, script string, input map[string]interface{}) (*StarlarkResult, error) {
	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
		"marker": starlark.NewBuiltin("marker", builtinMarker),
		"typed":  starlark.NewBuiltin("typed", builtinTyped),
	}

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		// Skip private globals and function definitions.
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &StarlarkResult{Output: output}, nil
}

// StarlarkLoader reads manifests from scripts that define an assemblies global.
type StarlarkLoader struct {
	evaluator *StarlarkEvaluator
}

// NewStarlarkLoader creates a new Starlark manifest loader.
func NewStarlarkLoader(timeout time.Duration) *StarlarkLoader {
	return &StarlarkLoader{evaluator: NewStarlarkEvaluator(timeout)}
}

// Load executes the script at path and decodes its assemblies global.
func (sl *StarlarkLoader) Load(ctx context.Context, path string) (*metadata.Manifest, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return sl.LoadInline(ctx, path, string(script))
}

// LoadInline executes script and decodes its assemblies global.
func (sl *StarlarkLoader) LoadInline(ctx context.Context, filename, script string) (*metadata.Manifest, error) {
	result, err := sl.evaluator.Evaluate(ctx, filename, script, nil)
	if err != nil {
		return nil, err
	}

	assemblies, ok := result.Output["assemblies"]
	if !ok {
		return nil, ValidationErrors{{File: filename, Message: "script does not define assemblies", Severity: "error"}}
	}

	// Round-trip through JSON so the manifest's json tags drive decoding.
	data, err := json.Marshal(map[string]interface{}{"assemblies": assemblies})
	if err != nil {
		return nil, fmt.Errorf("failed to encode script output: %w", err)
	}

	var m metadata.Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, ValidationErrors{{File: filename, Message: err.Error(), Severity: "error"}}
	}
	return &m, nil
}

// builtinMarker builds an attribute record:
//
//	marker("Tessera.TestCategoryAttribute", "smoke", Owner = typed("System.String", "qa"))
//
// Names without an assembly are qualified to the framework assembly. Plain
// positional and keyword values are typed from their Starlark type.
func builtinMarker(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing marker type name", b.Name())
	}
	name, ok := starlark.AsString(args[0])
	if !ok {
		return nil, fmt.Errorf("%s: marker type name must be a string, got %s", b.Name(), args[0].Type())
	}
	if !strings.Contains(name, ",") {
		name += ", " + markers.FrameworkAssembly
	}

	record := starlark.NewDict(3)
	if err := record.SetKey(starlark.String("type"), starlark.String(name)); err != nil {
		return nil, err
	}

	positional := make([]starlark.Value, 0, len(args)-1)
	for _, arg := range args[1:] {
		tv, err := asTyped(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		positional = append(positional, tv)
	}
	if len(positional) > 0 {
		if err := record.SetKey(starlark.String("args"), starlark.NewList(positional)); err != nil {
			return nil, err
		}
	}

	named := make([]starlark.Value, 0, len(kwargs))
	for _, kv := range kwargs {
		tv, err := asTyped(kv[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", b.Name(), kv[0], err)
		}
		entry := starlark.NewDict(2)
		if err := entry.SetKey(starlark.String("name"), kv[0]); err != nil {
			return nil, err
		}
		if err := entry.SetKey(starlark.String("value"), tv); err != nil {
			return nil, err
		}
		named = append(named, entry)
	}
	if len(named) > 0 {
		if err := record.SetKey(starlark.String("named"), starlark.NewList(named)); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// builtinTyped builds an explicitly typed value: typed("System.Int64", 5).
func builtinTyped(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var typeName string
	var value starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "type", &typeName, "value?", &value); err != nil {
		return nil, err
	}

	tv := starlark.NewDict(2)
	if err := tv.SetKey(starlark.String("type"), starlark.String(typeName)); err != nil {
		return nil, err
	}

	if list, ok := value.(*starlark.List); ok && strings.HasSuffix(typeName, "[]") {
		elemType := strings.TrimSuffix(typeName, "[]")
		elements := make([]starlark.Value, 0, list.Len())
		for i := 0; i < list.Len(); i++ {
			elem := starlark.NewDict(2)
			if err := elem.SetKey(starlark.String("type"), starlark.String(elemType)); err != nil {
				return nil, err
			}
			if err := elem.SetKey(starlark.String("value"), list.Index(i)); err != nil {
				return nil, err
			}
			elements = append(elements, elem)
		}
		if err := tv.SetKey(starlark.String("elements"), starlark.NewList(elements)); err != nil {
			return nil, err
		}
		return tv, nil
	}

	if value != starlark.None {
		if err := tv.SetKey(starlark.String("value"), value); err != nil {
			return nil, err
		}
	}
	return tv, nil
}

// asTyped passes typed dicts through and infers the type of plain values.
func asTyped(v starlark.Value) (starlark.Value, error) {
	if d, ok := v.(*starlark.Dict); ok {
		if _, found, _ := d.Get(starlark.String("type")); found {
			return d, nil
		}
	}

	var typeName string
	switch v.(type) {
	case starlark.String:
		typeName = markers.TypeString
	case starlark.Int:
		typeName = markers.TypeInt32
	case starlark.Bool:
		typeName = markers.TypeBoolean
	case starlark.Float:
		typeName = markers.TypeDouble
	default:
		return nil, fmt.Errorf("cannot infer argument type of %s; use typed()", v.Type())
	}
	return builtinTyped(nil, starlark.NewBuiltin("typed", builtinTyped), starlark.Tuple{starlark.String(typeName), v}, nil)
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
