package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
)

// StarlarkEvaluator runs layout scripts in a sandbox without load() or
// print output.
//
// Scripts see the globals "shape" (a struct with rows and cols), "params"
// (the layout document params) and the builtins label(row, col) and
// parse_label(label). Public globals are returned as Go values.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// Evaluate executes script for a layout of the given shape.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, shape geometry.Shape, params map[string]interface{}) (*ScriptResult, error) {
	startTime := time.Now()

	thread := &starlark.Thread{
		Name:  "layout",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	output, err := se.evaluateSync(thread, script, shape, params)
	result := &ScriptResult{Output: output, ExecutionTime: time.Since(startTime)}
	if err != nil {
		if evalCtx.Err() != nil {
			err = fmt.Errorf("layout script timeout after %v: %w", se.timeout, err)
		}
		result.Error = err.Error()
		return result, err
	}
	return result, nil
}

// scriptOptions permits top-level for, if and global reassignment.
var scriptOptions = &syntax.FileOptions{TopLevelControl: true, GlobalReassign: true}

func (se *StarlarkEvaluator) evaluateSync(thread *starlark.Thread, script string, shape geometry.Shape, params map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	starParams, err := toStarlarkValue(params)
	if err != nil {
		return nil, fmt.Errorf("failed to convert params: %w", err)
	}

	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"shape": starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"rows": starlark.MakeInt(shape.Rows()),
			"cols": starlark.MakeInt(shape.Cols()),
		}),
		"params":      starParams,
		"label":       starlark.NewBuiltin("label", builtinLabel),
		"parse_label": starlark.NewBuiltin("parse_label", builtinParseLabel),
	}

	globals, err := starlark.ExecFileOptions(scriptOptions, thread, "layout.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		if _, isFunc := val.(*starlark.Function); isFunc {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return output, nil
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
		return fromIndexable(val)
	case starlark.Tuple:
		return fromIndexable(val)
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

func fromIndexable(val starlark.Indexable) ([]interface{}, error) {
	list := make([]interface{}, val.Len())
	for i := 0; i < val.Len(); i++ {
		item, err := fromStarlarkValue(val.Index(i))
		if err != nil {
			return nil, err
		}
		list[i] = item
	}
	return list, nil
}

// builtinLabel implements label(row, col) with zero-based indices.
func builtinLabel(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var row, col int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &row, &col); err != nil {
		return nil, err
	}
	p, err := geometry.NewPosition(row, col)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(p.Label()), nil
}

// builtinParseLabel implements parse_label(label), returning (row, col).
func builtinParseLabel(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var label string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &label); err != nil {
		return nil, err
	}
	p, err := geometry.ParseLabel(label)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.Tuple{starlark.MakeInt(p.Row()), starlark.MakeInt(p.Col())}, nil
}
