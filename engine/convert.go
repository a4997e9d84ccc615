package engine

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
)

// maxConvertDepth bounds ToAny and FromAny on nested or cyclic values.
const maxConvertDepth = 32

func (e *Engine) newPrimitive(op string, create func() (abi.Ref, abi.ErrorCode)) (Value, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := create()
	if code != abi.NoError {
		return nil, code.Err(op)
	}
	return e.wrapValue(ref)
}

func (e *Engine) FromString(s string) (Value, error) {
	return e.newPrimitive("CreateString", func() (abi.Ref, abi.ErrorCode) { return e.api.CreateString(s) })
}

func (e *Engine) FromFloat64(f float64) (Value, error) {
	return e.newPrimitive("DoubleToNumber", func() (abi.Ref, abi.ErrorCode) { return e.api.DoubleToNumber(f) })
}

func (e *Engine) FromInt32(i int32) (Value, error) {
	return e.newPrimitive("IntToNumber", func() (abi.Ref, abi.ErrorCode) { return e.api.IntToNumber(i) })
}

// FromBool returns the cached true or false value.
func (e *Engine) FromBool(b bool) Value {
	if b {
		return e.trueValue
	}
	return e.falseValue
}

// ToString converts v with script String() semantics. Conversion may run
// script, so it can fail with a script exception.
func (e *Engine) ToString(v Value) (string, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return "", err
	}
	defer tok.Close()

	ref, err := e.refOf(v)
	if err != nil {
		return "", err
	}
	if v.Type() == abi.String {
		s, code := e.api.StringValue(ref)
		if code != abi.NoError {
			return "", code.Err("StringValue")
		}
		return s, nil
	}

	conv, code := e.api.ConvertValueToString(ref)
	if err := e.check("ConvertValueToString", code); err != nil {
		return "", err
	}
	defer e.api.Release(conv)
	s, code := e.api.StringValue(conv)
	if code != abi.NoError {
		return "", code.Err("StringValue")
	}
	return s, nil
}

// ToFloat64 converts v with script Number() semantics.
func (e *Engine) ToFloat64(v Value) (float64, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return 0, err
	}
	defer tok.Close()

	ref, err := e.refOf(v)
	if err != nil {
		return 0, err
	}
	if v.Type() == abi.Number {
		f, code := e.api.NumberToDouble(ref)
		if code != abi.NoError {
			return 0, code.Err("NumberToDouble")
		}
		return f, nil
	}

	conv, code := e.api.ConvertValueToNumber(ref)
	if err := e.check("ConvertValueToNumber", code); err != nil {
		return 0, err
	}
	defer e.api.Release(conv)
	f, code := e.api.NumberToDouble(conv)
	if code != abi.NoError {
		return 0, code.Err("NumberToDouble")
	}
	return f, nil
}

// ToInt32 converts v to a number and truncates it the way script's
// ToInt32 does.
func (e *Engine) ToInt32(v Value) (int32, error) {
	f, err := e.ToFloat64(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, nil
	}
	return int32(uint32(int64(math.Trunc(f)))), nil
}

// ToBool converts v with script Boolean() semantics.
func (e *Engine) ToBool(v Value) (bool, error) {
	switch v.Handle() {
	case e.trueValue.Handle():
		return true, nil
	case e.falseValue.Handle():
		return false, nil
	}
	tok, err := e.AcquireContext()
	if err != nil {
		return false, err
	}
	defer tok.Close()

	ref, err := e.refOf(v)
	if err != nil {
		return false, err
	}
	if v.Type() != abi.Boolean {
		conv, code := e.api.ConvertValueToBoolean(ref)
		if err := e.check("ConvertValueToBoolean", code); err != nil {
			return false, err
		}
		defer e.api.Release(conv)
		ref = conv
	}
	b, code := e.api.BooleanToBool(ref)
	if code != abi.NoError {
		return false, code.Err("BooleanToBool")
	}
	return b, nil
}

// FromAny converts a Go value into a script value. Supported are nil,
// Value, bool, integer and float kinds, string, []any, map[string]any,
// HostFunction and error; anything else is a type mismatch.
func (e *Engine) FromAny(x any) (Value, error) {
	return e.fromAny(x, 0)
}

func (e *Engine) fromAny(x any, depth int) (Value, error) {
	if depth > maxConvertDepth {
		return nil, errors.New(errors.PhaseFactory, errors.KindInvalidInput).
			Detail("value nested deeper than %d", maxConvertDepth).
			Build()
	}
	switch v := x.(type) {
	case nil:
		return e.null, nil
	case Value:
		return v, nil
	case bool:
		return e.FromBool(v), nil
	case string:
		return e.FromString(v)
	case int:
		return e.fromInteger(int64(v))
	case int8:
		return e.FromInt32(int32(v))
	case int16:
		return e.FromInt32(int32(v))
	case int32:
		return e.FromInt32(v)
	case int64:
		return e.fromInteger(v)
	case uint8:
		return e.FromInt32(int32(v))
	case uint16:
		return e.FromInt32(int32(v))
	case uint32:
		return e.FromFloat64(float64(v))
	case uint:
		return e.FromFloat64(float64(v))
	case uint64:
		return e.FromFloat64(float64(v))
	case float32:
		return e.FromFloat64(float64(v))
	case float64:
		return e.FromFloat64(v)
	case []any:
		arr, err := e.CreateArray(0)
		if err != nil {
			return nil, err
		}
		for i, item := range v {
			iv, err := e.fromAny(item, depth+1)
			if err != nil {
				return nil, err
			}
			if err := arr.SetAt(i, iv); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case map[string]any:
		obj, err := e.CreateObject(nil)
		if err != nil {
			return nil, err
		}
		for _, k := range slices.Sorted(maps.Keys(v)) {
			iv, err := e.fromAny(v[k], depth+1)
			if err != nil {
				return nil, err
			}
			if err := obj.SetProperty(k, iv); err != nil {
				return nil, err
			}
		}
		return obj, nil
	case HostFunction:
		return e.CreateFunction(v)
	case func(*Engine, bool, Value, []Value) (Value, error):
		return e.CreateFunction(v)
	case error:
		return e.CreateError(v.Error())
	}
	return nil, errors.TypeMismatch(errors.PhaseFactory, "convertible value", fmt.Sprintf("%T", x))
}

func (e *Engine) fromInteger(i int64) (Value, error) {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return e.FromInt32(int32(i))
	}
	return e.FromFloat64(float64(i))
}

// ToAny converts a script value into plain Go data: undefined and null
// become nil, arrays []any, plain objects and errors map[string]any.
// Functions, symbols and buffers are returned as the Value itself.
func (e *Engine) ToAny(v Value) (any, error) {
	return e.toAny(v, 0)
}

func (e *Engine) toAny(v Value, depth int) (any, error) {
	if depth > maxConvertDepth {
		return nil, errors.New(errors.PhaseFactory, errors.KindInvalidInput).
			Detail("value nested deeper than %d", maxConvertDepth).
			Build()
	}
	switch v.Type() {
	case abi.Undefined, abi.Null:
		return nil, nil
	case abi.Boolean:
		return e.ToBool(v)
	case abi.Number:
		return e.ToFloat64(v)
	case abi.String:
		return e.ToString(v)
	case abi.Array:
		arr := v.(*Array)
		items, err := arr.Values()
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			if out[i], err = e.toAny(item, depth+1); err != nil {
				return nil, err
			}
		}
		return out, nil
	case abi.Object, abi.Error:
		obj := v.(ObjectLike)
		keys, err := obj.Keys()
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			pv, err := obj.GetProperty(k)
			if err != nil {
				return nil, err
			}
			if out[k], err = e.toAny(pv, depth+1); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return v, nil
}

// StrictEquals compares a and b with ===.
func (e *Engine) StrictEquals(a, b Value) (bool, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return false, err
	}
	defer tok.Close()

	ra, err := e.refOf(a)
	if err != nil {
		return false, err
	}
	rb, err := e.refOf(b)
	if err != nil {
		return false, err
	}
	eq, code := e.api.StrictEquals(ra, rb)
	if code != abi.NoError {
		return false, code.Err("StrictEquals")
	}
	return eq, nil
}
