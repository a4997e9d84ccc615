package runtime

import (
	"fmt"
	"math"
	"reflect"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
)

var (
	engineType   = reflect.TypeFor[*engine.Engine]()
	valueType    = reflect.TypeFor[engine.Value]()
	errorType    = reflect.TypeFor[error]()
	hostFuncType = reflect.TypeFor[engine.HostFunction]()
)

// adapt turns fn into an engine.HostFunction. An engine.HostFunction is
// used as is. Any other function may take a leading *engine.Engine followed
// by parameters of kind string, bool, integer, float, any, []any,
// map[string]any or engine.Value (the last one may be variadic), and may
// return one such value, an error, or both in that order.
func adapt(name string, fn any) (engine.HostFunction, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "handler is nil")
	}
	switch f := fn.(type) {
	case engine.HostFunction:
		return f, nil
	case func(*engine.Engine, bool, engine.Value, []engine.Value) (engine.Value, error):
		return f, nil
	}

	rv := reflect.ValueOf(fn)
	ft := rv.Type()
	if ft.Kind() != reflect.Func {
		return nil, errors.TypeMismatch(errors.PhaseHost, "function", ft.String())
	}
	if ft.ConvertibleTo(hostFuncType) {
		return rv.Convert(hostFuncType).Interface().(engine.HostFunction), nil
	}

	first := 0
	if ft.NumIn() > 0 && ft.In(0) == engineType {
		first = 1
	}
	for i := first; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if ft.IsVariadic() && i == ft.NumIn()-1 {
			in = in.Elem()
		}
		if !supported(in) {
			return nil, errors.New(errors.PhaseHost, errors.KindUnsupported).
				Path(name).
				Detail("parameter %d has unsupported type %s", i, in).
				Build()
		}
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if out := ft.Out(0); out != errorType && !supported(out) {
			return nil, unsupportedResult(name, out)
		}
	case 2:
		if !supported(ft.Out(0)) {
			return nil, unsupportedResult(name, ft.Out(0))
		}
		if ft.Out(1) != errorType {
			return nil, errors.New(errors.PhaseHost, errors.KindUnsupported).
				Path(name).
				Detail("second result must be error, got %s", ft.Out(1)).
				Build()
		}
	default:
		return nil, errors.New(errors.PhaseHost, errors.KindUnsupported).
			Path(name).
			Detail("too many results (%d)", ft.NumOut()).
			Build()
	}

	return func(e *engine.Engine, _ bool, _ engine.Value, args []engine.Value) (engine.Value, error) {
		in, err := marshalArgs(e, ft, first, args)
		if err != nil {
			return nil, err
		}
		var out []reflect.Value
		if ft.IsVariadic() {
			out = rv.CallSlice(in)
		} else {
			out = rv.Call(in)
		}
		return unmarshalResults(e, out)
	}, nil
}

func unsupportedResult(name string, t reflect.Type) error {
	return errors.New(errors.PhaseHost, errors.KindUnsupported).
		Path(name).
		Detail("result has unsupported type %s", t).
		Build()
}

func supported(t reflect.Type) bool {
	if t == valueType {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Interface:
		return t.NumMethod() == 0
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Interface && t.Elem().NumMethod() == 0
	case reflect.Map:
		return t.Key().Kind() == reflect.String && t.Elem().Kind() == reflect.Interface && t.Elem().NumMethod() == 0
	}
	return false
}

// marshalArgs converts script arguments to the parameters of ft. Missing
// arguments are undefined; surplus ones are ignored unless ft is variadic.
func marshalArgs(e *engine.Engine, ft reflect.Type, first int, args []engine.Value) ([]reflect.Value, error) {
	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
	}

	in := make([]reflect.Value, 0, ft.NumIn())
	if first == 1 {
		in = append(in, reflect.ValueOf(e))
	}
	for i := first; i < fixed; i++ {
		var arg engine.Value
		if j := i - first; j < len(args) {
			arg = args[j]
		}
		v, err := convertArg(e, arg, ft.In(i))
		if err != nil {
			return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				Path(fmt.Sprintf("arg%d", i-first)).
				Cause(err).
				Build()
		}
		in = append(in, v)
	}

	if ft.IsVariadic() {
		st := ft.In(ft.NumIn() - 1)
		rest := reflect.MakeSlice(st, 0, max(len(args)-(fixed-first), 0))
		for j := fixed - first; j < len(args); j++ {
			v, err := convertArg(e, args[j], st.Elem())
			if err != nil {
				return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
					Path(fmt.Sprintf("arg%d", j)).
					Cause(err).
					Build()
			}
			rest = reflect.Append(rest, v)
		}
		in = append(in, rest)
	}
	return in, nil
}

func convertArg(e *engine.Engine, arg engine.Value, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		arg = e.Undefined()
	}
	if t == valueType {
		return reflect.ValueOf(&arg).Elem(), nil
	}

	switch t.Kind() {
	case reflect.String:
		s, err := e.ToString(arg)
		return reflect.ValueOf(s).Convert(t), err
	case reflect.Bool:
		b, err := e.ToBool(arg)
		return reflect.ValueOf(b).Convert(t), err
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		f, err := e.ToFloat64(arg)
		if err != nil {
			return reflect.Value{}, err
		}
		return convertNumber(f, t)
	}

	x, err := e.ToAny(arg)
	if err != nil {
		return reflect.Value{}, err
	}
	if x == nil {
		return reflect.Zero(t), nil
	}
	xv := reflect.ValueOf(x)
	if !xv.Type().AssignableTo(t) {
		return reflect.Value{}, errors.TypeMismatch(errors.PhaseHost, t.String(), arg.Type().String())
	}
	out := reflect.New(t).Elem()
	out.Set(xv)
	return out, nil
}

// Bounds of the float64 values that convert to int64 and uint64 exactly.
const (
	minInt64Float  = -(1 << 63)
	maxInt64Float  = 1 << 63
	maxUint64Float = 1 << 64
)

// convertNumber converts f to the numeric type t. Integer types accept only
// integral values within their range; float32 rejects finite values it
// cannot represent.
func convertNumber(f float64, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		if !math.IsNaN(f) && !math.IsInf(f, 0) && out.OverflowFloat(f) {
			return reflect.Value{}, numberOutOfRange(f, t)
		}
		out.SetFloat(f)
		return out, nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return reflect.Value{}, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Value(f).
			Detail("expected integer for %s, got %v", t, f).
			Build()
	}
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if f < 0 || f >= maxUint64Float || out.OverflowUint(uint64(f)) {
			return reflect.Value{}, numberOutOfRange(f, t)
		}
		out.SetUint(uint64(f))
	default:
		if f < minInt64Float || f >= maxInt64Float || out.OverflowInt(int64(f)) {
			return reflect.Value{}, numberOutOfRange(f, t)
		}
		out.SetInt(int64(f))
	}
	return out, nil
}

func numberOutOfRange(f float64, t reflect.Type) error {
	return errors.New(errors.PhaseHost, errors.KindOutOfBounds).
		Value(f).
		Detail("%v out of range for %s", f, t).
		Build()
}

func unmarshalResults(e *engine.Engine, out []reflect.Value) (engine.Value, error) {
	var result engine.Value
	for _, v := range out {
		if v.Type() == errorType {
			if !v.IsNil() {
				return nil, v.Interface().(error)
			}
			continue
		}
		if v.Kind() == reflect.Interface && v.IsNil() {
			result = e.Undefined()
			continue
		}
		conv, err := e.FromAny(v.Interface())
		if err != nil {
			return nil, err
		}
		result = conv
	}
	if result == nil {
		return e.Undefined(), nil
	}
	return result, nil
}
