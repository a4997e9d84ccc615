package abi

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
)

// guard runs fn as script on c. It refuses to start while an exception is
// pending or execution is disabled, and records any thrown value as the
// pending exception.
func (c *jsContext) guard(fn func() (goja.Value, error)) (v goja.Value, code ErrorCode) {
	if c.exception != nil {
		return nil, ErrorInExceptionState
	}
	if c.rt.disabled.Load() {
		return nil, ErrorInDisabledState
	}
	c.rt.enterScript()
	defer c.rt.leaveScript()
	defer func() {
		if x := recover(); x != nil {
			v = nil
			if thrown, ok := x.(goja.Value); ok {
				c.exception = thrown
				code = ErrorScriptException
				return
			}
			code = c.fail(panicError(x))
		}
	}()
	v, err := fn()
	if err != nil {
		return nil, c.fail(err)
	}
	return v, NoError
}

// fail records err as the pending exception and returns its status.
func (c *jsContext) fail(err error) ErrorCode {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrorScriptTerminated
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		c.exception = ex.Value()
		return ErrorScriptException
	}
	c.exception = c.vm.NewGoError(err)
	return ErrorScriptException
}

func panicError(x any) error {
	if err, ok := x.(error); ok {
		return err
	}
	return fmt.Errorf("%v", x)
}

// script runs fn under guard and returns a new reference to its result.
func (g *Goja) script(c *jsContext, fn func() (goja.Value, error)) (Ref, ErrorCode) {
	v, code := c.guard(fn)
	if code != NoError {
		return 0, code
	}
	return g.newRef(c, v)
}

func (c *jsContext) typeOf(v goja.Value) (ValueType, ErrorCode) {
	if v == nil || goja.IsUndefined(v) {
		return Undefined, NoError
	}
	if goja.IsNull(v) {
		return Null, NoError
	}
	switch x := v.(type) {
	case *goja.Symbol:
		return Symbol, NoError
	case *goja.Object:
		if _, ok := goja.AssertFunction(x); ok {
			return Function, NoError
		}
		k, err := c.helpers.kind(goja.Undefined(), x)
		if err != nil {
			Logger().Warn("value classification failed", zap.Error(err))
			return Object, NoError
		}
		return ValueType(k.ToInteger()), NoError
	}
	t := v.ExportType()
	if t == nil {
		return Undefined, NoError
	}
	switch t.Kind() {
	case reflect.Bool:
		return Boolean, NoError
	case reflect.String:
		return String, NoError
	}
	return Number, NoError
}

// GetValueType reports the kind of ref.
func (g *Goja) GetValueType(ref Ref) (ValueType, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return Undefined, code
	}
	v, code := g.lookup(c, ref)
	if code != NoError {
		return Undefined, code
	}
	return c.typeOf(v)
}

// StrictEquals compares two values with ===.
func (g *Goja) StrictEquals(a, b Ref) (bool, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return false, code
	}
	va, code := g.lookup(c, a)
	if code != NoError {
		return false, code
	}
	vb, code := g.lookup(c, b)
	if code != NoError {
		return false, code
	}
	return va.StrictEquals(vb), NoError
}

func (g *Goja) constant(pick func(c *jsContext) goja.Value) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	return g.newRef(c, pick(c))
}

func (g *Goja) GetUndefinedValue() (Ref, ErrorCode) {
	return g.constant(func(*jsContext) goja.Value { return goja.Undefined() })
}

func (g *Goja) GetNullValue() (Ref, ErrorCode) {
	return g.constant(func(*jsContext) goja.Value { return goja.Null() })
}

func (g *Goja) GetTrueValue() (Ref, ErrorCode) {
	return g.constant(func(c *jsContext) goja.Value { return c.vm.ToValue(true) })
}

func (g *Goja) GetFalseValue() (Ref, ErrorCode) {
	return g.constant(func(c *jsContext) goja.Value { return c.vm.ToValue(false) })
}

func (g *Goja) GetGlobalObject() (Ref, ErrorCode) {
	return g.constant(func(c *jsContext) goja.Value { return c.vm.GlobalObject() })
}

func (g *Goja) BoolToBoolean(b bool) (Ref, ErrorCode) {
	return g.constant(func(c *jsContext) goja.Value { return c.vm.ToValue(b) })
}

func (g *Goja) DoubleToNumber(f float64) (Ref, ErrorCode) {
	return g.constant(func(c *jsContext) goja.Value { return c.vm.ToValue(f) })
}

func (g *Goja) IntToNumber(i int32) (Ref, ErrorCode) {
	return g.constant(func(c *jsContext) goja.Value { return c.vm.ToValue(int64(i)) })
}

func (g *Goja) CreateString(s string) (Ref, ErrorCode) {
	return g.constant(func(c *jsContext) goja.Value { return c.vm.ToValue(s) })
}

// typed resolves ref and requires it to be of type want.
func (g *Goja) typed(ref Ref, want ValueType) (goja.Value, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return nil, code
	}
	v, code := g.lookup(c, ref)
	if code != NoError {
		return nil, code
	}
	got, code := c.typeOf(v)
	if code != NoError {
		return nil, code
	}
	if got != want {
		return nil, ErrorInvalidArgument
	}
	return v, NoError
}

func (g *Goja) BooleanToBool(ref Ref) (bool, ErrorCode) {
	v, code := g.typed(ref, Boolean)
	if code != NoError {
		return false, code
	}
	return v.ToBoolean(), NoError
}

func (g *Goja) NumberToDouble(ref Ref) (float64, ErrorCode) {
	v, code := g.typed(ref, Number)
	if code != NoError {
		return 0, code
	}
	return v.ToFloat(), NoError
}

func (g *Goja) NumberToInt(ref Ref) (int32, ErrorCode) {
	v, code := g.typed(ref, Number)
	if code != NoError {
		return 0, code
	}
	return int32(v.ToInteger()), NoError
}

func (g *Goja) StringValue(ref Ref) (string, ErrorCode) {
	v, code := g.typed(ref, String)
	if code != NoError {
		return "", code
	}
	return v.String(), NoError
}

// convert applies a prelude conversion, which may run user script
// (toString/valueOf).
func (g *Goja) convert(ref Ref, pick func(h *helpers) goja.Callable) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	v, code := g.lookup(c, ref)
	if code != NoError {
		return 0, code
	}
	return g.script(c, func() (goja.Value, error) {
		return pick(c.helpers)(goja.Undefined(), v)
	})
}

func (g *Goja) ConvertValueToString(ref Ref) (Ref, ErrorCode) {
	return g.convert(ref, func(h *helpers) goja.Callable { return h.toStr })
}

func (g *Goja) ConvertValueToNumber(ref Ref) (Ref, ErrorCode) {
	return g.convert(ref, func(h *helpers) goja.Callable { return h.toNum })
}

func (g *Goja) ConvertValueToBoolean(ref Ref) (Ref, ErrorCode) {
	return g.convert(ref, func(h *helpers) goja.Callable { return h.toBool })
}
