package abi

import (
	"fmt"
	"math"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// CreateFunction creates a script function that calls cb with state.
func (g *Goja) CreateFunction(cb NativeFunctionCallback, state uintptr) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	return g.createFunction(c, "", cb, state)
}

// CreateNamedFunction is CreateFunction with a name visible to script.
func (g *Goja) CreateNamedFunction(name Ref, cb NativeFunctionCallback, state uintptr) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	v, code := g.lookup(c, name)
	if code != NoError {
		return 0, code
	}
	return g.createFunction(c, v.String(), cb, state)
}

func (g *Goja) createFunction(c *jsContext, name string, cb NativeFunctionCallback, state uintptr) (Ref, ErrorCode) {
	if cb == nil {
		return 0, ErrorNullArgument
	}
	var self goja.Value
	call := func(fc goja.FunctionCall) goja.Value {
		return g.dispatch(c, self, cb, state, false, fc.This, fc.Arguments)
	}
	construct := func(fc goja.FunctionCall) goja.Value {
		return g.dispatch(c, self, cb, state, true, fc.This, fc.Arguments)
	}
	v, code := c.guard(func() (goja.Value, error) {
		return c.helpers.wrap(goja.Undefined(), c.vm.ToValue(call), c.vm.ToValue(construct), c.vm.ToValue(name))
	})
	if code != NoError {
		return 0, code
	}
	self = v
	return g.newRef(c, v)
}

// dispatch runs on the script goroutine whenever script calls a native
// function. Argument refs are temporaries released after cb returns; the
// result ref is borrowed. A pending exception set by cb is thrown into
// script.
func (g *Goja) dispatch(c *jsContext, callee goja.Value, cb NativeFunctionCallback, state uintptr, construct bool, this goja.Value, args []goja.Value) goja.Value {
	n := len(args) + 1
	if n > math.MaxUint16 {
		panic(c.vm.NewTypeError("too many arguments"))
	}

	refs := make([]Ref, n)
	var calleeRef Ref
	defer func() {
		g.releaseTemps(calleeRef, refs)
	}()

	calleeRef, _ = g.newRef(c, callee)
	refs[0], _ = g.newRef(c, this)
	for i, a := range args {
		refs[i+1], _ = g.newRef(c, a)
	}

	result := g.invokeNative(c, cb, calleeRef, construct, refs, state)

	out := goja.Undefined()
	if result != 0 {
		if v, code := g.lookup(c, result); code == NoError {
			out = v
		}
	}
	if c.rt.disabled.Load() {
		c.vm.Interrupt(ErrorInDisabledState)
	}
	if ex := c.exception; ex != nil {
		c.exception = nil
		panic(ex)
	}
	return out
}

// invokeNative calls cb and turns a Go panic escaping it into a pending
// script exception.
func (g *Goja) invokeNative(c *jsContext, cb NativeFunctionCallback, callee Ref, construct bool, refs []Ref, state uintptr) (result Ref) {
	defer func() {
		if x := recover(); x != nil {
			Logger().Warn("native callback panicked", zap.Any("panic", x))
			if c.exception == nil {
				c.exception = c.vm.NewGoError(fmt.Errorf("native callback panicked: %v", x))
			}
			result = 0
		}
	}()
	return cb(callee, construct, refs, uint16(len(refs)), state)
}

func (g *Goja) releaseTemps(callee Ref, refs []Ref) {
	if callee != 0 {
		g.values.Release(handleOf(callee))
	}
	for _, r := range refs {
		if r != 0 {
			g.values.Release(handleOf(r))
		}
	}
}

// args resolves args[:argCount] as this plus arguments.
func (g *Goja) args(c *jsContext, args []Ref, argCount uint16) (goja.Value, []goja.Value, ErrorCode) {
	if argCount == 0 || int(argCount) > len(args) {
		return nil, nil, ErrorInvalidArgument
	}
	this, code := g.lookup(c, args[0])
	if code != NoError {
		return nil, nil, code
	}
	vals := make([]goja.Value, argCount-1)
	for i := range vals {
		v, code := g.lookup(c, args[i+1])
		if code != NoError {
			return nil, nil, code
		}
		vals[i] = v
	}
	return this, vals, NoError
}

// CallFunction calls fn with args[0] as this and args[1:argCount] as
// arguments.
func (g *Goja) CallFunction(fn Ref, args []Ref, argCount uint16) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	fv, code := g.lookup(c, fn)
	if code != NoError {
		return 0, code
	}
	callable, ok := goja.AssertFunction(fv)
	if !ok {
		return 0, ErrorInvalidArgument
	}
	this, vals, code := g.args(c, args, argCount)
	if code != NoError {
		return 0, code
	}
	return g.script(c, func() (goja.Value, error) {
		return callable(this, vals...)
	})
}

// ConstructObject calls fn as a constructor; args[0] is ignored as this.
func (g *Goja) ConstructObject(fn Ref, args []Ref, argCount uint16) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	fv, code := g.lookup(c, fn)
	if code != NoError {
		return 0, code
	}
	if _, ok := goja.AssertFunction(fv); !ok {
		return 0, ErrorInvalidArgument
	}
	_, vals, code := g.args(c, args, argCount)
	if code != NoError {
		return 0, code
	}
	return g.script(c, func() (goja.Value, error) {
		obj, err := c.vm.New(fv, vals...)
		if err != nil {
			return nil, err
		}
		return obj, nil
	})
}
