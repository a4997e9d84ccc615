package abi

import (
	"github.com/dop251/goja"
)

func (g *Goja) createError(message Ref, pick func(h *helpers) goja.Value) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	msg, code := g.lookup(c, message)
	if code != NoError {
		return 0, code
	}
	ctor := pick(c.helpers)
	// construction must work even with an exception pending
	obj, err := c.vm.New(ctor, msg)
	if err != nil {
		return 0, c.fail(err)
	}
	return g.newRef(c, obj)
}

func (g *Goja) CreateError(message Ref) (Ref, ErrorCode) {
	return g.createError(message, func(h *helpers) goja.Value { return h.errCtor })
}

func (g *Goja) CreateRangeError(message Ref) (Ref, ErrorCode) {
	return g.createError(message, func(h *helpers) goja.Value { return h.rangeCtor })
}

func (g *Goja) CreateReferenceError(message Ref) (Ref, ErrorCode) {
	return g.createError(message, func(h *helpers) goja.Value { return h.refCtor })
}

func (g *Goja) CreateSyntaxError(message Ref) (Ref, ErrorCode) {
	return g.createError(message, func(h *helpers) goja.Value { return h.syntaxCtor })
}

func (g *Goja) CreateTypeError(message Ref) (Ref, ErrorCode) {
	return g.createError(message, func(h *helpers) goja.Value { return h.typeCtor })
}

func (g *Goja) CreateURIError(message Ref) (Ref, ErrorCode) {
	return g.createError(message, func(h *helpers) goja.Value { return h.uriCtor })
}

// HasException reports whether the current context has a pending exception.
func (g *Goja) HasException() (bool, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return false, code
	}
	return c.exception != nil, NoError
}

// GetAndClearException returns the pending exception and leaves the context
// in a normal state. It fails with ErrorInvalidArgument when nothing is
// pending.
func (g *Goja) GetAndClearException() (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	ex := c.exception
	if ex == nil {
		return 0, ErrorInvalidArgument
	}
	c.exception = nil
	return g.newRef(c, ex)
}

// SetException makes ref the pending exception. Inside a native callback
// the exception is thrown into script when the callback returns.
func (g *Goja) SetException(ref Ref) ErrorCode {
	c, code := g.enter()
	if code != NoError {
		return code
	}
	v, code := g.lookup(c, ref)
	if code != NoError {
		return code
	}
	c.exception = v
	return NoError
}

// compile parses script; a syntax error becomes the pending exception.
func (c *jsContext) compile(script, sourceURL string) (*goja.Program, ErrorCode) {
	if c.exception != nil {
		return nil, ErrorInExceptionState
	}
	prg, err := goja.Compile(sourceURL, script, false)
	if err != nil {
		ex, nerr := c.vm.New(c.helpers.syntaxCtor, c.vm.ToValue(err.Error()))
		if nerr != nil {
			return nil, c.fail(nerr)
		}
		c.exception = ex
		return nil, ErrorScriptCompile
	}
	return prg, NoError
}

// RunScript compiles and runs script in the global scope. sourceContext is
// an opaque cookie identifying the source to the host.
func (g *Goja) RunScript(script string, sourceContext uintptr, sourceURL string) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	prg, code := c.compile(script, sourceURL)
	if code != NoError {
		return 0, code
	}
	return g.script(c, func() (goja.Value, error) {
		return c.vm.RunProgram(prg)
	})
}

// ParseScript compiles script and returns a function that runs it in the
// global scope each time it is called.
func (g *Goja) ParseScript(script string, sourceContext uintptr, sourceURL string) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	prg, code := c.compile(script, sourceURL)
	if code != NoError {
		return 0, code
	}
	run := func(goja.FunctionCall) goja.Value {
		v, err := c.vm.RunProgram(prg)
		if err != nil {
			if ex, ok := err.(*goja.Exception); ok {
				panic(ex.Value())
			}
			panic(err)
		}
		return v
	}
	return g.newRef(c, c.vm.ToValue(run))
}
