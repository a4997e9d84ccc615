package abi

import (
	"runtime"
	"sync/atomic"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// external is the bookkeeping for one external object. It never references
// the object itself so the object stays collectable.
type external struct {
	ctx     *jsContext
	key     weak.Pointer[goja.Object]
	fn      FinalizeCallback
	cleanup runtime.Cleanup
	data    uintptr
	done    atomic.Bool
}

// finalize invokes the callback at most once.
func (e *external) finalize() {
	if !e.done.CompareAndSwap(false, true) {
		return
	}
	e.cleanup.Stop()
	if e.fn == nil {
		return
	}
	defer func() {
		if x := recover(); x != nil {
			Logger().Error("finalize callback panicked", zap.Any("panic", x), zap.Uintptr("data", e.data))
		}
	}()
	e.fn(e.data)
}

// collected runs on the cleanup goroutine once the object is unreachable.
func (e *external) collected() {
	c := e.ctx
	c.extMu.Lock()
	if c.externals != nil {
		delete(c.externals, e.key)
	}
	c.extMu.Unlock()
	e.finalize()
}

// CreateObject creates an empty object.
func (g *Goja) CreateObject() (Ref, ErrorCode) {
	return g.constant(func(c *jsContext) goja.Value { return c.vm.NewObject() })
}

// CreateExternalObject creates an object carrying data. finalize, if not
// nil, is called with data once the object is collected or its context is
// torn down.
func (g *Goja) CreateExternalObject(data uintptr, finalize FinalizeCallback) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	obj := c.vm.NewObject()
	ext := &external{ctx: c, key: weak.Make(obj), fn: finalize, data: data}
	ext.cleanup = runtime.AddCleanup(obj, (*external).collected, ext)

	c.extMu.Lock()
	if c.externals == nil {
		c.extMu.Unlock()
		ext.cleanup.Stop()
		return 0, ErrorInvalidArgument
	}
	c.externals[ext.key] = ext
	c.extMu.Unlock()

	return g.newRef(c, obj)
}

// GetExternalData returns the data of an external object.
func (g *Goja) GetExternalData(ref Ref) (uintptr, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	obj, code := g.lookupObject(c, ref)
	if code != NoError {
		return 0, code
	}
	c.extMu.Lock()
	ext, ok := c.externals[weak.Make(obj)]
	c.extMu.Unlock()
	if !ok {
		return 0, ErrorInvalidArgument
	}
	return ext.data, NoError
}

// ExternalCount reports the number of live external objects in the current
// context.
func (g *Goja) ExternalCount() (int, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	c.extMu.Lock()
	defer c.extMu.Unlock()
	return len(c.externals), NoError
}

// call resolves receiver and args in the current context and runs a helper.
func (g *Goja) call(pick func(h *helpers) goja.Callable, refs ...Ref) (*jsContext, goja.Value, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return nil, nil, code
	}
	var buf [3]goja.Value
	args := buf[:0]
	for i, r := range refs {
		if i == 0 {
			obj, code := g.lookupObject(c, r)
			if code != NoError {
				return nil, nil, code
			}
			args = append(args, obj)
			continue
		}
		v, code := g.lookup(c, r)
		if code != NoError {
			return nil, nil, code
		}
		args = append(args, v)
	}
	v, code := c.guard(func() (goja.Value, error) {
		return pick(c.helpers)(goja.Undefined(), args...)
	})
	return c, v, code
}

// named is like call but takes a property name for the second argument.
func (g *Goja) named(pick func(h *helpers) goja.Callable, obj Ref, name string, rest ...Ref) (*jsContext, goja.Value, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return nil, nil, code
	}
	o, code := g.lookupObject(c, obj)
	if code != NoError {
		return nil, nil, code
	}
	args := []goja.Value{o, c.vm.ToValue(name)}
	for _, r := range rest {
		v, code := g.lookup(c, r)
		if code != NoError {
			return nil, nil, code
		}
		args = append(args, v)
	}
	v, code := c.guard(func() (goja.Value, error) {
		return pick(c.helpers)(goja.Undefined(), args...)
	})
	return c, v, code
}

func (g *Goja) GetPrototype(obj Ref) (Ref, ErrorCode) {
	c, v, code := g.call(func(h *helpers) goja.Callable { return h.getProto }, obj)
	if code != NoError {
		return 0, code
	}
	return g.newRef(c, v)
}

// SetPrototype sets the prototype of obj to proto, which must be an object
// or null.
func (g *Goja) SetPrototype(obj, proto Ref) ErrorCode {
	_, _, code := g.call(func(h *helpers) goja.Callable { return h.setProto }, obj, proto)
	return code
}

func (g *Goja) GetProperty(obj Ref, name string) (Ref, ErrorCode) {
	c, v, code := g.named(func(h *helpers) goja.Callable { return h.getIndex }, obj, name)
	if code != NoError {
		return 0, code
	}
	return g.newRef(c, v)
}

func (g *Goja) SetProperty(obj Ref, name string, value Ref) ErrorCode {
	_, _, code := g.named(func(h *helpers) goja.Callable { return h.setIndex }, obj, name, value)
	return code
}

func (g *Goja) HasProperty(obj Ref, name string) (bool, ErrorCode) {
	_, v, code := g.named(func(h *helpers) goja.Callable { return h.has }, obj, name)
	if code != NoError {
		return false, code
	}
	return v.ToBoolean(), NoError
}

func (g *Goja) DeleteProperty(obj Ref, name string) (bool, ErrorCode) {
	_, v, code := g.named(func(h *helpers) goja.Callable { return h.del }, obj, name)
	if code != NoError {
		return false, code
	}
	return v.ToBoolean(), NoError
}

// GetOwnPropertyNames returns an array of obj's own string keys.
func (g *Goja) GetOwnPropertyNames(obj Ref) (Ref, ErrorCode) {
	c, v, code := g.call(func(h *helpers) goja.Callable { return h.names }, obj)
	if code != NoError {
		return 0, code
	}
	return g.newRef(c, v)
}

// GetIndexedProperty reads obj[index]; index may be any value, including a
// symbol.
func (g *Goja) GetIndexedProperty(obj, index Ref) (Ref, ErrorCode) {
	c, v, code := g.call(func(h *helpers) goja.Callable { return h.getIndex }, obj, index)
	if code != NoError {
		return 0, code
	}
	return g.newRef(c, v)
}

func (g *Goja) SetIndexedProperty(obj, index, value Ref) ErrorCode {
	_, _, code := g.call(func(h *helpers) goja.Callable { return h.setIndex }, obj, index, value)
	return code
}

// CreateArray creates an array with the given length.
func (g *Goja) CreateArray(length uint32) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	arr := c.vm.NewArray()
	if length > 0 {
		if err := arr.Set("length", length); err != nil {
			return 0, c.fail(err)
		}
	}
	return g.newRef(c, arr)
}

func (g *Goja) CreateArrayBuffer(length uint32) (Ref, ErrorCode) {
	return g.constant(func(c *jsContext) goja.Value {
		return c.vm.ToValue(c.vm.NewArrayBuffer(make([]byte, length)))
	})
}

// GetArrayBufferStorage returns the backing bytes of an ArrayBuffer. The
// slice aliases script-visible memory.
func (g *Goja) GetArrayBufferStorage(buf Ref) ([]byte, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return nil, code
	}
	obj, code := g.lookupObject(c, buf)
	if code != NoError {
		return nil, code
	}
	ab, ok := obj.Export().(goja.ArrayBuffer)
	if !ok {
		return nil, ErrorInvalidArgument
	}
	return ab.Bytes(), NoError
}

// CreateSymbol creates a symbol; description may be 0.
func (g *Goja) CreateSymbol(description Ref) (Ref, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	desc := goja.Undefined()
	if description != 0 {
		v, code := g.lookup(c, description)
		if code != NoError {
			return 0, code
		}
		desc = v
	}
	return g.script(c, func() (goja.Value, error) {
		return c.helpers.symbol(goja.Undefined(), desc)
	})
}
