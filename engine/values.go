package engine

import (
	"math"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
)

// ValueType is the engine-reported kind of a value.
type ValueType = abi.ValueType

// Value is a script value held by the host. Every Value owns one native
// reference, given back by Release or when the Value is collected.
type Value interface {
	Type() ValueType
	Handle() *ValueHandle
	// Engine returns the owning engine, or nil once it has been collected.
	Engine() *Engine
	Release()
}

// ObjectLike is implemented by every value with an object representation.
type ObjectLike interface {
	Value
	GetProperty(name string) (Value, error)
	SetProperty(name string, v Value) error
	HasProperty(name string) (bool, error)
	DeleteProperty(name string) (bool, error)
	Get(key Value) (Value, error)
	Set(key, v Value) error
	Prototype() (ObjectLike, error)
	SetPrototype(proto ObjectLike) error
	Keys() ([]string, error)
	object() *Object
}

// Callable is implemented by functions.
type Callable interface {
	ObjectLike
	Call(this Value, args ...Value) (Value, error)
	Construct(args ...Value) (ObjectLike, error)
}

// Indexable is implemented by values with integer-indexed elements.
type Indexable interface {
	ObjectLike
	Length() (int, error)
	GetAt(i int) (Value, error)
	SetAt(i int, v Value) error
}

var (
	_ Callable  = (*Function)(nil)
	_ Indexable = (*Array)(nil)
	_ Indexable = (*TypedArray)(nil)
)

type value struct {
	h   *ValueHandle
	typ ValueType
}

func (v *value) Type() ValueType      { return v.typ }
func (v *value) Handle() *ValueHandle { return v.h }
func (v *value) Engine() *Engine      { return v.h.Engine() }
func (v *value) Release()             { v.h.Release() }

func (v *value) ref() abi.Ref { return v.h.Ref() }

// enter acquires the owning engine's context for one operation on v.
func (v *value) enter(op string) (*Engine, *ExecutionContext, error) {
	e := v.h.Engine()
	if e == nil {
		return nil, nil, errors.Disposed(errors.PhaseContext, "engine")
	}
	if !v.h.Valid() {
		return nil, nil, errors.New(errors.PhaseFactory, errors.KindDisposed).
			Op(op).
			Detail("value used after release").
			Build()
	}
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, nil, err
	}
	return e, tok, nil
}

// Primitive is an undefined, boolean, number or string value.
type Primitive struct{ value }

// Symbol is a script symbol.
type Symbol struct{ value }

// Object is a script object. Null and error values are Objects too.
type Object struct{ value }

type (
	Array       struct{ Object }
	Function    struct{ Object }
	ArrayBuffer struct{ Object }
	TypedArray  struct{ Object }
	DataView    struct{ Object }
)

func (o *Object) object() *Object { return o }

func (o *Object) GetProperty(name string) (Value, error) {
	e, tok, err := o.enter("GetProperty")
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := e.api.GetProperty(o.ref(), name)
	if err := e.check("GetProperty", code); err != nil {
		return nil, err
	}
	return e.wrapValue(ref)
}

func (o *Object) SetProperty(name string, v Value) error {
	e, tok, err := o.enter("SetProperty")
	if err != nil {
		return err
	}
	defer tok.Close()

	ref, err := e.refOf(v)
	if err != nil {
		return err
	}
	return e.check("SetProperty", e.api.SetProperty(o.ref(), name, ref))
}

// HasProperty reports whether name is on o or its prototype chain.
func (o *Object) HasProperty(name string) (bool, error) {
	e, tok, err := o.enter("HasProperty")
	if err != nil {
		return false, err
	}
	defer tok.Close()

	has, code := e.api.HasProperty(o.ref(), name)
	return has, e.check("HasProperty", code)
}

func (o *Object) DeleteProperty(name string) (bool, error) {
	e, tok, err := o.enter("DeleteProperty")
	if err != nil {
		return false, err
	}
	defer tok.Close()

	ok, code := e.api.DeleteProperty(o.ref(), name)
	return ok, e.check("DeleteProperty", code)
}

// Get reads o[key] for any key value, symbols included.
func (o *Object) Get(key Value) (Value, error) {
	e, tok, err := o.enter("Get")
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	k, err := e.refOf(key)
	if err != nil {
		return nil, err
	}
	ref, code := e.api.GetIndexedProperty(o.ref(), k)
	if err := e.check("GetIndexedProperty", code); err != nil {
		return nil, err
	}
	return e.wrapValue(ref)
}

func (o *Object) Set(key, v Value) error {
	e, tok, err := o.enter("Set")
	if err != nil {
		return err
	}
	defer tok.Close()

	k, err := e.refOf(key)
	if err != nil {
		return err
	}
	ref, err := e.refOf(v)
	if err != nil {
		return err
	}
	return e.check("SetIndexedProperty", e.api.SetIndexedProperty(o.ref(), k, ref))
}

// Prototype returns o's prototype; an object without one yields the null
// object.
func (o *Object) Prototype() (ObjectLike, error) {
	e, tok, err := o.enter("Prototype")
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := e.api.GetPrototype(o.ref())
	if err := e.check("GetPrototype", code); err != nil {
		return nil, err
	}
	return e.wrapObject(ref)
}

// SetPrototype replaces o's prototype; nil sets it to null.
func (o *Object) SetPrototype(proto ObjectLike) error {
	e, tok, err := o.enter("SetPrototype")
	if err != nil {
		return err
	}
	defer tok.Close()

	p := e.null.ref()
	if proto != nil {
		if p, err = e.refOf(proto); err != nil {
			return err
		}
	}
	return e.check("SetPrototype", e.api.SetPrototype(o.ref(), p))
}

// Keys returns o's own string property names.
func (o *Object) Keys() ([]string, error) {
	e, tok, err := o.enter("Keys")
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := e.api.GetOwnPropertyNames(o.ref())
	if err := e.check("GetOwnPropertyNames", code); err != nil {
		return nil, err
	}
	names, err := e.wrapArray(ref)
	if err != nil {
		return nil, err
	}
	defer names.Release()

	vals, err := names.Values()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(vals))
	for i, v := range vals {
		if keys[i], err = e.ToString(v); err != nil {
			return nil, err
		}
		v.Release()
	}
	return keys, nil
}

func (o *Object) length() (int, error) {
	v, err := o.GetProperty("length")
	if err != nil {
		return 0, err
	}
	defer v.Release()
	n, err := o.Engine().ToFloat64(v)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (o *Object) at(i int) (Value, error) {
	e, tok, err := o.enter("GetAt")
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	if i < 0 {
		return nil, errors.OutOfBounds(errors.PhaseScript, nil, i, -1)
	}
	idx, code := e.api.DoubleToNumber(float64(i))
	if code != abi.NoError {
		return nil, code.Err("DoubleToNumber")
	}
	defer e.api.Release(idx)

	ref, code := e.api.GetIndexedProperty(o.ref(), idx)
	if err := e.check("GetIndexedProperty", code); err != nil {
		return nil, err
	}
	return e.wrapValue(ref)
}

func (o *Object) setAt(i int, v Value) error {
	e, tok, err := o.enter("SetAt")
	if err != nil {
		return err
	}
	defer tok.Close()

	if i < 0 {
		return errors.OutOfBounds(errors.PhaseScript, nil, i, -1)
	}
	ref, err := e.refOf(v)
	if err != nil {
		return err
	}
	idx, code := e.api.DoubleToNumber(float64(i))
	if code != abi.NoError {
		return code.Err("DoubleToNumber")
	}
	defer e.api.Release(idx)
	return e.check("SetIndexedProperty", e.api.SetIndexedProperty(o.ref(), idx, ref))
}

func (a *Array) Length() (int, error)       { return a.length() }
func (a *Array) GetAt(i int) (Value, error) { return a.at(i) }
func (a *Array) SetAt(i int, v Value) error { return a.setAt(i, v) }

// Push appends values and returns the new length.
func (a *Array) Push(values ...Value) (int, error) {
	out, err := a.callBuiltin("push", values...)
	if err != nil {
		return 0, err
	}
	defer out.Release()
	n, err := a.Engine().ToFloat64(out)
	return int(n), err
}

// Pop removes and returns the last element.
func (a *Array) Pop() (Value, error) {
	return a.callBuiltin("pop")
}

// Shift removes and returns the first element.
func (a *Array) Shift() (Value, error) {
	return a.callBuiltin("shift")
}

// Reverse reverses a in place.
func (a *Array) Reverse() error {
	out, err := a.callBuiltin("reverse")
	if err != nil {
		return err
	}
	out.Release()
	return nil
}

// Values returns every element in order.
func (a *Array) Values() ([]Value, error) {
	n, err := a.Length()
	if err != nil {
		return nil, err
	}
	out := make([]Value, n)
	for i := range out {
		if out[i], err = a.GetAt(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// callBuiltin calls Array.prototype[name] with a as this.
func (a *Array) callBuiltin(name string, args ...Value) (Value, error) {
	e := a.Engine()
	if e == nil {
		return nil, errors.Disposed(errors.PhaseContext, "engine")
	}
	fn, err := e.builtin("Array", name)
	if err != nil {
		return nil, err
	}
	defer fn.Release()
	return fn.Call(a, args...)
}

// builtin looks up ctor.prototype[name] on the global object each time so
// it sees the context's current builtins.
func (e *Engine) builtin(ctor, name string) (*Function, error) {
	c, err := e.global.GetProperty(ctor)
	if err != nil {
		return nil, err
	}
	defer c.Release()
	cf, ok := c.(*Function)
	if !ok {
		return nil, errors.NotFound(errors.PhaseScript, "builtin", ctor)
	}
	p, err := cf.GetProperty("prototype")
	if err != nil {
		return nil, err
	}
	defer p.Release()
	proto, ok := p.(ObjectLike)
	if !ok {
		return nil, errors.NotFound(errors.PhaseScript, "builtin", ctor+".prototype")
	}
	f, err := proto.GetProperty(name)
	if err != nil {
		return nil, err
	}
	fn, ok := f.(*Function)
	if !ok {
		f.Release()
		return nil, errors.NotFound(errors.PhaseScript, "builtin", ctor+".prototype."+name)
	}
	return fn, nil
}

// marshal builds the native argument vector: this, then args. The result
// comes from the ref pool and must be handed back with e.refs.release.
func (e *Engine) marshal(this Value, args []Value) ([]abi.Ref, error) {
	n := len(args) + 1
	if n > math.MaxUint16 {
		return nil, errors.OutOfBounds(errors.PhaseScript, []string{"args"}, n, math.MaxUint16)
	}
	refs := e.refs.borrow(n)
	var err error
	if refs[0], err = e.refOf(this); err != nil {
		e.refs.release(refs)
		return nil, err
	}
	for i, a := range args {
		if refs[i+1], err = e.refOf(a); err != nil {
			e.refs.release(refs)
			return nil, err
		}
	}
	return refs, nil
}

// Call invokes f with this (nil means undefined) and args.
func (f *Function) Call(this Value, args ...Value) (Value, error) {
	e, tok, err := f.enter("Call")
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	refs, err := e.marshal(this, args)
	if err != nil {
		return nil, err
	}
	defer e.refs.release(refs)

	ref, code := e.api.CallFunction(f.ref(), refs, uint16(len(refs)))
	if err := e.check("CallFunction", code); err != nil {
		return nil, err
	}
	return e.wrapValue(ref)
}

// Invoke calls f with an undefined this.
func (f *Function) Invoke(args ...Value) (Value, error) {
	return f.Call(nil, args...)
}

// Construct calls f as a constructor.
func (f *Function) Construct(args ...Value) (ObjectLike, error) {
	e, tok, err := f.enter("Construct")
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	refs, err := e.marshal(nil, args)
	if err != nil {
		return nil, err
	}
	defer e.refs.release(refs)

	ref, code := e.api.ConstructObject(f.ref(), refs, uint16(len(refs)))
	if err := e.check("ConstructObject", code); err != nil {
		return nil, err
	}
	return e.wrapObject(ref)
}

// Bind returns f bound to this and leading args, via Function.prototype.bind.
func (f *Function) Bind(this Value, args ...Value) (*Function, error) {
	e := f.Engine()
	if e == nil {
		return nil, errors.Disposed(errors.PhaseContext, "engine")
	}
	bind, err := e.builtin("Function", "bind")
	if err != nil {
		return nil, err
	}
	defer bind.Release()

	if this == nil {
		this = e.null
	}
	full := e.values.borrow(len(args) + 1)
	defer e.values.release(full)
	full[0] = this
	copy(full[1:], args)

	out, err := bind.Call(f, full...)
	if err != nil {
		return nil, err
	}
	bound, ok := out.(*Function)
	if !ok {
		out.Release()
		return nil, errors.TypeMismatch(errors.PhaseScript, "function", out.Type().String())
	}
	return bound, nil
}

// Apply calls f with this and the elements of args, via
// Function.prototype.apply. args may be nil.
func (f *Function) Apply(this Value, args *Array) (Value, error) {
	e := f.Engine()
	if e == nil {
		return nil, errors.Disposed(errors.PhaseContext, "engine")
	}
	apply, err := e.builtin("Function", "apply")
	if err != nil {
		return nil, err
	}
	defer apply.Release()

	if this == nil {
		this = e.null
	}
	if args == nil {
		return apply.Call(f, this)
	}
	return apply.Call(f, this, args)
}

// Bytes returns the buffer's backing storage. The slice aliases memory
// script can modify.
func (b *ArrayBuffer) Bytes() ([]byte, error) {
	e, tok, err := b.enter("Bytes")
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	data, code := e.api.GetArrayBufferStorage(b.ref())
	if code != abi.NoError {
		return nil, code.Err("GetArrayBufferStorage")
	}
	return data, nil
}

func (t *TypedArray) Length() (int, error)       { return t.length() }
func (t *TypedArray) GetAt(i int) (Value, error) { return t.at(i) }
func (t *TypedArray) SetAt(i int, v Value) error { return t.setAt(i, v) }

// Buffer returns the ArrayBuffer the view reads from.
func (t *TypedArray) Buffer() (*ArrayBuffer, error) {
	return bufferOf(&t.Object)
}

// Buffer returns the ArrayBuffer the view reads from.
func (d *DataView) Buffer() (*ArrayBuffer, error) {
	return bufferOf(&d.Object)
}

func bufferOf(o *Object) (*ArrayBuffer, error) {
	v, err := o.GetProperty("buffer")
	if err != nil {
		return nil, err
	}
	buf, ok := v.(*ArrayBuffer)
	if !ok {
		v.Release()
		return nil, errors.TypeMismatch(errors.PhaseScript, "ArrayBuffer", v.Type().String())
	}
	return buf, nil
}
