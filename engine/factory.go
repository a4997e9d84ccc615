package engine

import (
	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
)

// The wrap functions adopt ref: the caller's reference moves into the new
// wrapper. They run with e's context current.

func (e *Engine) kindOf(ref abi.Ref) (ValueType, error) {
	kind, code := e.api.GetValueType(ref)
	if code != abi.NoError {
		e.api.Release(ref)
		return abi.Undefined, code.Err("GetValueType")
	}
	return kind, nil
}

// wrapValue accepts every kind of value.
func (e *Engine) wrapValue(ref abi.Ref) (Value, error) {
	kind, err := e.kindOf(ref)
	if err != nil {
		return nil, err
	}
	if obj := e.newObjectLike(ref, kind); obj != nil {
		return obj, nil
	}
	base := value{h: newHandle(e, ref), typ: kind}
	if kind == abi.Symbol {
		return &Symbol{base}, nil
	}
	return &Primitive{base}, nil
}

// wrapObject rejects primitives; asking for an object wrapper around one is
// a caller bug and panics.
func (e *Engine) wrapObject(ref abi.Ref) (ObjectLike, error) {
	kind, err := e.kindOf(ref)
	if err != nil {
		return nil, err
	}
	obj := e.newObjectLike(ref, kind)
	if obj == nil {
		e.api.Release(ref)
		panic(errors.New(errors.PhaseFactory, errors.KindProtocolViolation).
			Op("wrapObject").
			Detail("object wrapper requested for %s value", kind).
			Build())
	}
	return obj, nil
}

// wrapArray accepts arrays only and panics on anything else.
func (e *Engine) wrapArray(ref abi.Ref) (*Array, error) {
	kind, err := e.kindOf(ref)
	if err != nil {
		return nil, err
	}
	if kind != abi.Array {
		e.api.Release(ref)
		panic(errors.New(errors.PhaseFactory, errors.KindProtocolViolation).
			Op("wrapArray").
			Detail("array wrapper requested for %s value", kind).
			Build())
	}
	return e.newObjectLike(ref, kind).(*Array), nil
}

// wrapBorrowed wraps a reference the caller does not own by taking a
// reference of its own first.
func (e *Engine) wrapBorrowed(ref abi.Ref) (Value, error) {
	if _, code := e.api.AddRef(ref); code != abi.NoError {
		return nil, code.Err("AddRef")
	}
	return e.wrapValue(ref)
}

// newObjectLike returns nil for kinds without an object representation.
func (e *Engine) newObjectLike(ref abi.Ref, kind ValueType) ObjectLike {
	switch kind {
	case abi.Object, abi.Null, abi.Error:
		return &Object{value{h: newHandle(e, ref), typ: kind}}
	case abi.Array:
		return &Array{Object{value{h: newHandle(e, ref), typ: kind}}}
	case abi.Function:
		return &Function{Object{value{h: newHandle(e, ref), typ: kind}}}
	case abi.ArrayBuffer:
		return &ArrayBuffer{Object{value{h: newHandle(e, ref), typ: kind}}}
	case abi.TypedArray:
		return &TypedArray{Object{value{h: newHandle(e, ref), typ: kind}}}
	case abi.DataView:
		return &DataView{Object{value{h: newHandle(e, ref), typ: kind}}}
	}
	return nil
}

// refOf returns the native reference behind v for a call on e. nil means
// undefined.
func (e *Engine) refOf(v Value) (abi.Ref, error) {
	if v == nil {
		return e.undefined.Handle().Ref(), nil
	}
	h := v.Handle()
	if h.Engine() != e {
		return abi.Invalid, errors.InvalidInput(errors.PhaseFactory, "value belongs to another engine")
	}
	ref := h.Ref()
	if ref == abi.Invalid {
		return abi.Invalid, errors.Disposed(errors.PhaseFactory, "value")
	}
	return ref, nil
}
