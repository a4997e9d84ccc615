package engine

import (
	"reflect"
	"sync"
	"unsafe"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
)

// FinalizeCallback receives the payload of an external object once the
// runtime has collected it or its engine has closed. It runs on an
// arbitrary goroutine and must not call into the engine. A weakly held
// payload that is already gone is passed as nil.
type FinalizeCallback func(payload any)

// externalThunk is the host side of one external object.
type externalThunk struct {
	engine   weak.Pointer[Engine]
	strong   any
	weak     func() any
	finalize FinalizeCallback
	key      any
	id       resource.Handle
}

func (t *externalThunk) payload() any {
	if t.strong != nil {
		return t.strong
	}
	if t.weak != nil {
		return t.weak()
	}
	return nil
}

var externalThunks = resource.NewSlots[*externalThunk]()

// externalFinalizer is the single finalize callback for every external
// object.
var externalFinalizer abi.FinalizeCallback = finalizeTrampoline

// externalEntry maps a payload identity to the wrapper created for it.
type externalEntry struct {
	wrapper weak.Pointer[Object]
	id      resource.Handle
}

// externalRegistry tracks an engine's live external objects. It is touched
// from finalizers, so every access holds mu.
type externalRegistry struct {
	live  map[resource.Handle]*externalThunk
	byKey map[any]*externalEntry
	mu    sync.Mutex
}

func newExternalRegistry() externalRegistry {
	return externalRegistry{
		live:  make(map[resource.Handle]*externalThunk),
		byKey: make(map[any]*externalEntry),
	}
}

// lookup returns the wrapper still alive for key, if any.
func (r *externalRegistry) lookup(key any) *Object {
	if key == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ent := r.byKey[key]
	if ent == nil {
		return nil
	}
	if obj := ent.wrapper.Value(); obj != nil && obj.h.Valid() {
		return obj
	}
	return nil
}

func (r *externalRegistry) add(t *externalThunk, obj *Object) {
	r.mu.Lock()
	r.live[t.id] = t
	if t.key != nil {
		r.byKey[t.key] = &externalEntry{wrapper: weak.Make(obj), id: t.id}
	}
	r.mu.Unlock()
}

func (r *externalRegistry) forget(t *externalThunk) {
	r.mu.Lock()
	delete(r.live, t.id)
	if t.key != nil {
		if ent := r.byKey[t.key]; ent != nil && ent.id == t.id {
			delete(r.byKey, t.key)
		}
	}
	r.mu.Unlock()
}

func (r *externalRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// identityKey identifies the referent of a reference-shaped payload. Slices
// are identified by their backing array and length.
type identityKey struct {
	typ reflect.Type
	ptr unsafe.Pointer
	len int
}

// payloadKey returns the dedup key of payload, or nil when payload is a
// plain value with no identity.
func payloadKey(payload any) any {
	v := reflect.ValueOf(payload)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if v.IsNil() {
			return nil
		}
		return identityKey{typ: v.Type(), ptr: v.UnsafePointer()}
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		return identityKey{typ: v.Type(), ptr: v.UnsafePointer(), len: v.Len()}
	}
	return nil
}

// CreateExternalObject wraps payload in a script object. The engine holds
// payload strongly until the object is finalized. Wrapping the same
// pointer, map, channel, func or slice again returns the wrapper already
// handed out while it is still alive; other values always get a new object.
func (e *Engine) CreateExternalObject(payload any, finalize FinalizeCallback) (*Object, error) {
	if payload == nil {
		return nil, errors.InvalidInput(errors.PhaseExternal, "external payload is nil")
	}
	return e.createExternal(&externalThunk{
		engine:   e.self,
		strong:   payload,
		finalize: finalize,
		key:      payloadKey(payload),
	})
}

// CreateWeakExternalObject is CreateExternalObject without keeping payload
// alive. Once payload is collected, GetExternalData and the finalize
// callback see nil.
func CreateWeakExternalObject[T any](e *Engine, payload *T, finalize FinalizeCallback) (*Object, error) {
	if payload == nil {
		return nil, errors.InvalidInput(errors.PhaseExternal, "external payload is nil")
	}
	wp := weak.Make(payload)
	return e.createExternal(&externalThunk{
		engine: e.self,
		weak: func() any {
			if p := wp.Value(); p != nil {
				return p
			}
			return nil
		},
		finalize: finalize,
		key:      wp,
	})
}

func (e *Engine) createExternal(t *externalThunk) (*Object, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	if obj := e.externals.lookup(t.key); obj != nil {
		return obj, nil
	}

	id, err := externalThunks.Insert(t)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseExternal, errors.KindRegistration, err, "allocate external thunk")
	}
	t.id = id

	ref, code := e.api.CreateExternalObject(uintptr(id), externalFinalizer)
	if err := e.check("CreateExternalObject", code); err != nil {
		externalThunks.Remove(id)
		return nil, err
	}
	wrapped, err := e.wrapObject(ref)
	if err != nil {
		externalThunks.Remove(id)
		return nil, err
	}
	obj, ok := wrapped.(*Object)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseExternal, "object", wrapped.Type().String())
	}
	e.externals.add(t, obj)
	Logger().Debug("external object created", zap.Uint32("thunk", uint32(id)))
	return obj, nil
}

// GetExternalData returns the payload of an external object created by e.
// It reports false for any other value.
func (e *Engine) GetExternalData(v Value) (any, bool) {
	if v == nil || v.Engine() != e || !v.Handle().Valid() {
		return nil, false
	}
	if _, ok := v.(ObjectLike); !ok {
		return nil, false
	}
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, false
	}
	defer tok.Close()

	data, code := e.api.GetExternalData(v.Handle().Ref())
	if code != abi.NoError {
		return nil, false
	}
	t, ok := externalThunks.Get(resource.Handle(data))
	if !ok {
		return nil, false
	}
	p := t.payload()
	return p, p != nil
}

// ExternalCount reports the number of external objects of e that have not
// been finalized.
func (e *Engine) ExternalCount() int {
	return e.externals.count()
}

// finalizeTrampoline runs when the runtime finalizes an external object.
// The payload is handed to the callback even when the engine is gone.
func finalizeTrampoline(data uintptr) {
	t, ok := externalThunks.Remove(resource.Handle(data))
	if !ok {
		return
	}
	if t.finalize != nil {
		t.finalize(t.payload())
	}
	if e := t.engine.Value(); e != nil && !e.closed.Load() {
		e.externals.forget(t)
	}
	Logger().Debug("external object finalized", zap.Uint32("thunk", uint32(data)))
}
