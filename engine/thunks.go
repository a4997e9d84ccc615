package engine

import (
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
)

// HostFunction is a Go function callable from script. this is nil when the
// native side passed no receiver. args is borrowed from a scratch pool and
// must not be retained after the function returns; the values in it may be.
//
// A returned error is thrown into the calling script. A nil Value returns
// undefined.
type HostFunction func(callingEngine *Engine, asConstructor bool, this Value, args []Value) (Value, error)

// callbackThunk pairs a host function with the engine that created it. The
// arena slot is the only strong reference; native code sees just its id.
type callbackThunk struct {
	fn     HostFunction
	engine weak.Pointer[Engine]
	name   string
}

var callbackThunks = resource.NewSlots[*callbackThunk]()

// nativeCallback is the single callback every host function is created with.
var nativeCallback abi.NativeFunctionCallback = nativeTrampoline

// CreateFunction exposes fn to script as an anonymous function.
func (e *Engine) CreateFunction(fn HostFunction) (*Function, error) {
	return e.createFunction("", fn)
}

// CreateNamedFunction exposes fn to script as a function called name.
func (e *Engine) CreateNamedFunction(name string, fn HostFunction) (*Function, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseCallback, "function name is empty")
	}
	return e.createFunction(name, fn)
}

func (e *Engine) createFunction(name string, fn HostFunction) (*Function, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseCallback, "host function is nil")
	}
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	id, err := e.registerThunk(&callbackThunk{fn: fn, engine: e.self, name: name})
	if err != nil {
		return nil, err
	}

	var ref abi.Ref
	var code abi.ErrorCode
	if name == "" {
		ref, code = e.api.CreateFunction(nativeCallback, uintptr(id))
	} else {
		nameRef, c := e.api.CreateString(name)
		if c != abi.NoError {
			e.unregisterThunk(id)
			return nil, c.Err("CreateString")
		}
		ref, code = e.api.CreateNamedFunction(nameRef, nativeCallback, uintptr(id))
		e.api.Release(nameRef)
	}
	if err := e.check("CreateFunction", code); err != nil {
		e.unregisterThunk(id)
		return nil, err
	}

	obj, err := e.wrapObject(ref)
	if err != nil {
		return nil, err
	}
	fnObj, ok := obj.(*Function)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseCallback, "function", obj.Type().String())
	}
	Logger().Debug("host function registered", zap.String("name", name), zap.Uint32("thunk", uint32(id)))
	return fnObj, nil
}

func (e *Engine) registerThunk(t *callbackThunk) (resource.Handle, error) {
	id, err := callbackThunks.Insert(t)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCallback, errors.KindRegistration, err, "allocate callback thunk")
	}
	e.thunkMu.Lock()
	e.thunks = append(e.thunks, id)
	e.thunkMu.Unlock()
	return id, nil
}

func (e *Engine) unregisterThunk(id resource.Handle) {
	callbackThunks.Remove(id)
	e.thunkMu.Lock()
	for i, h := range e.thunks {
		if h == id {
			e.thunks = append(e.thunks[:i], e.thunks[i+1:]...)
			break
		}
	}
	e.thunkMu.Unlock()
}

// freeThunks drops every thunk the engine created. Script functions that
// outlive the engine then resolve to nothing and return undefined.
func (e *Engine) freeThunks() {
	e.thunkMu.Lock()
	ids := e.thunks
	e.thunks = nil
	e.thunkMu.Unlock()
	for _, id := range ids {
		callbackThunks.Remove(id)
	}
}

// ThunkCount reports the number of live callback thunks owned by e.
func (e *Engine) ThunkCount() int {
	e.thunkMu.Lock()
	defer e.thunkMu.Unlock()
	return len(e.thunks)
}

// nativeTrampoline is the entry point for every call from script into a
// host function. Nothing may panic across it: failures of the host function
// become script exceptions, failures of the trampoline itself return 0.
func nativeTrampoline(callee abi.Ref, asConstructor bool, args []abi.Ref, argCount uint16, state uintptr) (result abi.Ref) {
	defer func() {
		if x := recover(); x != nil {
			Logger().Warn("native trampoline failed", zap.Any("panic", x), zap.Uintptr("thunk", state))
			result = abi.Invalid
		}
	}()

	t, ok := callbackThunks.Get(resource.Handle(state))
	if !ok {
		return abi.Invalid
	}
	e := t.engine.Value()
	if e == nil || e.closed.Load() {
		return abi.Invalid
	}

	n := min(int(argCount), len(args))
	var this Value
	if n >= 1 {
		v, err := e.wrapBorrowed(args[0])
		if err != nil {
			return e.raise(err)
		}
		this = v
	}

	params := e.values.borrow(max(n-1, 0))
	defer e.values.release(params)
	for i := 1; i < n; i++ {
		v, err := e.wrapBorrowed(args[i])
		if err != nil {
			return e.raise(err)
		}
		params[i-1] = v
	}

	out, err := invokeHost(t, e, asConstructor, this, params)
	if err != nil {
		return e.raise(err)
	}
	if out == nil {
		return e.undefined.Handle().Ref()
	}
	ref, err := e.refOf(out)
	if err != nil {
		return e.raise(err)
	}
	return ref
}

func invokeHost(t *callbackThunk, e *Engine, asConstructor bool, this Value, args []Value) (out Value, err error) {
	defer func() {
		if x := recover(); x != nil {
			Logger().Warn("host function panicked", zap.String("name", t.name), zap.Any("panic", x))
			err = errors.New(errors.PhaseCallback, errors.KindException).
				Op(t.name).
				Value(x).
				Detail("host function panicked: %v", x).
				Build()
		}
	}()
	return t.fn(e, asConstructor, this, args)
}

// raise installs err as the pending script exception and returns the
// undefined reference for the trampoline to hand back. A script error
// passing through host code is rethrown unchanged.
func (e *Engine) raise(err error) abi.Ref {
	var se *errors.ScriptError
	if errors.As(err, &se) {
		if v, ok := se.Value.(Value); ok && v.Handle().Valid() && v.Engine() == e {
			if serr := e.SetException(v, err); serr == nil {
				return e.undefined.Handle().Ref()
			}
		}
	}

	obj, cerr := e.CreateError(err.Error())
	if cerr != nil {
		Logger().Warn("cannot create error for host failure", zap.Error(cerr), zap.NamedError("cause", err))
		return abi.Invalid
	}
	if serr := e.SetException(obj, err); serr != nil {
		Logger().Warn("cannot raise host failure", zap.Error(serr), zap.NamedError("cause", err))
	}
	return e.undefined.Handle().Ref()
}
