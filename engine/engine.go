package engine

import (
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
)

// Engine is one script context on a native runtime. It owns the context's
// native reference and everything needed to use it safely from Go: the
// deferred release queue, callback thunks, external object bookkeeping,
// scratch buffers and the cached singleton values.
//
// An engine may be used from any goroutine, but its runtime can only be
// current on one goroutine at a time.
type Engine struct {
	api  abi.API
	rt   abi.Runtime
	ctx  abi.Context
	self weak.Pointer[Engine]

	closed atomic.Bool

	releases  releaseQueue
	refs      *scratchPool[abi.Ref]
	values    *scratchPool[Value]
	externals externalRegistry

	thunkMu sync.Mutex
	thunks  []resource.Handle

	undefined  Value
	null       *Object
	trueValue  Value
	falseValue Value
	global     *Object

	hookMu        sync.Mutex
	hooks         []func(*Engine, *errors.ScriptError)
	lastException *errors.ScriptError
}

// New creates an engine with a fresh context on rt.
func New(api abi.API, rt abi.Runtime) (*Engine, error) {
	ctx, code := api.CreateContext(rt)
	if code != abi.NoError {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindStatus, code.Err("CreateContext"), "create engine")
	}

	e := &Engine{
		api:       api,
		rt:        rt,
		ctx:       ctx,
		refs:      newScratchPool[abi.Ref](),
		values:    newScratchPool[Value](),
		externals: newExternalRegistry(),
	}
	e.self = weak.Make(e)

	tok, err := e.AcquireContext()
	if err != nil {
		e.closed.Store(true)
		api.ContextRelease(ctx)
		return nil, err
	}
	err = e.initSingletons()
	tok.Close()
	if err != nil {
		e.closed.Store(true)
		api.ContextRelease(ctx)
		return nil, err
	}

	Logger().Debug("engine created", zap.Uintptr("context", uintptr(ctx)))
	return e, nil
}

func (e *Engine) initSingletons() error {
	pinned := func(op string, get func() (abi.Ref, abi.ErrorCode)) (Value, error) {
		ref, code := get()
		if code != abi.NoError {
			return nil, code.Err(op)
		}
		v, err := e.wrapValue(ref)
		if err != nil {
			return nil, err
		}
		v.Handle().pinned = true
		return v, nil
	}

	var err error
	if e.undefined, err = pinned("GetUndefinedValue", e.api.GetUndefinedValue); err != nil {
		return err
	}
	if e.trueValue, err = pinned("GetTrueValue", e.api.GetTrueValue); err != nil {
		return err
	}
	if e.falseValue, err = pinned("GetFalseValue", e.api.GetFalseValue); err != nil {
		return err
	}
	null, err := pinned("GetNullValue", e.api.GetNullValue)
	if err != nil {
		return err
	}
	global, err := pinned("GetGlobalObject", e.api.GetGlobalObject)
	if err != nil {
		return err
	}
	e.null = null.(*Object)
	e.global = global.(*Object)
	return nil
}

// Close destroys the engine's context. Finalize callbacks of its external
// objects run before Close returns. Using the engine afterwards panics.
func (e *Engine) Close() error {
	if e.closed.Load() {
		return nil
	}
	if e.inUseHere() {
		return errors.Protocol(errors.PhaseContext, "engine closed while its context is in use")
	}

	tok, err := e.AcquireContext()
	if err != nil {
		return err
	}
	e.releases.flush(e.api)
	tok.Close()

	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.freeThunks()

	if _, code := e.api.ContextRelease(e.ctx); code != abi.NoError {
		return code.Err("ContextRelease")
	}
	Logger().Debug("engine closed", zap.Uintptr("context", uintptr(e.ctx)))
	return nil
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

func (e *Engine) mustBeOpen(op string) {
	if e.closed.Load() {
		panic(errors.New(errors.PhaseContext, errors.KindDisposed).
			Op(op).
			Detail("engine used after it was closed").
			Build())
	}
}

// API returns the native call surface the engine runs on.
func (e *Engine) API() abi.API {
	return e.api
}

// check converts a status code into an error. A code reporting a script
// exception fetches and clears the exception so it never leaks into the
// next call.
func (e *Engine) check(op string, code abi.ErrorCode) error {
	switch code {
	case abi.NoError:
		return nil
	case abi.ErrorScriptException, abi.ErrorScriptCompile:
		return e.takeException(op, code)
	}
	return code.Err(op)
}

func (e *Engine) takeException(op string, code abi.ErrorCode) error {
	ref, c := e.api.GetAndClearException()
	if c != abi.NoError {
		return code.Err(op)
	}
	v, err := e.wrapValue(ref)
	if err != nil {
		return err
	}
	se := &errors.ScriptError{Value: v, Cause: code.Err(op)}
	e.describe(ref, se)
	e.notify(se)
	return se
}

// describe fills name, message and stack from the raw exception value.
func (e *Engine) describe(ref abi.Ref, se *errors.ScriptError) {
	typ, code := e.api.GetValueType(ref)
	if code != abi.NoError {
		return
	}
	switch typ {
	case abi.Object, abi.Error, abi.Function, abi.Array:
		se.Name = e.stringProperty(ref, "name")
		se.Message = e.stringProperty(ref, "message")
		se.Stack = e.stringProperty(ref, "stack")
		if se.Name == "" && se.Message == "" {
			se.Message = e.rawString(ref)
		}
	default:
		se.Message = e.rawString(ref)
	}
}

func (e *Engine) stringProperty(obj abi.Ref, name string) string {
	ref, code := e.api.GetProperty(obj, name)
	if code != abi.NoError {
		e.discardException()
		return ""
	}
	defer e.api.Release(ref)
	if typ, _ := e.api.GetValueType(ref); typ == abi.Undefined {
		return ""
	}
	return e.rawString(ref)
}

func (e *Engine) rawString(ref abi.Ref) string {
	s, code := e.api.ConvertValueToString(ref)
	if code != abi.NoError {
		e.discardException()
		return ""
	}
	defer e.api.Release(s)
	out, _ := e.api.StringValue(s)
	return out
}

func (e *Engine) discardException() {
	if ref, code := e.api.GetAndClearException(); code == abi.NoError {
		e.api.Release(ref)
	}
}

// OnRuntimeException registers fn to be called whenever a script exception
// surfaces from a native call.
func (e *Engine) OnRuntimeException(fn func(*Engine, *errors.ScriptError)) {
	e.hookMu.Lock()
	e.hooks = append(e.hooks, fn)
	e.hookMu.Unlock()
}

func (e *Engine) notify(se *errors.ScriptError) {
	e.hookMu.Lock()
	hooks := e.hooks
	e.hookMu.Unlock()
	for _, fn := range hooks {
		fn(e, se)
	}
}

// Undefined returns the cached undefined value. Singletons are never released.
func (e *Engine) Undefined() Value { return e.undefined }

// Null returns the cached null value.
func (e *Engine) Null() *Object { return e.null }

// True returns the cached true value.
func (e *Engine) True() Value { return e.trueValue }

// False returns the cached false value.
func (e *Engine) False() Value { return e.falseValue }

// GlobalObject returns the context's global object.
func (e *Engine) GlobalObject() *Object { return e.global }

// RunIdleWork lets the runtime do idle-time housekeeping and returns how
// long the host may wait before calling it again.
func (e *Engine) RunIdleWork() (time.Duration, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return 0, err
	}
	defer tok.Close()

	next, code := e.api.Idle()
	if code != abi.NoError {
		return 0, code.Err("Idle")
	}
	return time.Duration(next) * time.Millisecond, nil
}

// CollectGarbage asks the runtime for a full collection.
func (e *Engine) CollectGarbage() error {
	e.mustBeOpen("CollectGarbage")
	if code := e.api.CollectGarbage(e.rt); code != abi.NoError {
		return code.Err("CollectGarbage")
	}
	return nil
}

// PendingReleases reports the number of references waiting for the next
// context acquisition.
func (e *Engine) PendingReleases() int {
	return e.releases.pending()
}

// HasGlobalVariable reports whether the global object has property name.
func (e *Engine) HasGlobalVariable(name string) (bool, error) {
	return e.global.HasProperty(name)
}

// GetGlobalVariable reads property name of the global object.
func (e *Engine) GetGlobalVariable(name string) (Value, error) {
	return e.global.GetProperty(name)
}

// SetGlobalVariable assigns v to property name of the global object.
func (e *Engine) SetGlobalVariable(name string, v Value) error {
	if v == nil {
		return errors.InvalidInput(errors.PhaseScript, "global "+name+": nil value")
	}
	return e.global.SetProperty(name, v)
}

// CallGlobalFunction calls the global function name with the global object
// as this.
func (e *Engine) CallGlobalFunction(name string, args ...Value) (Value, error) {
	v, err := e.GetGlobalVariable(name)
	if err != nil {
		return nil, err
	}
	fn, ok := v.(*Function)
	if !ok {
		return nil, errors.New(errors.PhaseScript, errors.KindTypeMismatch).
			Path(name).
			Detail("expected function, got %s", v.Type()).
			Build()
	}
	return fn.Call(e.global, args...)
}

// SetGlobalFunction exposes fn to script as the global function name.
func (e *Engine) SetGlobalFunction(name string, fn HostFunction) error {
	f, err := e.CreateNamedFunction(name, fn)
	if err != nil {
		return err
	}
	return e.global.SetProperty(name, f)
}
