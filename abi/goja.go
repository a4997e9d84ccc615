package abi

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
)

// Config configures a Goja backend.
type Config struct {
	// Modules are native modules available to require() in every context.
	Modules map[string]require.ModuleLoader

	// Console receives console output. Defaults to a printer that writes
	// to Logger().
	Console console.Printer
}

// Goja implements API on top of the goja interpreter. Each context owns one
// goja.Runtime; a runtime groups contexts that share attributes, execution
// state and goroutine affinity.
type Goja struct {
	cfg      Config
	runtimes *resource.Slots[*jsRuntime]
	contexts *resource.Slots[*jsContext]
	values   *resource.Slots[*valueEntry]

	mu      sync.Mutex
	current map[uint64]*jsContext
}

var _ API = (*Goja)(nil)

type jsRuntime struct {
	api      *Goja
	contexts map[*jsContext]struct{}
	handle   Runtime
	attrs    RuntimeAttributes
	// owner is the goroutine with one of this runtime's contexts current
	// or with script of this runtime on its stack.
	owner    uint64
	// running counts script frames of this runtime on the owner's stack.
	// Guarded by api.mu.
	running  int
	disabled atomic.Bool
	disposed bool
}

type jsContext struct {
	vm        *goja.Runtime
	rt        *jsRuntime
	helpers   *helpers
	exception goja.Value
	externals map[weak.Pointer[goja.Object]]*external
	extMu     sync.Mutex
	handle    Context
	disposed  bool
}

type valueEntry struct {
	ctx *jsContext
	v   goja.Value
}

// New creates a Goja backend.
func New(cfg Config) *Goja {
	if cfg.Console == nil {
		cfg.Console = zapPrinter{}
	}
	return &Goja{
		cfg:      cfg,
		runtimes: resource.NewSlots[*jsRuntime](),
		contexts: resource.NewSlots[*jsContext](),
		values:   resource.NewSlots[*valueEntry](),
		current:  make(map[uint64]*jsContext),
	}
}

// CreateRuntime creates a runtime with no contexts.
func (g *Goja) CreateRuntime(attrs RuntimeAttributes) (Runtime, ErrorCode) {
	rt := &jsRuntime{api: g, attrs: attrs, contexts: make(map[*jsContext]struct{})}
	h, err := g.runtimes.Insert(rt)
	if err != nil {
		return 0, insertFailure(err)
	}
	rt.handle = Runtime(h)
	Logger().Debug("runtime created", zap.Uintptr("runtime", uintptr(rt.handle)))
	return rt.handle, NoError
}

func (g *Goja) runtime(rt Runtime) (*jsRuntime, ErrorCode) {
	if rt == 0 {
		return nil, ErrorNullArgument
	}
	r, ok := g.runtimes.Get(resource.Handle(rt))
	if !ok {
		return nil, ErrorInvalidArgument
	}
	return r, NoError
}

// DisposeRuntime tears down the runtime and every context it owns. It fails
// with ErrorRuntimeInUse while any of its contexts is current.
func (g *Goja) DisposeRuntime(rt Runtime) ErrorCode {
	r, code := g.runtime(rt)
	if code != NoError {
		return code
	}

	g.mu.Lock()
	if r.owner != 0 {
		g.mu.Unlock()
		return ErrorRuntimeInUse
	}
	r.disposed = true
	ctxs := make([]*jsContext, 0, len(r.contexts))
	for c := range r.contexts {
		ctxs = append(ctxs, c)
	}
	r.contexts = nil
	g.mu.Unlock()

	for _, c := range ctxs {
		g.contexts.Remove(resource.Handle(c.handle))
		g.teardown(c)
	}
	g.runtimes.Remove(resource.Handle(rt))
	Logger().Debug("runtime disposed", zap.Uintptr("runtime", uintptr(rt)), zap.Int("contexts", len(ctxs)))
	return NoError
}

// Drop tears c down when its table is closed.
func (c *jsContext) Drop() { c.rt.api.teardown(c) }

// Drop marks r disposed when its table is closed.
func (r *jsRuntime) Drop() {
	r.api.mu.Lock()
	r.disposed = true
	r.contexts = nil
	r.api.mu.Unlock()
}

// Close disposes every runtime and context still alive and closes the
// backend's tables; later calls fail with ErrorInvalidArgument. It fails
// with ErrorRuntimeInUse while any runtime is in use. Close is idempotent.
func (g *Goja) Close() error {
	var rts []*jsRuntime
	g.runtimes.Each(func(_ resource.Handle, r *jsRuntime) bool {
		rts = append(rts, r)
		return true
	})
	g.mu.Lock()
	for _, r := range rts {
		if r.owner != 0 {
			g.mu.Unlock()
			return ErrorRuntimeInUse.Err("Close")
		}
	}
	g.mu.Unlock()

	// contexts go first, tearing one down releases its values
	err := g.contexts.Close()
	err = multierr.Append(err, g.values.Close())
	err = multierr.Append(err, g.runtimes.Close())
	Logger().Debug("backend closed", zap.Int("runtimes", len(rts)))
	return err
}

// insertFailure maps a handle table insert error to a status.
func insertFailure(err error) ErrorCode {
	if errors.Is(err, resource.ErrClosed) {
		return ErrorInvalidArgument
	}
	return ErrorOutOfMemory
}

// CollectGarbage runs a full Go collection; goja objects live on the Go heap.
func (g *Goja) CollectGarbage(rt Runtime) ErrorCode {
	if _, code := g.runtime(rt); code != NoError {
		return code
	}
	runtime.GC()
	return NoError
}

// DisableRuntimeExecution interrupts running script in every context of the
// runtime and refuses new script execution until re-enabled. It may be
// called from any goroutine.
func (g *Goja) DisableRuntimeExecution(rt Runtime) ErrorCode {
	r, code := g.runtime(rt)
	if code != NoError {
		return code
	}
	g.mu.Lock()
	r.disabled.Store(true)
	for c := range r.contexts {
		c.vm.Interrupt(ErrorInDisabledState)
	}
	g.mu.Unlock()
	return NoError
}

// EnableRuntimeExecution clears a previous DisableRuntimeExecution.
func (g *Goja) EnableRuntimeExecution(rt Runtime) ErrorCode {
	r, code := g.runtime(rt)
	if code != NoError {
		return code
	}
	g.mu.Lock()
	r.disabled.Store(false)
	for c := range r.contexts {
		c.vm.ClearInterrupt()
	}
	g.mu.Unlock()
	return NoError
}

// IsRuntimeExecutionDisabled reports the execution state of the runtime.
func (g *Goja) IsRuntimeExecutionDisabled(rt Runtime) (bool, ErrorCode) {
	r, code := g.runtime(rt)
	if code != NoError {
		return false, code
	}
	return r.disabled.Load(), NoError
}

// CreateContext creates a context with one reference owned by the caller.
func (g *Goja) CreateContext(rt Runtime) (Context, ErrorCode) {
	r, code := g.runtime(rt)
	if code != NoError {
		return 0, code
	}

	vm := goja.New()
	h, err := newHelpers(vm)
	if err != nil {
		Logger().Error("context prelude failed", zap.Error(err))
		return 0, ErrorFatal
	}

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(g.cfg.Console))
	for name, loader := range g.cfg.Modules {
		registry.RegisterNativeModule(name, loader)
	}
	registry.Enable(vm)
	console.Enable(vm)

	if r.attrs.Has(RuntimeAttributeDisableEval) {
		if err := disableEval(vm); err != nil {
			return 0, ErrorFatal
		}
	}

	c := &jsContext{
		vm:        vm,
		rt:        r,
		helpers:   h,
		externals: make(map[weak.Pointer[goja.Object]]*external),
	}

	g.mu.Lock()
	if r.disposed {
		g.mu.Unlock()
		return 0, ErrorInvalidArgument
	}
	if r.disabled.Load() {
		vm.Interrupt(ErrorInDisabledState)
	}
	r.contexts[c] = struct{}{}
	g.mu.Unlock()

	ch, err := g.contexts.Insert(c)
	if err != nil {
		g.mu.Lock()
		delete(r.contexts, c)
		g.mu.Unlock()
		return 0, insertFailure(err)
	}
	c.handle = Context(ch)
	Logger().Debug("context created", zap.Uintptr("context", uintptr(c.handle)), zap.Uintptr("runtime", uintptr(rt)))
	return c.handle, NoError
}

// ContextAddRef adds a reference to ctx.
func (g *Goja) ContextAddRef(ctx Context) (uint32, ErrorCode) {
	if ctx == 0 {
		return 0, ErrorNullArgument
	}
	n, ok := g.contexts.AddRef(resource.Handle(ctx))
	if !ok {
		return 0, ErrorInvalidArgument
	}
	return n, NoError
}

// ContextRelease drops a reference to ctx. Dropping the last reference tears
// the context down; it fails with ErrorRuntimeInUse if ctx is current on
// any goroutine.
func (g *Goja) ContextRelease(ctx Context) (uint32, ErrorCode) {
	if ctx == 0 {
		return 0, ErrorNullArgument
	}
	h := resource.Handle(ctx)
	c, ok := g.contexts.Get(h)
	if !ok {
		return 0, ErrorInvalidArgument
	}
	if g.contexts.Refs(h) == 1 && g.isCurrentAnywhere(c) {
		return 1, ErrorRuntimeInUse
	}
	_, n, ok := g.contexts.Release(h)
	if !ok {
		return 0, ErrorInvalidArgument
	}
	if n == 0 {
		g.mu.Lock()
		if c.rt.contexts != nil {
			delete(c.rt.contexts, c)
		}
		g.mu.Unlock()
		g.teardown(c)
	}
	return n, NoError
}

func (g *Goja) isCurrentAnywhere(c *jsContext) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, cur := range g.current {
		if cur == c {
			return true
		}
	}
	return false
}

// teardown drops every value reference owned by c and finalizes the
// external objects that are still alive.
func (g *Goja) teardown(c *jsContext) {
	g.mu.Lock()
	if c.disposed {
		g.mu.Unlock()
		return
	}
	c.disposed = true
	for gid, cur := range g.current {
		if cur == c {
			delete(g.current, gid)
			if c.rt.owner == gid {
				c.rt.owner = 0
			}
		}
	}
	g.mu.Unlock()

	dropped := g.values.RemoveIf(func(e *valueEntry) bool { return e.ctx == c })

	c.extMu.Lock()
	exts := make([]*external, 0, len(c.externals))
	for _, ext := range c.externals {
		exts = append(exts, ext)
	}
	c.externals = nil
	c.extMu.Unlock()

	for _, ext := range exts {
		ext.finalize()
	}
	c.exception = nil
	Logger().Debug("context torn down",
		zap.Uintptr("context", uintptr(c.handle)),
		zap.Int("values", len(dropped)),
		zap.Int("externals", len(exts)))
}

// SetCurrentContext binds ctx to the calling goroutine, or unbinds the
// current context when ctx is 0.
func (g *Goja) SetCurrentContext(ctx Context) ErrorCode {
	gid := goroutineID()

	var next *jsContext
	if ctx != 0 {
		c, ok := g.contexts.Get(resource.Handle(ctx))
		if !ok {
			return ErrorInvalidArgument
		}
		next = c
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.current[gid]
	if next != nil {
		if next.disposed {
			return ErrorInvalidArgument
		}
		if owner := next.rt.owner; owner != 0 && owner != gid {
			return ErrorRuntimeInUse
		}
	}
	// Switching away while prev's script is still on this goroutine's stack
	// keeps prev's runtime owned until that script unwinds.
	if prev != nil && (next == nil || prev.rt != next.rt) && prev.rt.owner == gid && prev.rt.running == 0 {
		prev.rt.owner = 0
	}
	if next == nil {
		delete(g.current, gid)
		return NoError
	}
	next.rt.owner = gid
	g.current[gid] = next
	return NoError
}

// enterScript records a script frame of r on the owner's stack.
func (r *jsRuntime) enterScript() {
	r.api.mu.Lock()
	r.running++
	r.api.mu.Unlock()
}

// leaveScript drops a script frame of r. When the last frame unwinds and
// none of r's contexts is current on the owner, r becomes free.
func (r *jsRuntime) leaveScript() {
	g := r.api
	g.mu.Lock()
	defer g.mu.Unlock()
	r.running--
	if r.running > 0 || r.owner == 0 {
		return
	}
	if cur := g.current[r.owner]; cur == nil || cur.rt != r {
		r.owner = 0
	}
}

// GetCurrentContext returns the context bound to the calling goroutine, or 0.
// The result is not reference counted.
func (g *Goja) GetCurrentContext() (Context, ErrorCode) {
	gid := goroutineID()
	g.mu.Lock()
	defer g.mu.Unlock()
	if c := g.current[gid]; c != nil {
		return c.handle, NoError
	}
	return 0, NoError
}

// IdleTick is the hint returned by Idle.
const IdleTick uint32 = 1000

// Idle collects garbage on behalf of the current runtime. It requires the
// runtime to have been created with RuntimeAttributeEnableIdleProcessing.
func (g *Goja) Idle() (uint32, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	if !c.rt.attrs.Has(RuntimeAttributeEnableIdleProcessing) {
		return 0, ErrorIdleNotEnabled
	}
	runtime.GC()
	return IdleTick, NoError
}

// enter returns the context current on the calling goroutine.
func (g *Goja) enter() (*jsContext, ErrorCode) {
	gid := goroutineID()
	g.mu.Lock()
	c := g.current[gid]
	g.mu.Unlock()
	if c == nil {
		return nil, ErrorNoCurrentContext
	}
	return c, NoError
}

// lookup resolves ref in the current context c.
func (g *Goja) lookup(c *jsContext, ref Ref) (goja.Value, ErrorCode) {
	if ref == 0 {
		return nil, ErrorNullArgument
	}
	e, ok := g.values.Get(resource.Handle(ref))
	if !ok || e.ctx != c {
		return nil, ErrorInvalidArgument
	}
	return e.v, NoError
}

// lookupObject resolves ref and requires an object.
func (g *Goja) lookupObject(c *jsContext, ref Ref) (*goja.Object, ErrorCode) {
	v, code := g.lookup(c, ref)
	if code != NoError {
		return nil, code
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, ErrorArgumentNotObject
	}
	return obj, NoError
}

// newRef hands out a new reference to v with a count of one.
func (g *Goja) newRef(c *jsContext, v goja.Value) (Ref, ErrorCode) {
	if v == nil {
		v = goja.Undefined()
	}
	h, err := g.values.Insert(&valueEntry{ctx: c, v: v})
	if err != nil {
		return 0, insertFailure(err)
	}
	return Ref(h), NoError
}

// AddRef adds a reference to ref.
func (g *Goja) AddRef(ref Ref) (uint32, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	if _, code := g.lookup(c, ref); code != NoError {
		return 0, code
	}
	n, ok := g.values.AddRef(resource.Handle(ref))
	if !ok {
		return 0, ErrorInvalidArgument
	}
	return n, NoError
}

// Release drops a reference to ref. The owning context must be current.
func (g *Goja) Release(ref Ref) (uint32, ErrorCode) {
	c, code := g.enter()
	if code != NoError {
		return 0, code
	}
	if _, code := g.lookup(c, ref); code != NoError {
		return 0, code
	}
	_, n, ok := g.values.Release(resource.Handle(ref))
	if !ok {
		return 0, ErrorInvalidArgument
	}
	return n, NoError
}

// LiveRefs reports the number of value references currently handed out.
func (g *Goja) LiveRefs() int {
	return g.values.Len()
}

// RefCount reports the reference count of ref, or 0 if it is not live.
// It performs no context checks and is meant for diagnostics.
func (g *Goja) RefCount(ref Ref) uint32 {
	return g.values.Refs(resource.Handle(ref))
}

func handleOf(ref Ref) resource.Handle {
	return resource.Handle(ref)
}
