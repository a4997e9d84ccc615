package engine

import (
	"runtime"
	"sync/atomic"
	"weak"

	"github.com/wippyai/js-runtime/abi"
)

// ValueHandle owns exactly one native reference to a script value.
//
// The handle never releases the reference itself. Release, and the cleanup
// that runs once the handle becomes unreachable, hand the reference to the
// engine's release queue, which is drained the next time the engine's
// context is acquired.
type ValueHandle struct {
	ref     atomic.Uintptr
	engine  weak.Pointer[Engine]
	cleanup runtime.Cleanup
	// pinned handles back the engine's cached singletons and are released
	// only when the engine closes.
	pinned bool
}

// releaseToken is what a handle's cleanup sees. It must not point back to
// the handle or the cleanup would never run.
type releaseToken struct {
	engine weak.Pointer[Engine]
	ref    abi.Ref
}

func newHandle(e *Engine, ref abi.Ref) *ValueHandle {
	h := &ValueHandle{engine: e.self}
	h.ref.Store(uintptr(ref))
	h.cleanup = runtime.AddCleanup(h, enqueueRelease, releaseToken{engine: e.self, ref: ref})
	return h
}

func enqueueRelease(t releaseToken) {
	if e := t.engine.Value(); e != nil {
		e.releases.enqueue(e, t.ref)
	}
}

// Ref returns the native reference, or abi.Invalid once released.
func (h *ValueHandle) Ref() abi.Ref {
	if h == nil {
		return abi.Invalid
	}
	return abi.Ref(h.ref.Load())
}

// Valid reports whether the handle still owns its reference.
func (h *ValueHandle) Valid() bool {
	return h.Ref() != abi.Invalid
}

// Engine returns the engine that produced the handle, or nil once that engine
// has been collected.
func (h *ValueHandle) Engine() *Engine {
	return h.engine.Value()
}

// Release gives the reference back to the engine. It may be called from any
// goroutine and is a no-op on a released handle.
func (h *ValueHandle) Release() {
	if h == nil || h.pinned {
		return
	}
	h.drop()
}

func (h *ValueHandle) drop() {
	ref := abi.Ref(h.ref.Swap(0))
	if ref == abi.Invalid {
		return
	}
	h.cleanup.Stop()
	enqueueRelease(releaseToken{engine: h.engine, ref: ref})
}
