package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
)

// ExecutionContext marks an engine as current on the calling goroutine.
// Every AcquireContext must be paired with exactly one Close, in reverse
// acquisition order, on the same goroutine:
//
//	ctx, err := eng.AcquireContext()
//	if err != nil {
//		return err
//	}
//	defer ctx.Close()
type ExecutionContext struct {
	engine   *Engine
	previous *Engine
	parent   *ExecutionContext
	gid      uint64
	switched bool
	closed   bool
}

// goroutineState is the current-engine marker and open token stack of one
// goroutine.
type goroutineState struct {
	current *Engine
	top     *ExecutionContext
}

var goroutines = struct {
	m  map[uint64]*goroutineState
	mu sync.Mutex
}{m: make(map[uint64]*goroutineState)}

func stateFor(gid uint64, create bool) *goroutineState {
	goroutines.mu.Lock()
	defer goroutines.mu.Unlock()
	st := goroutines.m[gid]
	if st == nil && create {
		st = &goroutineState{}
		goroutines.m[gid] = st
	}
	return st
}

func forgetIfIdle(gid uint64, st *goroutineState) {
	if st.current != nil || st.top != nil {
		return
	}
	goroutines.mu.Lock()
	if goroutines.m[gid] == st {
		delete(goroutines.m, gid)
	}
	goroutines.mu.Unlock()
}

// CurrentEngine returns the engine current on the calling goroutine, or nil.
func CurrentEngine() *Engine {
	if st := stateFor(abi.GoroutineID(), false); st != nil {
		return st.current
	}
	return nil
}

// AcquireContext makes e current on the calling goroutine. Acquiring the
// engine that is already current makes no native call. Switching engines
// flushes e's release queue. It panics if e has been closed.
func (e *Engine) AcquireContext() (*ExecutionContext, error) {
	e.mustBeOpen("AcquireContext")

	gid := abi.GoroutineID()
	st := stateFor(gid, true)
	tok := &ExecutionContext{engine: e, previous: st.current, parent: st.top, gid: gid}
	if st.current != e {
		if err := e.claim(); err != nil {
			forgetIfIdle(gid, st)
			return nil, err
		}
		tok.switched = true
		st.current = e
	}
	st.top = tok
	return tok, nil
}

// claim binds e's native context and replays its deferred releases.
func (e *Engine) claim() error {
	e.mustBeOpen("AcquireContext")
	if code := e.api.SetCurrentContext(e.ctx); code != abi.NoError {
		return code.Err("SetCurrentContext")
	}
	Logger().Debug("context claimed", zap.Uintptr("context", uintptr(e.ctx)))
	e.releases.flush(e.api)
	return nil
}

// Engine returns the engine this token made current.
func (c *ExecutionContext) Engine() *Engine {
	return c.engine
}

// Close restores the engine that was current before the matching acquire.
// It panics when c is not the most recent open token of the calling
// goroutine.
func (c *ExecutionContext) Close() {
	gid := abi.GoroutineID()
	if c.closed {
		panic(errors.Protocol(errors.PhaseContext, "execution context closed twice"))
	}
	st := stateFor(gid, false)
	if gid != c.gid || st == nil || st.top != c {
		panic(errors.Protocol(errors.PhaseContext, "execution context closed out of order"))
	}
	c.closed = true
	st.top = c.parent

	if c.switched {
		if code := c.engine.api.SetCurrentContext(0); code != abi.NoError {
			panic(errors.New(errors.PhaseContext, errors.KindProtocolViolation).
				Op("SetCurrentContext").
				Code(uint32(code)).
				Detail("release current context").
				Build())
		}
		st.current = c.previous
		if c.previous != nil {
			if err := c.previous.claim(); err != nil {
				panic(errors.Wrap(errors.PhaseContext, errors.KindProtocolViolation, err, "restore previous context"))
			}
		}
	}
	forgetIfIdle(gid, st)
}

// inUseHere reports whether any open token on the calling goroutine
// references e.
func (e *Engine) inUseHere() bool {
	st := stateFor(abi.GoroutineID(), false)
	if st == nil {
		return false
	}
	if st.current == e {
		return true
	}
	for t := st.top; t != nil; t = t.parent {
		if t.engine == e || t.previous == e {
			return true
		}
	}
	return false
}
