package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
)

// releaseQueue holds native references waiting for their engine's context
// to become current. Off-context callers may only append.
type releaseQueue struct {
	refs []abi.Ref
	mu   sync.Mutex
}

func (q *releaseQueue) enqueue(e *Engine, ref abi.Ref) {
	if e.closed.Load() {
		// the context and every reference it owned are gone
		return
	}
	q.mu.Lock()
	q.refs = append(q.refs, ref)
	q.mu.Unlock()
}

// pending reports the number of queued references.
func (q *releaseQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.refs)
}

// flush releases every queued reference. The engine's context must be
// current on the calling goroutine. A failed release means a reference was
// freed twice or outlived its context, so it panics.
func (q *releaseQueue) flush(api abi.API) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.refs) == 0 {
		return
	}
	for i, ref := range q.refs {
		if _, code := api.Release(ref); code != abi.NoError {
			Logger().Error("deferred release failed",
				zap.Uintptr("ref", uintptr(ref)),
				zap.Stringer("code", code))
			q.refs = q.refs[i+1:]
			panic(errors.New(errors.PhaseRelease, errors.KindProtocolViolation).
				Op("Release").
				Code(uint32(code)).
				Detail("deferred release of ref 0x%x failed", uintptr(ref)).
				Build())
		}
	}
	Logger().Debug("release queue flushed", zap.Int("refs", len(q.refs)))
	clear(q.refs)
	q.refs = q.refs[:0]
}
