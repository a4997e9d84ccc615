package engine

import "sync"

const (
	// Pool limits; longer argument lists are rare enough to allocate.
	scratchMaxLen      = 10 // lengths >= this are never pooled
	scratchMaxRetained = 10 // buffers kept per length
)

// scratchPool hands out fixed-length buffers for argument marshaling.
// Buffers are bucketed by exact length; borrowed buffers must not be
// retained after release.
type scratchPool[T any] struct {
	buckets [scratchMaxLen][][]T
	empty   []T
	mu      sync.Mutex
}

func newScratchPool[T any]() *scratchPool[T] {
	return &scratchPool[T]{empty: make([]T, 0)}
}

// borrow returns a buffer of exactly n elements. Length 0 always yields the
// shared empty buffer.
func (p *scratchPool[T]) borrow(n int) []T {
	if n == 0 {
		return p.empty
	}
	if n >= scratchMaxLen {
		return make([]T, n)
	}
	p.mu.Lock()
	bucket := p.buckets[n]
	if k := len(bucket); k > 0 {
		buf := bucket[k-1]
		bucket[k-1] = nil
		p.buckets[n] = bucket[:k-1]
		p.mu.Unlock()
		return buf
	}
	p.mu.Unlock()
	return make([]T, n)
}

// release clears buf and returns it to its bucket. A full bucket discards
// its oldest buffer; unpooled lengths are dropped.
func (p *scratchPool[T]) release(buf []T) {
	n := len(buf)
	if n == 0 || n >= scratchMaxLen {
		return
	}
	clear(buf)
	p.mu.Lock()
	bucket := p.buckets[n]
	if len(bucket) >= scratchMaxRetained {
		copy(bucket, bucket[1:])
		bucket[len(bucket)-1] = buf
	} else {
		p.buckets[n] = append(bucket, buf)
	}
	p.mu.Unlock()
}

// retained reports the number of pooled buffers of length n.
func (p *scratchPool[T]) retained(n int) int {
	if n <= 0 || n >= scratchMaxLen {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets[n])
}
