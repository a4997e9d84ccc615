package resource

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Slots is a reference-counted handle table with a freelist.
// Insert returns a handle with one reference; the entry is removed when the
// last reference is released. All methods are safe for concurrent use.
type Slots[T any] struct {
	entries  []slot[T]
	freeList []uint32
	mu       sync.RWMutex
	live     int
	retired  int
	closed   bool
}

type slot[T any] struct {
	value T
	refs  uint32
	gen   uint32
	valid bool
}

// NewSlots creates an empty table.
func NewSlots[T any]() *Slots[T] {
	return &Slots[T]{
		entries:  make([]slot[T], 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert stores a value with a reference count of one.
func (s *Slots[T]) Insert(value T) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	var idx uint32
	if n := len(s.freeList); n > 0 {
		idx = s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
	} else {
		if len(s.entries) >= MaxSlots {
			return 0, ErrFull
		}
		s.entries = append(s.entries, slot[T]{})
		idx = uint32(len(s.entries) - 1)
	}

	e := &s.entries[idx]
	e.value = value
	e.refs = 1
	e.valid = true
	s.live++
	return makeHandle(idx, e.gen), nil
}

// lookup must be called with mu held.
func (s *Slots[T]) lookup(h Handle) *slot[T] {
	idx, ok := h.index()
	if !ok || int(idx) >= len(s.entries) {
		return nil
	}
	e := &s.entries[idx]
	if !e.valid || e.gen != h.generation() {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (s *Slots[T]) Get(h Handle) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e := s.lookup(h); e != nil {
		return e.value, true
	}
	var zero T
	return zero, false
}

// Valid reports whether h refers to a live entry.
func (s *Slots[T]) Valid(h Handle) bool {
	_, ok := s.Get(h)
	return ok
}

// AddRef increments the reference count and returns the new count.
func (s *Slots[T]) AddRef(h Handle) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(h)
	if e == nil {
		return 0, false
	}
	e.refs++
	return e.refs, true
}

// Release decrements the reference count. When it reaches zero the entry is
// removed and its value returned with remaining == 0.
func (s *Slots[T]) Release(h Handle) (value T, remaining uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(h)
	if e == nil {
		return value, 0, false
	}
	e.refs--
	if e.refs > 0 {
		return e.value, e.refs, true
	}
	value = e.value
	s.free(h, e)
	return value, 0, true
}

// Remove drops an entry regardless of its reference count.
func (s *Slots[T]) Remove(h Handle) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(h)
	if e == nil {
		var zero T
		return zero, false
	}
	value := e.value
	s.free(h, e)
	return value, true
}

func (s *Slots[T]) free(h Handle, e *slot[T]) {
	var zero T
	e.value = zero
	e.refs = 0
	e.valid = false
	s.live--
	if e.gen == genMask {
		s.retired++
		return
	}
	e.gen++
	idx, _ := h.index()
	s.freeList = append(s.freeList, idx)
}

// Refs returns the current reference count of h, or 0 if invalid.
func (s *Slots[T]) Refs(h Handle) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e := s.lookup(h); e != nil {
		return e.refs
	}
	return 0
}

// Len returns the number of live entries.
func (s *Slots[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Each iterates over live entries. fn must not call back into the table.
func (s *Slots[T]) Each(fn func(Handle, T) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.entries {
		e := &s.entries[i]
		if e.valid {
			if !fn(makeHandle(uint32(i), e.gen), e.value) {
				break
			}
		}
	}
}

// RemoveIf drops every entry for which match returns true and returns the
// removed values. match runs under the table lock.
func (s *Slots[T]) RemoveIf(match func(T) bool) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []T
	for i := range s.entries {
		e := &s.entries[i]
		if e.valid && match(e.value) {
			removed = append(removed, e.value)
			s.free(makeHandle(uint32(i), e.gen), e)
		}
	}
	return removed
}

// Retired returns the number of slots taken out of use because their
// generation was exhausted.
func (s *Slots[T]) Retired() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retired
}

// Close drops all entries, calling Drop on values that implement Dropper.
// Further inserts fail with ErrClosed. A Drop that panics does not stop the
// others; every such panic is reported in the returned error.
func (s *Slots[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var droppers []Dropper
	for i := range s.entries {
		e := &s.entries[i]
		if e.valid {
			if d, ok := any(e.value).(Dropper); ok {
				droppers = append(droppers, d)
			}
			var zero T
			e.value = zero
			e.valid = false
		}
	}
	s.entries = nil
	s.freeList = nil
	s.live = 0
	s.mu.Unlock()

	var err error
	for _, d := range droppers {
		err = multierr.Append(err, drop(d))
	}
	return err
}

func drop(d Dropper) (err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("drop %T: %v", d, x)
		}
	}()
	d.Drop()
	return nil
}
