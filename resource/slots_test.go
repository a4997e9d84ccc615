package resource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlots_Basic(t *testing.T) {
	s := NewSlots[string]()

	h, err := s.Insert("test value")
	require.NoError(t, err)
	require.NotZero(t, h)

	val, ok := s.Get(h)
	require.True(t, ok)
	assert.Equal(t, "test value", val)
	assert.Equal(t, uint32(1), s.Refs(h))

	val, remaining, ok := s.Release(h)
	require.True(t, ok)
	assert.Equal(t, "test value", val)
	assert.Zero(t, remaining)

	_, ok = s.Get(h)
	assert.False(t, ok, "entry should be gone after last release")
	assert.Zero(t, s.Len())
}

func TestSlots_RefCounting(t *testing.T) {
	s := NewSlots[int]()
	h, err := s.Insert(7)
	require.NoError(t, err)

	n, ok := s.AddRef(h)
	require.True(t, ok)
	assert.Equal(t, uint32(2), n)

	_, remaining, ok := s.Release(h)
	require.True(t, ok)
	assert.Equal(t, uint32(1), remaining)
	assert.True(t, s.Valid(h))

	_, remaining, ok = s.Release(h)
	require.True(t, ok)
	assert.Zero(t, remaining)

	_, _, ok = s.Release(h)
	assert.False(t, ok, "release of a freed handle must fail")
	_, ok = s.AddRef(h)
	assert.False(t, ok)
}

func TestSlots_ZeroHandle(t *testing.T) {
	s := NewSlots[int]()
	_, ok := s.Get(0)
	assert.False(t, ok)
	_, _, ok = s.Release(0)
	assert.False(t, ok)
	_, ok = s.Remove(0)
	assert.False(t, ok)
}

func TestSlots_StaleHandleAfterReuse(t *testing.T) {
	s := NewSlots[string]()

	h1, err := s.Insert("first")
	require.NoError(t, err)
	_, ok := s.Remove(h1)
	require.True(t, ok)

	h2, err := s.Insert("second")
	require.NoError(t, err)

	idx1, _ := h1.index()
	idx2, _ := h2.index()
	assert.Equal(t, idx1, idx2, "freelist should reuse the slot")
	assert.NotEqual(t, h1, h2, "generation must differ")

	_, ok = s.Get(h1)
	assert.False(t, ok, "stale handle must not resolve")
	v, ok := s.Get(h2)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestSlots_GenerationOutlivesManyReuses(t *testing.T) {
	if genBits < 16 {
		t.Skip("narrow handles retire slots after 255 reuses")
	}
	s := NewSlots[int]()

	first, err := s.Insert(0)
	require.NoError(t, err)
	_, ok := s.Remove(first)
	require.True(t, ok)

	var last Handle
	for i := 1; i <= 300; i++ {
		last, err = s.Insert(i)
		require.NoError(t, err)
		_, ok = s.Remove(last)
		require.True(t, ok)
	}
	h, err := s.Insert(301)
	require.NoError(t, err)

	idx, _ := h.index()
	firstIdx, _ := first.index()
	require.Equal(t, firstIdx, idx)
	_, ok = s.Get(first)
	assert.False(t, ok, "handle from 301 reuses ago must not resolve")
	_, ok = s.Get(last)
	assert.False(t, ok)
}

func TestSlots_ExhaustedSlotIsRetired(t *testing.T) {
	s := NewSlots[string]()

	h, err := s.Insert("old")
	require.NoError(t, err)
	idx, _ := h.index()
	s.entries[idx].gen = genMask
	h = makeHandle(idx, genMask)

	_, ok := s.Remove(h)
	require.True(t, ok)
	assert.Equal(t, 1, s.Retired())

	fresh, err := s.Insert("new")
	require.NoError(t, err)
	freshIdx, _ := fresh.index()
	assert.NotEqual(t, idx, freshIdx, "retired slot must not be reused")
	_, ok = s.Get(h)
	assert.False(t, ok)
	_, ok = s.Get(makeHandle(idx, 0))
	assert.False(t, ok, "wrapped generation must not resolve")
}

func TestSlots_EachAndRemoveIf(t *testing.T) {
	s := NewSlots[int]()
	for i := 0; i < 6; i++ {
		_, err := s.Insert(i)
		require.NoError(t, err)
	}

	sum := 0
	s.Each(func(_ Handle, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 15, sum)

	removed := s.RemoveIf(func(v int) bool { return v%2 == 0 })
	assert.ElementsMatch(t, []int{0, 2, 4}, removed)
	assert.Equal(t, 3, s.Len())
}

type dropCounter struct{ n *int }

func (d dropCounter) Drop() { *d.n++ }

func TestSlots_Close(t *testing.T) {
	s := NewSlots[dropCounter]()
	dropped := 0
	for i := 0; i < 3; i++ {
		_, err := s.Insert(dropCounter{n: &dropped})
		require.NoError(t, err)
	}

	require.NoError(t, s.Close())
	assert.Equal(t, 3, dropped)
	assert.Zero(t, s.Len())

	_, err := s.Insert(dropCounter{n: &dropped})
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, s.Close(), "second close is a no-op")
	assert.Equal(t, 3, dropped)
}

type panicDropper struct{ msg string }

func (d panicDropper) Drop() {
	if d.msg != "" {
		panic(d.msg)
	}
}

func TestSlots_CloseReportsDropPanics(t *testing.T) {
	s := NewSlots[panicDropper]()
	for _, msg := range []string{"first", "", "second"} {
		_, err := s.Insert(panicDropper{msg: msg})
		require.NoError(t, err)
	}

	err := s.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
	assert.Zero(t, s.Len())
}

func TestSlots_Concurrent(t *testing.T) {
	s := NewSlots[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				h, err := s.Insert(i)
				if err != nil {
					t.Error(err)
					return
				}
				s.AddRef(h)
				s.Release(h)
				s.Release(h)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, s.Len())
}
