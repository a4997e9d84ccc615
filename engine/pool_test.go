package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScratchPool_EmptyIsShared(t *testing.T) {
	p := newScratchPool[int]()

	a := p.borrow(0)
	b := p.borrow(0)
	assert.Len(t, a, 0)
	assert.NotNil(t, a)
	assert.Equal(t, cap(a), cap(b))
	p.release(a)
	assert.Zero(t, p.retained(0))
}

func TestScratchPool_ReusesByLength(t *testing.T) {
	p := newScratchPool[int]()

	buf := p.borrow(3)
	require.Len(t, buf, 3)
	buf[0], buf[1], buf[2] = 7, 8, 9
	p.release(buf)
	assert.Equal(t, 1, p.retained(3))

	again := p.borrow(3)
	assert.Same(t, &buf[0], &again[0])
	assert.Equal(t, []int{0, 0, 0}, again, "released buffers are cleared")
	assert.Zero(t, p.retained(3))

	other := p.borrow(4)
	assert.Len(t, other, 4)
}

func TestScratchPool_BoundsRetainedBuffers(t *testing.T) {
	p := newScratchPool[int]()

	bufs := make([][]int, scratchMaxRetained+2)
	for i := range bufs {
		bufs[i] = make([]int, 2)
	}
	for _, b := range bufs {
		p.release(b)
	}
	assert.Equal(t, scratchMaxRetained, p.retained(2))

	// the two oldest were discarded
	kept := make(map[*int]bool)
	for range scratchMaxRetained {
		b := p.borrow(2)
		kept[&b[0]] = true
	}
	assert.False(t, kept[&bufs[0][0]])
	assert.False(t, kept[&bufs[1][0]])
	assert.True(t, kept[&bufs[len(bufs)-1][0]])
}

func TestScratchPool_LongBuffersAreNotPooled(t *testing.T) {
	p := newScratchPool[int]()

	buf := p.borrow(scratchMaxLen)
	assert.Len(t, buf, scratchMaxLen)
	p.release(buf)
	assert.Zero(t, p.retained(scratchMaxLen))

	next := p.borrow(scratchMaxLen)
	assert.NotSame(t, &buf[0], &next[0])
}
