package resource

import "errors"

// Handle is an opaque reference to an entry in a Slots table.
// Handle 0 is reserved and always invalid.
//
// The low bits hold the slot index plus one, the high bits hold the slot
// generation: 32 bits each on 64-bit platforms, 24 and 8 bits on 32-bit
// ones. A slot whose generation is exhausted is retired instead of reused,
// so a handle to a freed slot never resolves to a newer occupant.
type Handle uintptr

const (
	ptrBits   = 32 << (^uintptr(0) >> 63)
	indexBits = 24 + 8*(^uintptr(0)>>63)
	genBits   = ptrBits - indexBits
	indexMask = 1<<indexBits - 1
	genMask   = 1<<genBits - 1

	// MaxSlots is the largest number of simultaneously live entries.
	MaxSlots = indexMask - 1
)

var (
	ErrClosed = errors.New("resource table closed")
	ErrFull   = errors.New("resource table full")
)

func makeHandle(idx, gen uint32) Handle {
	return Handle(uintptr(gen)<<indexBits | uintptr(idx+1))
}

func (h Handle) index() (uint32, bool) {
	i := uint32(uintptr(h) & indexMask)
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(uintptr(h) >> indexBits & genMask)
}

// Dropper is optionally implemented by values that need cleanup when the
// table is closed with entries still live.
type Dropper interface {
	Drop()
}
