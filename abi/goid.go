package abi

import "runtime"

// goroutineID parses the current goroutine's id from its stack header.
// Contexts are bound per goroutine the way native engines bind them per
// OS thread.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:..."
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// GoroutineID exposes the id used for context binding.
func GoroutineID() uint64 {
	return goroutineID()
}
