// Package abi defines the flat, handle-based call surface of the script
// engine and provides its goja-backed implementation.
//
// The surface mirrors a native embedding ABI: runtimes, contexts and values
// are opaque uintptr handles, every call returns an ErrorCode, and a script
// exception is left pending on the context until the host clears it.
//
// # Handles
//
// Value references are reference counted. Every Ref returned from the API
// carries one reference that belongs to the caller:
//
//	ref, code := api.CreateString("hi")
//	if code != abi.NoError {
//		return code.Err("CreateString")
//	}
//	defer api.Release(ref)
//
// A Ref is only valid in the context that produced it, and Release must be
// called while that context is current.
//
// # Goroutine binding
//
// SetCurrentContext binds a context to the calling goroutine. While any
// context of a runtime is bound, other goroutines cannot bind contexts of the
// same runtime and get ErrorRuntimeInUse instead.
//
// # Native functions
//
// CreateFunction wraps a NativeFunctionCallback. Arguments are passed as
// temporary references released after the callback returns; the callback's
// result is borrowed. Calling SetException inside the callback throws into
// the calling script.
package abi
