// Package engine is the host-side binding of one script context.
//
// The native engine hands out raw references that are only meaningful in
// the context that created them and only while that context is current on
// the calling goroutine. This package hides that protocol:
//
//	Engine            - owns a context, its singletons and all host state
//	ExecutionContext  - scoped token making an engine current (AcquireContext/Close)
//	Value             - a held reference; Object, Array, Function and friends
//	HostFunction      - Go code callable from script
//
// # Handles
//
// Every Value owns exactly one native reference. Release gives it back
// immediately; a Value that is simply dropped is released later, when the
// garbage collector notices it and the owning engine next becomes current.
// The garbage collector never calls into the native engine itself.
//
// # Execution contexts
//
// Tokens nest per goroutine and must be closed in reverse order of
// acquisition. Closing a token restores whatever engine was current before
// it. Acquiring an engine that is already current is free.
//
//	tok, err := e.AcquireContext()
//	if err != nil {
//	    return err
//	}
//	defer tok.Close()
//
// Methods on Engine and Value acquire the context themselves; explicit
// tokens are only needed to batch work or to interleave several engines.
//
// # Host functions and external objects
//
// Script calls into Go through a single trampoline keyed by a thunk id, so
// no per-function Go closure is ever reachable from native code. A host
// function's error becomes a script exception with the same message.
// External objects carry a Go payload; one payload maps to one script
// object for as long as that object is alive.
//
// Most users should use the runtime package, which manages the native
// runtime and host registration.
package engine
