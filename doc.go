// Package jsruntime is a Go binding over an embeddable JavaScript engine
// that keeps native handles safe to use from Go.
//
// The engine speaks a flat, handle-based native interface: every script
// value is an opaque reference counted by the engine, exactly one execution
// context is current at a time, and native code calls back into Go through
// opaque identifiers. The packages here wrap that interface so Go code never
// touches a raw reference.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	jsruntime/           Root package (documentation only)
//	├── runtime/         High-level API: runtimes, engines, host functions, cancellation
//	├── engine/          Value handles, execution contexts, callbacks and externals
//	├── abi/             The native engine interface and its goja implementation
//	├── resource/        Generational handle tables backing native references
//	├── errors/          Structured error types for debugging
//	└── cmd/run/         Script runner CLI and interactive REPL
//
// # Quick Start
//
// Run a script and call one of its functions:
//
//	rt, err := runtime.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	e, err := rt.NewEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	_, err = rt.Run(ctx, e, engine.NewScriptSource("main.js", src))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := rt.Call(ctx, e, "main", "arg")
//
// # Handle Lifetime
//
// Every value returned by an engine owns one native reference. Release it
// when done, or let the Go collector do so; either way the reference is
// returned to the engine the next time the engine becomes current on some
// goroutine, never from a collector goroutine.
package jsruntime
