// Package errors provides structured error types for the js-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Native ABI failures carry the engine status code; script exceptions are
// reported with the separate ScriptError type so callers can tell them apart.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseABI, errors.KindStatus).
//		Op("JsGetProperty").
//		Code(0x10001).
//		Detail("InvalidArgument").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Status("JsRelease", code, "NullArgument")
//	err := errors.Protocol(errors.PhaseContext, "token closed out of order")
//
// Protocol violations (out-of-order context disposal, use after destroy,
// wrong-shape factory input) are programming errors. The library raises them
// with panic instead of returning them.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
