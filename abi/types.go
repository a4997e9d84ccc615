package abi

import (
	"fmt"

	"github.com/wippyai/js-runtime/errors"
)

// Ref is an opaque reference to a script value. 0 is the invalid reference.
//
// Refs are reference counted: every Ref returned by the API carries one
// reference owned by the caller, which must eventually be given back with
// Release while the owning context is current.
type Ref uintptr

// Runtime is an opaque runtime handle.
type Runtime uintptr

// Context is an opaque script context handle.
type Context uintptr

// Invalid is the zero reference.
const Invalid Ref = 0

// NativeFunctionCallback is the one shape the engine accepts for host
// functions. args[0] is the this value. The returned Ref is borrowed: the
// engine reads it before returning to script and never releases it. A zero
// result is treated as undefined.
type NativeFunctionCallback func(callee Ref, isConstructCall bool, args []Ref, argCount uint16, callbackState uintptr) Ref

// FinalizeCallback is invoked once when an external object is collected or
// its context is torn down. It may run on any goroutine and must not call
// back into the API.
type FinalizeCallback func(data uintptr)

// ErrorCode is the status returned by every API call.
type ErrorCode uint32

const (
	NoError            ErrorCode = 0
	ErrorCategoryUsage ErrorCode = 0x10000
)

const (
	ErrorInvalidArgument ErrorCode = ErrorCategoryUsage + iota
	ErrorNullArgument
	ErrorNoCurrentContext
	ErrorInExceptionState
	ErrorNotImplemented
	ErrorWrongThread
	ErrorRuntimeInUse
	ErrorBadSerializedScript
	ErrorInDisabledState
	ErrorCannotDisableExecution
	ErrorHeapEnumInProgress
	ErrorArgumentNotObject
	ErrorInProfileCallback
	ErrorInThreadServiceCallback
	ErrorCannotSerializeDebugScript
	ErrorAlreadyDebuggingContext
	ErrorAlreadyProfilingContext
	ErrorIdleNotEnabled
)

const (
	ErrorCategoryEngine ErrorCode = 0x20000
	ErrorOutOfMemory    ErrorCode = 0x20001

	ErrorCategoryScript     ErrorCode = 0x30000
	ErrorScriptException    ErrorCode = 0x30001
	ErrorScriptCompile      ErrorCode = 0x30002
	ErrorScriptTerminated   ErrorCode = 0x30003
	ErrorScriptEvalDisabled ErrorCode = 0x30004

	ErrorCategoryFatal ErrorCode = 0x40000
	ErrorFatal         ErrorCode = 0x40001
	ErrorWrongRuntime  ErrorCode = 0x40002
)

var codeNames = map[ErrorCode]string{
	NoError:                         "NoError",
	ErrorInvalidArgument:            "InvalidArgument",
	ErrorNullArgument:               "NullArgument",
	ErrorNoCurrentContext:           "NoCurrentContext",
	ErrorInExceptionState:           "InExceptionState",
	ErrorNotImplemented:             "NotImplemented",
	ErrorWrongThread:                "WrongThread",
	ErrorRuntimeInUse:               "RuntimeInUse",
	ErrorBadSerializedScript:        "BadSerializedScript",
	ErrorInDisabledState:            "InDisabledState",
	ErrorCannotDisableExecution:     "CannotDisableExecution",
	ErrorHeapEnumInProgress:         "HeapEnumInProgress",
	ErrorArgumentNotObject:          "ArgumentNotObject",
	ErrorInProfileCallback:          "InProfileCallback",
	ErrorInThreadServiceCallback:    "InThreadServiceCallback",
	ErrorCannotSerializeDebugScript: "CannotSerializeDebugScript",
	ErrorAlreadyDebuggingContext:    "AlreadyDebuggingContext",
	ErrorAlreadyProfilingContext:    "AlreadyProfilingContext",
	ErrorIdleNotEnabled:             "IdleNotEnabled",
	ErrorOutOfMemory:                "OutOfMemory",
	ErrorScriptException:            "ScriptException",
	ErrorScriptCompile:              "ScriptCompile",
	ErrorScriptTerminated:           "ScriptTerminated",
	ErrorScriptEvalDisabled:         "ScriptEvalDisabled",
	ErrorFatal:                      "Fatal",
	ErrorWrongRuntime:               "WrongRuntime",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(0x%05x)", uint32(c))
}

// Category returns the category bits of the code.
func (c ErrorCode) Category() ErrorCode {
	return c & 0xF0000
}

// IsScript reports whether the code signals a pending script exception.
func (c ErrorCode) IsScript() bool {
	return c.Category() == ErrorCategoryScript
}

// Err converts a non-success code into a structured status error.
func (c ErrorCode) Err(op string) error {
	if c == NoError {
		return nil
	}
	return errors.Status(op, uint32(c), c.String())
}

// ValueType is the engine-reported kind of a value.
type ValueType int

const (
	Undefined ValueType = iota
	Null
	Number
	String
	Boolean
	Object
	Function
	Error
	Array
	Symbol
	ArrayBuffer
	TypedArray
	DataView
)

var typeNames = [...]string{
	Undefined:   "undefined",
	Null:        "null",
	Number:      "number",
	String:      "string",
	Boolean:     "boolean",
	Object:      "object",
	Function:    "function",
	Error:       "error",
	Array:       "array",
	Symbol:      "symbol",
	ArrayBuffer: "arraybuffer",
	TypedArray:  "typedarray",
	DataView:    "dataview",
}

func (t ValueType) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// IsPrimitive reports whether values of this type have no object form.
func (t ValueType) IsPrimitive() bool {
	switch t {
	case Undefined, Number, String, Boolean, Symbol:
		return true
	}
	return false
}

// RuntimeAttributes tune runtime behaviour at creation time.
type RuntimeAttributes uint32

const (
	RuntimeAttributeNone                 RuntimeAttributes = 0
	RuntimeAttributeEnableIdleProcessing RuntimeAttributes = 1 << 2
	RuntimeAttributeDisableEval          RuntimeAttributes = 1 << 4
)

// Has reports whether all bits of f are set.
func (a RuntimeAttributes) Has(f RuntimeAttributes) bool {
	return a&f == f
}
