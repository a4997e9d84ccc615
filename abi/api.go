package abi

// API is the flat call surface of the native script engine. Every call
// returns an ErrorCode; calls that take or return value references require a
// current context on the calling goroutine, and references are only valid
// in the context that produced them.
type API interface {
	CreateRuntime(attrs RuntimeAttributes) (Runtime, ErrorCode)
	DisposeRuntime(rt Runtime) ErrorCode
	CollectGarbage(rt Runtime) ErrorCode
	DisableRuntimeExecution(rt Runtime) ErrorCode
	EnableRuntimeExecution(rt Runtime) ErrorCode
	IsRuntimeExecutionDisabled(rt Runtime) (bool, ErrorCode)

	CreateContext(rt Runtime) (Context, ErrorCode)
	ContextAddRef(ctx Context) (uint32, ErrorCode)
	ContextRelease(ctx Context) (uint32, ErrorCode)
	// SetCurrentContext binds ctx to the calling goroutine; 0 unbinds.
	SetCurrentContext(ctx Context) ErrorCode
	GetCurrentContext() (Context, ErrorCode)
	// Idle performs idle-time work and returns the number of milliseconds
	// until it should be called again.
	Idle() (uint32, ErrorCode)

	AddRef(ref Ref) (uint32, ErrorCode)
	Release(ref Ref) (uint32, ErrorCode)
	GetValueType(ref Ref) (ValueType, ErrorCode)
	StrictEquals(a, b Ref) (bool, ErrorCode)

	GetUndefinedValue() (Ref, ErrorCode)
	GetNullValue() (Ref, ErrorCode)
	GetTrueValue() (Ref, ErrorCode)
	GetFalseValue() (Ref, ErrorCode)
	GetGlobalObject() (Ref, ErrorCode)

	BoolToBoolean(b bool) (Ref, ErrorCode)
	BooleanToBool(ref Ref) (bool, ErrorCode)
	DoubleToNumber(f float64) (Ref, ErrorCode)
	IntToNumber(i int32) (Ref, ErrorCode)
	NumberToDouble(ref Ref) (float64, ErrorCode)
	NumberToInt(ref Ref) (int32, ErrorCode)
	CreateString(s string) (Ref, ErrorCode)
	StringValue(ref Ref) (string, ErrorCode)
	ConvertValueToString(ref Ref) (Ref, ErrorCode)
	ConvertValueToNumber(ref Ref) (Ref, ErrorCode)
	ConvertValueToBoolean(ref Ref) (Ref, ErrorCode)

	CreateObject() (Ref, ErrorCode)
	CreateExternalObject(data uintptr, finalize FinalizeCallback) (Ref, ErrorCode)
	GetExternalData(obj Ref) (uintptr, ErrorCode)
	GetPrototype(obj Ref) (Ref, ErrorCode)
	SetPrototype(obj, proto Ref) ErrorCode
	GetProperty(obj Ref, name string) (Ref, ErrorCode)
	SetProperty(obj Ref, name string, value Ref) ErrorCode
	HasProperty(obj Ref, name string) (bool, ErrorCode)
	DeleteProperty(obj Ref, name string) (bool, ErrorCode)
	GetOwnPropertyNames(obj Ref) (Ref, ErrorCode)
	GetIndexedProperty(obj, index Ref) (Ref, ErrorCode)
	SetIndexedProperty(obj, index, value Ref) ErrorCode
	CreateArray(length uint32) (Ref, ErrorCode)
	CreateArrayBuffer(length uint32) (Ref, ErrorCode)
	GetArrayBufferStorage(buf Ref) ([]byte, ErrorCode)
	CreateSymbol(description Ref) (Ref, ErrorCode)

	CreateFunction(cb NativeFunctionCallback, state uintptr) (Ref, ErrorCode)
	CreateNamedFunction(name Ref, cb NativeFunctionCallback, state uintptr) (Ref, ErrorCode)
	// CallFunction invokes fn with args[:argCount]; args[0] is the this value.
	CallFunction(fn Ref, args []Ref, argCount uint16) (Ref, ErrorCode)
	ConstructObject(fn Ref, args []Ref, argCount uint16) (Ref, ErrorCode)

	CreateError(message Ref) (Ref, ErrorCode)
	CreateRangeError(message Ref) (Ref, ErrorCode)
	CreateReferenceError(message Ref) (Ref, ErrorCode)
	CreateSyntaxError(message Ref) (Ref, ErrorCode)
	CreateTypeError(message Ref) (Ref, ErrorCode)
	CreateURIError(message Ref) (Ref, ErrorCode)
	HasException() (bool, ErrorCode)
	GetAndClearException() (Ref, ErrorCode)
	SetException(exception Ref) ErrorCode

	RunScript(script string, sourceContext uintptr, sourceURL string) (Ref, ErrorCode)
	// ParseScript compiles script without running it and returns a function
	// that runs it.
	ParseScript(script string, sourceContext uintptr, sourceURL string) (Ref, ErrorCode)
}
