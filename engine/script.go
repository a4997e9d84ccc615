package engine

import (
	"math"
	"strings"
	"sync/atomic"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
)

var sourceContexts atomic.Uintptr

// ScriptSource is script text plus where it came from.
type ScriptSource struct {
	Location  string
	Text      string
	ContextID uintptr
}

// NewScriptSource returns a source with a process-unique context id.
func NewScriptSource(location, text string) ScriptSource {
	return ScriptSource{Location: location, Text: text, ContextID: sourceContexts.Add(1)}
}

// Execute runs src in the global scope and returns its completion value.
func (e *Engine) Execute(src ScriptSource) (Value, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := e.api.RunScript(src.Text, src.ContextID, src.Location)
	if err := e.check("RunScript", code); err != nil {
		return nil, err
	}
	if ref == abi.Invalid {
		return e.undefined, nil
	}
	return e.wrapValue(ref)
}

// Evaluate compiles src into a function that runs it when called.
func (e *Engine) Evaluate(src ScriptSource) (*Function, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := e.api.ParseScript(src.Text, src.ContextID, src.Location)
	if err := e.check("ParseScript", code); err != nil {
		return nil, err
	}
	obj, err := e.wrapObject(ref)
	if err != nil {
		return nil, err
	}
	fn, ok := obj.(*Function)
	if !ok {
		obj.Release()
		return nil, errors.TypeMismatch(errors.PhaseScript, "function", obj.Type().String())
	}
	return fn, nil
}

// EvaluateScriptText is Evaluate for an anonymous snippet.
func (e *Engine) EvaluateScriptText(code string) (*Function, error) {
	return e.Evaluate(NewScriptSource("[eval code]", code))
}

func (e *Engine) HasException() (bool, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return false, err
	}
	defer tok.Close()

	has, code := e.api.HasException()
	if code != abi.NoError {
		return false, code.Err("HasException")
	}
	return has, nil
}

// GetAndClearException returns the pending exception and clears it.
func (e *Engine) GetAndClearException() (Value, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := e.api.GetAndClearException()
	if code != abi.NoError {
		return nil, code.Err("GetAndClearException")
	}
	return e.wrapValue(ref)
}

const stackScript = "new Error('StackRetrieval').stack"

// SetException makes exception the pending script exception, replacing any
// exception already pending. cause, when not nil, is the host error it
// stands for; it is kept with the current script stack as LastException.
func (e *Engine) SetException(exception Value, cause error) error {
	if exception == nil {
		return errors.InvalidInput(errors.PhaseScript, "exception is nil")
	}
	tok, err := e.AcquireContext()
	if err != nil {
		return err
	}
	defer tok.Close()

	ref, err := e.refOf(exception)
	if err != nil {
		return err
	}
	if has, _ := e.api.HasException(); has {
		e.discardException()
	}

	se := &errors.ScriptError{Value: exception, Cause: cause}
	e.describe(ref, se)
	if stack := e.scriptStack(); stack != "" {
		se.Stack = stack
	}

	if code := e.api.SetException(ref); code != abi.NoError {
		return code.Err("SetException")
	}

	e.hookMu.Lock()
	e.lastException = se
	e.hookMu.Unlock()
	return nil
}

// scriptStack captures the script call stack at this point, without the
// capturing script's own frame.
func (e *Engine) scriptStack() string {
	ref, code := e.api.RunScript(stackScript, 0, "")
	if code != abi.NoError {
		e.discardException()
		return ""
	}
	defer e.api.Release(ref)
	if typ, _ := e.api.GetValueType(ref); typ != abi.String {
		return ""
	}
	s, _ := e.api.StringValue(ref)
	_, rest, _ := strings.Cut(s, "\n")
	if _, after, ok := strings.Cut(rest, "\n"); ok {
		return after
	}
	return ""
}

// LastException returns the last exception installed with SetException.
func (e *Engine) LastException() *errors.ScriptError {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	return e.lastException
}

func (e *Engine) createError(op, message string, create func(abi.Ref) (abi.Ref, abi.ErrorCode)) (*Object, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	msg, code := e.api.CreateString(message)
	if code != abi.NoError {
		return nil, code.Err("CreateString")
	}
	defer e.api.Release(msg)

	ref, code := create(msg)
	if err := e.check(op, code); err != nil {
		return nil, err
	}
	obj, err := e.wrapObject(ref)
	if err != nil {
		return nil, err
	}
	return obj.object(), nil
}

func (e *Engine) CreateError(message string) (*Object, error) {
	return e.createError("CreateError", message, e.api.CreateError)
}

func (e *Engine) CreateRangeError(message string) (*Object, error) {
	return e.createError("CreateRangeError", message, e.api.CreateRangeError)
}

func (e *Engine) CreateReferenceError(message string) (*Object, error) {
	return e.createError("CreateReferenceError", message, e.api.CreateReferenceError)
}

func (e *Engine) CreateSyntaxError(message string) (*Object, error) {
	return e.createError("CreateSyntaxError", message, e.api.CreateSyntaxError)
}

func (e *Engine) CreateTypeError(message string) (*Object, error) {
	return e.createError("CreateTypeError", message, e.api.CreateTypeError)
}

func (e *Engine) CreateURIError(message string) (*Object, error) {
	return e.createError("CreateURIError", message, e.api.CreateURIError)
}

// CreateObject creates an empty object; a non-nil prototype replaces the
// default one.
func (e *Engine) CreateObject(prototype ObjectLike) (*Object, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := e.api.CreateObject()
	if code != abi.NoError {
		return nil, code.Err("CreateObject")
	}
	if prototype != nil {
		p, err := e.refOf(prototype)
		if err != nil {
			e.api.Release(ref)
			return nil, err
		}
		if err := e.check("SetPrototype", e.api.SetPrototype(ref, p)); err != nil {
			e.api.Release(ref)
			return nil, err
		}
	}
	obj, err := e.wrapObject(ref)
	if err != nil {
		return nil, err
	}
	return obj.object(), nil
}

// CreateArray creates an array of length undefined elements.
func (e *Engine) CreateArray(length int) (*Array, error) {
	if length < 0 || int64(length) > math.MaxUint32 {
		return nil, errors.OutOfBounds(errors.PhaseScript, []string{"length"}, length, math.MaxUint32)
	}
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := e.api.CreateArray(uint32(length))
	if code != abi.NoError {
		return nil, code.Err("CreateArray")
	}
	return e.wrapArray(ref)
}

func (e *Engine) CreateArrayBuffer(length int) (*ArrayBuffer, error) {
	if length < 0 || int64(length) > math.MaxUint32 {
		return nil, errors.OutOfBounds(errors.PhaseScript, []string{"length"}, length, math.MaxUint32)
	}
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	ref, code := e.api.CreateArrayBuffer(uint32(length))
	if code != abi.NoError {
		return nil, code.Err("CreateArrayBuffer")
	}
	obj, err := e.wrapObject(ref)
	if err != nil {
		return nil, err
	}
	buf, ok := obj.(*ArrayBuffer)
	if !ok {
		obj.Release()
		return nil, errors.TypeMismatch(errors.PhaseScript, "ArrayBuffer", obj.Type().String())
	}
	return buf, nil
}

// CreateSymbol creates a new symbol with the given description.
func (e *Engine) CreateSymbol(description string) (*Symbol, error) {
	tok, err := e.AcquireContext()
	if err != nil {
		return nil, err
	}
	defer tok.Close()

	desc, code := e.api.CreateString(description)
	if code != abi.NoError {
		return nil, code.Err("CreateString")
	}
	defer e.api.Release(desc)

	ref, code := e.api.CreateSymbol(desc)
	if err := e.check("CreateSymbol", code); err != nil {
		return nil, err
	}
	v, err := e.wrapValue(ref)
	if err != nil {
		return nil, err
	}
	sym, ok := v.(*Symbol)
	if !ok {
		v.Release()
		return nil, errors.TypeMismatch(errors.PhaseScript, "symbol", v.Type().String())
	}
	return sym, nil
}
