package engine

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
)

func TestHostFunction_ThunkPerFunction(t *testing.T) {
	e, _ := newTestEngine(t)

	noop := func(ce *Engine, _ bool, _ Value, _ []Value) (Value, error) { return nil, nil }
	_, err := e.CreateFunction(noop)
	require.NoError(t, err)
	_, err = e.CreateNamedFunction("named", noop)
	require.NoError(t, err)
	assert.Equal(t, 2, e.ThunkCount())

	_, err = e.CreateNamedFunction("", noop)
	assert.Error(t, err)
	_, err = e.CreateFunction(nil)
	assert.Error(t, err)
	assert.Equal(t, 2, e.ThunkCount())
}

func TestHostFunction_NameVisibleToScript(t *testing.T) {
	e, _ := newTestEngine(t)

	fn, err := e.CreateNamedFunction("greet", func(ce *Engine, _ bool, _ Value, _ []Value) (Value, error) {
		return ce.FromString("hi")
	})
	require.NoError(t, err)
	require.NoError(t, e.SetGlobalVariable("g", fn))

	assert.Equal(t, "greet", toString(t, e, run(t, e, "g.name")))
	assert.Equal(t, "hi", toString(t, e, run(t, e, "g()")))
}

func TestHostFunction_UndefinedResult(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.SetGlobalFunction("nothing", func(*Engine, bool, Value, []Value) (Value, error) {
		return nil, nil
	}))
	assert.Equal(t, abi.Undefined, run(t, e, "nothing()").Type())
}

func TestHostFunction_Constructor(t *testing.T) {
	e, _ := newTestEngine(t)

	var calls []bool
	require.NoError(t, e.SetGlobalFunction("Point", func(ce *Engine, asConstructor bool, this Value, args []Value) (Value, error) {
		calls = append(calls, asConstructor)
		if !asConstructor {
			return nil, nil
		}
		obj, ok := this.(ObjectLike)
		if !ok {
			return nil, fmt.Errorf("constructor without receiver")
		}
		if err := obj.SetProperty("x", args[0]); err != nil {
			return nil, err
		}
		return nil, nil
	}))

	out := run(t, e, "var p = new Point(3); p.x")
	assert.Equal(t, 3.0, toNumber(t, e, out))
	run(t, e, "Point(1)")
	assert.Equal(t, []bool{true, false}, calls)
}

func TestHostFunction_ArgumentsAreRetainable(t *testing.T) {
	e, _ := newTestEngine(t)

	var kept []Value
	require.NoError(t, e.SetGlobalFunction("keep", func(_ *Engine, _ bool, _ Value, args []Value) (Value, error) {
		kept = append(kept, args...)
		return nil, nil
	}))
	run(t, e, "keep({ n: 1 }, 'two')")

	require.Len(t, kept, 2)
	n, err := kept[0].(*Object).GetProperty("n")
	require.NoError(t, err)
	assert.Equal(t, 1.0, toNumber(t, e, n))
	assert.Equal(t, "two", toString(t, e, kept[1]))
}

func TestHostFunction_PanicBecomesException(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.SetGlobalFunction("explode", func(*Engine, bool, Value, []Value) (Value, error) {
		panic("kaboom")
	}))

	msg := run(t, e, "try { explode() } catch (e) { e.message }")
	assert.Contains(t, toString(t, e, msg), "kaboom")

	assert.Equal(t, 2.0, toNumber(t, e, run(t, e, "1 + 1")))
}

func TestHostFunction_ReentersScript(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.SetGlobalFunction("callBack", func(ce *Engine, _ bool, _ Value, args []Value) (Value, error) {
		fn, ok := args[0].(*Function)
		if !ok {
			return nil, fmt.Errorf("expected function")
		}
		two, err := ce.FromInt32(2)
		if err != nil {
			return nil, err
		}
		return fn.Invoke(two)
	}))

	out := run(t, e, "callBack(function (n) { return n * 21 })")
	assert.Equal(t, 42.0, toNumber(t, e, out))
}

func TestNativeTrampoline_StaleThunk(t *testing.T) {
	e, _ := newTestEngine(t)

	fn, err := e.CreateFunction(func(ce *Engine, _ bool, _ Value, _ []Value) (Value, error) {
		return ce.FromInt32(1)
	})
	require.NoError(t, err)

	e.thunkMu.Lock()
	id := e.thunks[0]
	e.thunkMu.Unlock()
	_, ok := callbackThunks.Get(id)
	require.True(t, ok)

	require.NoError(t, e.Close())
	assert.Zero(t, e.ThunkCount())
	_, ok = callbackThunks.Get(id)
	assert.False(t, ok)

	assert.Equal(t, abi.Invalid, nativeTrampoline(abi.Invalid, false, nil, 0, uintptr(id)))
	runtime.KeepAlive(fn)
}

func TestNativeTrampoline_UnknownThunk(t *testing.T) {
	assert.Equal(t, abi.Invalid, nativeTrampoline(abi.Invalid, false, nil, 0, 0xFFFFFF))
}

func TestHostFunction_ErrorKeepsStructure(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.SetGlobalFunction("missing", func(*Engine, bool, Value, []Value) (Value, error) {
		return nil, errors.NotFound(errors.PhaseHost, "key", "k1")
	}))

	_, err := e.Execute(NewScriptSource("m.js", "missing()"))
	var se *errors.ScriptError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, `key "k1" not found`)

	var ee *errors.Error
	require.True(t, errors.As(e.LastException().Cause, &ee))
	assert.Equal(t, errors.KindNotFound, ee.Kind)
}
