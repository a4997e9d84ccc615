package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/errors"
)

func newTestRuntime(t *testing.T, attrs abi.RuntimeAttributes) (*abi.Goja, abi.Runtime) {
	t.Helper()
	g := abi.New(abi.Config{})
	rt, code := g.CreateRuntime(attrs)
	require.Equal(t, abi.NoError, code)
	t.Cleanup(func() { g.DisposeRuntime(rt) })
	return g, rt
}

func newEngineOn(t *testing.T, g *abi.Goja, rt abi.Runtime) *Engine {
	t.Helper()
	e, err := New(g, rt)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Close()) })
	return e
}

func newTestEngine(t *testing.T) (*Engine, *abi.Goja) {
	t.Helper()
	g, rt := newTestRuntime(t, abi.RuntimeAttributeNone)
	return newEngineOn(t, g, rt), g
}

func run(t *testing.T, e *Engine, src string) Value {
	t.Helper()
	v, err := e.Execute(NewScriptSource("test.js", src))
	require.NoError(t, err, "run %q", src)
	return v
}

func toString(t *testing.T, e *Engine, v Value) string {
	t.Helper()
	s, err := e.ToString(v)
	require.NoError(t, err)
	return s
}

func toNumber(t *testing.T, e *Engine, v Value) float64 {
	t.Helper()
	f, err := e.ToFloat64(v)
	require.NoError(t, err)
	return f
}

func TestNew_Singletons(t *testing.T) {
	e, _ := newTestEngine(t)

	assert.Equal(t, abi.Undefined, e.Undefined().Type())
	assert.Equal(t, abi.Null, e.Null().Type())
	assert.Equal(t, abi.Boolean, e.True().Type())
	assert.Equal(t, abi.Boolean, e.False().Type())
	assert.Equal(t, abi.Object, e.GlobalObject().Type())

	e.Undefined().Release()
	e.GlobalObject().Release()
	assert.True(t, e.Undefined().Handle().Valid(), "singletons ignore Release")
	assert.True(t, e.GlobalObject().Handle().Valid())
	assert.Same(t, e.True(), e.FromBool(true))
	assert.Same(t, e.False(), e.FromBool(false))
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.Close())
	assert.True(t, e.Closed())
	assert.NoError(t, e.Close())
}

func TestEngine_UseAfterClosePanics(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Close())

	assert.Panics(t, func() { e.AcquireContext() })
	assert.Panics(t, func() { e.Execute(NewScriptSource("x.js", "1")) })
	assert.Panics(t, func() { e.CollectGarbage() })
}

func TestEngine_CloseWhileInUse(t *testing.T) {
	e, _ := newTestEngine(t)

	tok, err := e.AcquireContext()
	require.NoError(t, err)
	err = e.Close()
	assert.Error(t, err)
	assert.False(t, e.Closed())
	tok.Close()
}

func TestEngine_Globals(t *testing.T) {
	e, _ := newTestEngine(t)

	five, err := e.FromInt32(5)
	require.NoError(t, err)
	require.NoError(t, e.SetGlobalVariable("five", five))

	has, err := e.HasGlobalVariable("five")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = e.HasGlobalVariable("missing")
	require.NoError(t, err)
	assert.False(t, has)

	run(t, e, "function twice(n) { return n * 2 }")
	out, err := e.CallGlobalFunction("twice", five)
	require.NoError(t, err)
	assert.Equal(t, 10.0, toNumber(t, e, out))

	_, err = e.CallGlobalFunction("five")
	var ee *errors.Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, errors.KindTypeMismatch, ee.Kind)

	assert.Error(t, e.SetGlobalVariable("x", nil))
}

func TestEngine_OnRuntimeException(t *testing.T) {
	e, _ := newTestEngine(t)

	var seen []*errors.ScriptError
	e.OnRuntimeException(func(_ *Engine, se *errors.ScriptError) {
		seen = append(seen, se)
	})

	_, err := e.Execute(NewScriptSource("boom.js", "throw new RangeError('out of range')"))
	require.Error(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "RangeError", seen[0].Name)
	assert.Equal(t, "out of range", seen[0].Message)
	assert.True(t, errors.Is(err, errors.ErrScriptException))
}

func TestEngine_RunIdleWork(t *testing.T) {
	g, rt := newTestRuntime(t, abi.RuntimeAttributeEnableIdleProcessing)
	e := newEngineOn(t, g, rt)

	next, err := e.RunIdleWork()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(abi.IdleTick)*time.Millisecond, next)

	plain, _ := newTestEngine(t)
	_, err = plain.RunIdleWork()
	code, ok := errors.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, uint32(abi.ErrorIdleNotEnabled), code)
}

func TestEngine_HostFunctionEndToEnd(t *testing.T) {
	e, _ := newTestEngine(t)

	var (
		thisIsGlobal bool
		got          []any
	)
	err := e.SetGlobalFunction("F", func(ce *Engine, asConstructor bool, this Value, args []Value) (Value, error) {
		assert.False(t, asConstructor)
		var err error
		thisIsGlobal, err = ce.StrictEquals(this, ce.GlobalObject())
		assert.NoError(t, err)
		for _, a := range args {
			x, err := ce.ToAny(a)
			assert.NoError(t, err)
			got = append(got, x)
		}
		return ce.FromInt32(42)
	})
	require.NoError(t, err)

	out := run(t, e, "F(1, 'a')")
	assert.Equal(t, 42.0, toNumber(t, e, out))
	assert.True(t, thisIsGlobal)
	assert.Equal(t, []any{1.0, "a"}, got)
}

func TestEngine_HostErrorBecomesScriptException(t *testing.T) {
	e, _ := newTestEngine(t)

	fail := true
	err := e.SetGlobalFunction("G", func(ce *Engine, _ bool, _ Value, _ []Value) (Value, error) {
		if fail {
			return nil, fmt.Errorf("boom")
		}
		return ce.FromString("ok")
	})
	require.NoError(t, err)

	caught := run(t, e, "try { G() } catch (e) { e.message }")
	assert.Equal(t, "boom", toString(t, e, caught))

	_, err = e.Execute(NewScriptSource("g.js", "G()"))
	var se *errors.ScriptError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Error", se.Name)
	assert.Equal(t, "boom", se.Message)

	last := e.LastException()
	require.NotNil(t, last)
	assert.EqualError(t, last.Cause, "boom")

	has, err := e.HasException()
	require.NoError(t, err)
	assert.False(t, has)

	fail = false
	assert.Equal(t, "ok", toString(t, e, run(t, e, "G()")))
}

func TestEngine_ScriptErrorPassesThroughHostFunction(t *testing.T) {
	e, _ := newTestEngine(t)

	err := e.SetGlobalFunction("relay", func(ce *Engine, _ bool, _ Value, args []Value) (Value, error) {
		fn, ok := args[0].(*Function)
		if !ok {
			return nil, fmt.Errorf("not a function")
		}
		return fn.Invoke()
	})
	require.NoError(t, err)

	out := run(t, e, `
		var thrown = { tag: 1 };
		try { relay(function () { throw thrown }) } catch (e) { e === thrown }
	`)
	b, err := e.ToBool(out)
	require.NoError(t, err)
	assert.True(t, b, "the original exception value reaches the outer catch")
}
