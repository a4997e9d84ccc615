package abi

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dop251/goja"
	gojarequire "github.com/dop251/goja_nodejs/require"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/js-runtime/errors"
)

func newBound(t *testing.T, cfg Config, attrs RuntimeAttributes) (*Goja, Runtime, Context) {
	t.Helper()
	g := New(cfg)
	rt, code := g.CreateRuntime(attrs)
	require.Equal(t, NoError, code)
	ctx, code := g.CreateContext(rt)
	require.Equal(t, NoError, code)
	require.Equal(t, NoError, g.SetCurrentContext(ctx))
	t.Cleanup(func() {
		g.SetCurrentContext(0)
		g.DisposeRuntime(rt)
	})
	return g, rt, ctx
}

func run(t *testing.T, g *Goja, src string) Ref {
	t.Helper()
	ref, code := g.RunScript(src, 0, "test.js")
	require.Equal(t, NoError, code, "run %q", src)
	return ref
}

func str(t *testing.T, g *Goja, ref Ref) string {
	t.Helper()
	s, code := g.StringValue(ref)
	require.Equal(t, NoError, code)
	return s
}

func num(t *testing.T, g *Goja, ref Ref) float64 {
	t.Helper()
	f, code := g.NumberToDouble(ref)
	require.Equal(t, NoError, code)
	return f
}

func setGlobal(t *testing.T, g *Goja, name string, v Ref) {
	t.Helper()
	global, code := g.GetGlobalObject()
	require.Equal(t, NoError, code)
	defer g.Release(global)
	require.Equal(t, NoError, g.SetProperty(global, name, v))
}

func TestRunScript(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	ref := run(t, g, "1 + 2")
	assert.Equal(t, 3.0, num(t, g, ref))

	n, code := g.NumberToInt(ref)
	require.Equal(t, NoError, code)
	assert.Equal(t, int32(3), n)
}

func TestGetValueType(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	tests := []struct {
		src  string
		want ValueType
	}{
		{"undefined", Undefined},
		{"null", Null},
		{"1.5", Number},
		{"'s'", String},
		{"true", Boolean},
		{"({})", Object},
		{"(function () {})", Function},
		{"new Error('x')", Error},
		{"new RangeError('x')", Error},
		{"[1, 2]", Array},
		{"Symbol('s')", Symbol},
		{"new ArrayBuffer(2)", ArrayBuffer},
		{"new Uint8Array(2)", TypedArray},
		{"new DataView(new ArrayBuffer(2))", DataView},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			ref := run(t, g, tt.src)
			defer g.Release(ref)
			got, code := g.GetValueType(ref)
			require.Equal(t, NoError, code)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNoCurrentContext(t *testing.T) {
	g := New(Config{})
	_, code := g.CreateString("x")
	assert.Equal(t, ErrorNoCurrentContext, code)

	ctx, code := g.GetCurrentContext()
	require.Equal(t, NoError, code)
	assert.Equal(t, Context(0), ctx)
}

func TestRefCounting(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)
	base := g.LiveRefs()

	ref, code := g.CreateString("counted")
	require.Equal(t, NoError, code)
	assert.Equal(t, uint32(1), g.RefCount(ref))
	assert.Equal(t, base+1, g.LiveRefs())

	n, code := g.AddRef(ref)
	require.Equal(t, NoError, code)
	assert.Equal(t, uint32(2), n)

	n, code = g.Release(ref)
	require.Equal(t, NoError, code)
	assert.Equal(t, uint32(1), n)
	assert.Equal(t, "counted", str(t, g, ref))

	n, code = g.Release(ref)
	require.Equal(t, NoError, code)
	assert.Equal(t, uint32(0), n)
	assert.Equal(t, base, g.LiveRefs())

	_, code = g.Release(ref)
	assert.Equal(t, ErrorInvalidArgument, code)
	_, code = g.GetValueType(0)
	assert.Equal(t, ErrorNullArgument, code)
}

func TestRefBelongsToItsContext(t *testing.T) {
	g, rt, _ := newBound(t, Config{}, RuntimeAttributeNone)

	ref, code := g.CreateString("mine")
	require.Equal(t, NoError, code)

	other, code := g.CreateContext(rt)
	require.Equal(t, NoError, code)
	require.Equal(t, NoError, g.SetCurrentContext(other))

	_, code = g.GetValueType(ref)
	assert.Equal(t, ErrorInvalidArgument, code)
	_, code = g.Release(ref)
	assert.Equal(t, ErrorInvalidArgument, code)
}

func TestRuntimeInUse(t *testing.T) {
	g, rt, ctx := newBound(t, Config{}, RuntimeAttributeNone)

	var code ErrorCode
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		code = g.SetCurrentContext(ctx)
	}()
	wg.Wait()
	assert.Equal(t, ErrorRuntimeInUse, code)

	assert.Equal(t, ErrorRuntimeInUse, g.DisposeRuntime(rt))

	_, code = g.ContextRelease(ctx)
	assert.Equal(t, ErrorRuntimeInUse, code)

	require.Equal(t, NoError, g.SetCurrentContext(0))
	wg.Add(1)
	go func() {
		defer wg.Done()
		code = g.SetCurrentContext(ctx)
		if code == NoError {
			g.SetCurrentContext(0)
		}
	}()
	wg.Wait()
	assert.Equal(t, NoError, code)
}

func TestGoroutineID(t *testing.T) {
	main := GoroutineID()
	assert.NotZero(t, main)
	assert.Equal(t, main, GoroutineID())

	other := make(chan uint64)
	go func() { other <- GoroutineID() }()
	assert.NotEqual(t, main, <-other)
}

func TestExceptionState(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	_, code := g.RunScript("throw new TypeError('bad input')", 0, "throw.js")
	require.Equal(t, ErrorScriptException, code)

	has, code := g.HasException()
	require.Equal(t, NoError, code)
	assert.True(t, has)

	_, code = g.RunScript("1", 0, "")
	assert.Equal(t, ErrorInExceptionState, code)

	ex, code := g.GetAndClearException()
	require.Equal(t, NoError, code)
	msg, code := g.GetProperty(ex, "message")
	require.Equal(t, NoError, code)
	assert.Equal(t, "bad input", str(t, g, msg))

	_, code = g.GetAndClearException()
	assert.Equal(t, ErrorInvalidArgument, code)

	run(t, g, "1")
}

func TestCompileError(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	_, code := g.RunScript("var = ;", 0, "broken.js")
	require.Equal(t, ErrorScriptCompile, code)
	assert.True(t, code.IsScript())

	ex, code := g.GetAndClearException()
	require.Equal(t, NoError, code)
	typ, _ := g.GetValueType(ex)
	assert.Equal(t, Error, typ)
	name, _ := g.GetProperty(ex, "name")
	assert.Equal(t, "SyntaxError", str(t, g, name))
}

func TestErrorFactories(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	factories := map[string]func(Ref) (Ref, ErrorCode){
		"Error":          g.CreateError,
		"RangeError":     g.CreateRangeError,
		"ReferenceError": g.CreateReferenceError,
		"SyntaxError":    g.CreateSyntaxError,
		"TypeError":      g.CreateTypeError,
		"URIError":       g.CreateURIError,
	}
	msg, _ := g.CreateString("oops")
	for name, create := range factories {
		ref, code := create(msg)
		require.Equal(t, NoError, code, name)
		got, _ := g.GetProperty(ref, "name")
		assert.Equal(t, name, str(t, g, got))
		m, _ := g.GetProperty(ref, "message")
		assert.Equal(t, "oops", str(t, g, m))
	}
}

func TestNativeFunction(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	var gotArgs uint16
	add := func(callee Ref, construct bool, args []Ref, argCount uint16, state uintptr) Ref {
		gotArgs = argCount
		sum := float64(state)
		for _, a := range args[1:argCount] {
			f, code := g.NumberToDouble(a)
			if code != NoError {
				return 0
			}
			sum += f
		}
		out, _ := g.DoubleToNumber(sum)
		return out
	}
	name, _ := g.CreateString("add")
	fn, code := g.CreateNamedFunction(name, add, 100)
	require.Equal(t, NoError, code)
	setGlobal(t, g, "add", fn)

	assert.Equal(t, 105.0, num(t, g, run(t, g, "add(2, 3)")))
	assert.Equal(t, uint16(3), gotArgs)
	assert.Equal(t, "add", str(t, g, run(t, g, "add.name")))
}

func TestNativeFunctionReleasesTemporaries(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	noop := func(Ref, bool, []Ref, uint16, uintptr) Ref { return 0 }
	fn, code := g.CreateFunction(noop, 0)
	require.Equal(t, NoError, code)
	setGlobal(t, g, "noop", fn)

	before := g.LiveRefs()
	_, code = g.RunScript("for (var i = 0; i < 10; i++) noop(1, 2, 3)", 0, "")
	require.Equal(t, NoError, code)
	// only the script result remains
	assert.Equal(t, before+1, g.LiveRefs())
}

func TestNativeFunctionThrows(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	fail := func(Ref, bool, []Ref, uint16, uintptr) Ref {
		msg, _ := g.CreateString("boom")
		err, _ := g.CreateError(msg)
		g.SetException(err)
		return 0
	}
	fn, _ := g.CreateFunction(fail, 0)
	setGlobal(t, g, "fail", fn)

	got := run(t, g, "try { fail(); 'no' } catch (e) { e.message }")
	assert.Equal(t, "boom", str(t, g, got))

	has, _ := g.HasException()
	assert.False(t, has)
}

func TestNativeFunctionPanics(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	fn, _ := g.CreateFunction(func(Ref, bool, []Ref, uint16, uintptr) Ref {
		panic("native bug")
	}, 0)
	setGlobal(t, g, "bad", fn)

	_, code := g.RunScript("bad()", 0, "")
	assert.Equal(t, ErrorScriptException, code)
	has, _ := g.HasException()
	assert.True(t, has)
}

func TestNativeConstructor(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	var constructs []bool
	fn, _ := g.CreateFunction(func(_ Ref, construct bool, args []Ref, _ uint16, _ uintptr) Ref {
		constructs = append(constructs, construct)
		if construct {
			v, _ := g.IntToNumber(7)
			g.SetProperty(args[0], "n", v)
		}
		return 0
	}, 0)
	setGlobal(t, g, "Thing", fn)

	assert.Equal(t, 7.0, num(t, g, run(t, g, "new Thing().n")))
	run(t, g, "Thing()")
	assert.Equal(t, []bool{true, false}, constructs)
}

func TestCallFunction(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	fn := run(t, g, "(function (a, b) { return this.x + a + b })")
	this, _ := g.CreateObject()
	one, _ := g.IntToNumber(1)
	require.Equal(t, NoError, g.SetProperty(this, "x", one))
	two, _ := g.IntToNumber(2)
	three, _ := g.IntToNumber(3)

	out, code := g.CallFunction(fn, []Ref{this, two, three}, 3)
	require.Equal(t, NoError, code)
	assert.Equal(t, 6.0, num(t, g, out))

	_, code = g.CallFunction(fn, nil, 0)
	assert.Equal(t, ErrorInvalidArgument, code)
	_, code = g.CallFunction(one, []Ref{this}, 1)
	assert.Equal(t, ErrorInvalidArgument, code)
}

func TestConstructObject(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	ctor := run(t, g, "(function Point(x) { this.x = x })")
	undef, _ := g.GetUndefinedValue()
	x, _ := g.IntToNumber(4)

	obj, code := g.ConstructObject(ctor, []Ref{undef, x}, 2)
	require.Equal(t, NoError, code)
	got, _ := g.GetProperty(obj, "x")
	assert.Equal(t, 4.0, num(t, g, got))
}

func TestObjectProperties(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	obj, _ := g.CreateObject()
	v, _ := g.CreateString("v")
	require.Equal(t, NoError, g.SetProperty(obj, "k", v))

	has, code := g.HasProperty(obj, "k")
	require.Equal(t, NoError, code)
	assert.True(t, has)

	names, _ := g.GetOwnPropertyNames(obj)
	typ, _ := g.GetValueType(names)
	assert.Equal(t, Array, typ)

	deleted, code := g.DeleteProperty(obj, "k")
	require.Equal(t, NoError, code)
	assert.True(t, deleted)
	has, _ = g.HasProperty(obj, "k")
	assert.False(t, has)

	s, _ := g.CreateString("not an object")
	_, code = g.GetProperty(s, "length")
	assert.Equal(t, ErrorArgumentNotObject, code)
}

func TestIndexedPropertiesAndArrays(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	arr, code := g.CreateArray(3)
	require.Equal(t, NoError, code)
	length, _ := g.GetProperty(arr, "length")
	assert.Equal(t, 3.0, num(t, g, length))

	idx, _ := g.IntToNumber(1)
	val, _ := g.CreateString("one")
	require.Equal(t, NoError, g.SetIndexedProperty(arr, idx, val))
	got, _ := g.GetIndexedProperty(arr, idx)
	assert.Equal(t, "one", str(t, g, got))

	desc, _ := g.CreateString("tag")
	sym, code := g.CreateSymbol(desc)
	require.Equal(t, NoError, code)
	require.Equal(t, NoError, g.SetIndexedProperty(arr, sym, val))
	got, _ = g.GetIndexedProperty(arr, sym)
	assert.Equal(t, "one", str(t, g, got))
}

func TestPrototype(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	proto := run(t, g, "({ greet: function () { return 'hi' } })")
	obj, _ := g.CreateObject()
	require.Equal(t, NoError, g.SetPrototype(obj, proto))

	got, _ := g.GetPrototype(obj)
	same, _ := g.StrictEquals(got, proto)
	assert.True(t, same)

	has, _ := g.HasProperty(obj, "greet")
	assert.True(t, has)
}

func TestArrayBufferStorage(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	buf, code := g.CreateArrayBuffer(4)
	require.Equal(t, NoError, code)
	data, code := g.GetArrayBufferStorage(buf)
	require.Equal(t, NoError, code)
	require.Len(t, data, 4)

	data[2] = 9
	setGlobal(t, g, "buf", buf)
	assert.Equal(t, 9.0, num(t, g, run(t, g, "new Uint8Array(buf)[2]")))

	obj, _ := g.CreateObject()
	_, code = g.GetArrayBufferStorage(obj)
	assert.Equal(t, ErrorInvalidArgument, code)
}

func TestConversions(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	obj := run(t, g, "({ toString: function () { return 'custom' }, valueOf: function () { return 42 } })")
	s, code := g.ConvertValueToString(obj)
	require.Equal(t, NoError, code)
	assert.Equal(t, "custom", str(t, g, s))

	n, code := g.ConvertValueToNumber(obj)
	require.Equal(t, NoError, code)
	assert.Equal(t, 42.0, num(t, g, n))

	empty, _ := g.CreateString("")
	b, code := g.ConvertValueToBoolean(empty)
	require.Equal(t, NoError, code)
	truth, _ := g.BooleanToBool(b)
	assert.False(t, truth)

	_, code = g.StringValue(obj)
	assert.Equal(t, ErrorInvalidArgument, code)
}

func TestExternalObjectFinalizedOnRelease(t *testing.T) {
	g := New(Config{})
	rt, _ := g.CreateRuntime(RuntimeAttributeNone)
	defer g.DisposeRuntime(rt)
	ctx, _ := g.CreateContext(rt)
	require.Equal(t, NoError, g.SetCurrentContext(ctx))

	var finalized []uintptr
	ext, code := g.CreateExternalObject(42, func(data uintptr) {
		finalized = append(finalized, data)
	})
	require.Equal(t, NoError, code)

	data, code := g.GetExternalData(ext)
	require.Equal(t, NoError, code)
	assert.Equal(t, uintptr(42), data)
	n, _ := g.ExternalCount()
	assert.Equal(t, 1, n)

	plain, _ := g.CreateObject()
	_, code = g.GetExternalData(plain)
	assert.Equal(t, ErrorInvalidArgument, code)

	require.Equal(t, NoError, g.SetCurrentContext(0))
	left, code := g.ContextRelease(ctx)
	require.Equal(t, NoError, code)
	assert.Equal(t, uint32(0), left)
	assert.Equal(t, []uintptr{42}, finalized)
	assert.Zero(t, g.LiveRefs())
}

func TestExternalObjectCollected(t *testing.T) {
	g, rt, _ := newBound(t, Config{}, RuntimeAttributeNone)

	var finalized atomic.Int32
	for i := 0; i < 8; i++ {
		ref, code := g.CreateExternalObject(uintptr(i), func(uintptr) { finalized.Add(1) })
		require.Equal(t, NoError, code)
		_, code = g.Release(ref)
		require.Equal(t, NoError, code)
	}

	assert.Eventually(t, func() bool {
		g.CollectGarbage(rt)
		return finalized.Load() == 8
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisableRuntimeExecution(t *testing.T) {
	g, rt, _ := newBound(t, Config{}, RuntimeAttributeNone)

	require.Equal(t, NoError, g.DisableRuntimeExecution(rt))
	disabled, _ := g.IsRuntimeExecutionDisabled(rt)
	assert.True(t, disabled)

	_, code := g.RunScript("1", 0, "")
	assert.Equal(t, ErrorInDisabledState, code)

	require.Equal(t, NoError, g.EnableRuntimeExecution(rt))
	run(t, g, "1")
}

func TestDisableInterruptsRunningScript(t *testing.T) {
	g, rt, _ := newBound(t, Config{}, RuntimeAttributeNone)

	timer := time.AfterFunc(20*time.Millisecond, func() {
		g.DisableRuntimeExecution(rt)
	})
	defer timer.Stop()

	_, code := g.RunScript("for (;;) {}", 0, "spin.js")
	assert.Equal(t, ErrorScriptTerminated, code)

	require.Equal(t, NoError, g.EnableRuntimeExecution(rt))
	run(t, g, "1")
}

func TestIdle(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)
	_, code := g.Idle()
	assert.Equal(t, ErrorIdleNotEnabled, code)

	g2, _, _ := newBound(t, Config{}, RuntimeAttributeEnableIdleProcessing)
	next, code := g2.Idle()
	require.Equal(t, NoError, code)
	assert.Equal(t, IdleTick, next)
}

func TestDisableEval(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeDisableEval)

	_, code := g.RunScript("eval('1 + 1')", 0, "")
	assert.Equal(t, ErrorScriptException, code)
	ex, _ := g.GetAndClearException()
	msg, _ := g.GetProperty(ex, "message")
	assert.Contains(t, str(t, g, msg), "eval is disabled")
}

type capturePrinter struct {
	mu    sync.Mutex
	lines []string
}

func (p *capturePrinter) add(s string) {
	p.mu.Lock()
	p.lines = append(p.lines, s)
	p.mu.Unlock()
}

func (p *capturePrinter) Log(s string)   { p.add(s) }
func (p *capturePrinter) Warn(s string)  { p.add("warn: " + s) }
func (p *capturePrinter) Error(s string) { p.add("error: " + s) }

func TestConsoleAndModules(t *testing.T) {
	printer := &capturePrinter{}
	cfg := Config{
		Console: printer,
		Modules: map[string]gojarequire.ModuleLoader{
			"greeting": func(vm *goja.Runtime, module *goja.Object) {
				exports := module.Get("exports").(*goja.Object)
				exports.Set("text", "hello")
			},
		},
	}
	g, _, _ := newBound(t, cfg, RuntimeAttributeNone)

	run(t, g, "console.log('one'); console.warn('two')")
	assert.Equal(t, []string{"one", "warn: two"}, printer.lines)

	assert.Equal(t, "hello", str(t, g, run(t, g, "require('greeting').text")))
}

func TestParseScript(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	fn, code := g.ParseScript("counter = (typeof counter === 'undefined' ? 0 : counter) + 1", 0, "count.js")
	require.Equal(t, NoError, code)
	undef, _ := g.GetUndefinedValue()

	for i := 1; i <= 2; i++ {
		out, code := g.CallFunction(fn, []Ref{undef}, 1)
		require.Equal(t, NoError, code)
		assert.Equal(t, float64(i), num(t, g, out))
	}

	thrower, _ := g.ParseScript("throw new Error('parsed')", 0, "")
	_, code = g.CallFunction(thrower, []Ref{undef}, 1)
	assert.Equal(t, ErrorScriptException, code)
}

func TestSingletons(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)

	a, _ := g.GetTrueValue()
	b, _ := g.BoolToBoolean(true)
	same, code := g.StrictEquals(a, b)
	require.Equal(t, NoError, code)
	assert.True(t, same)

	f, _ := g.GetFalseValue()
	same, _ = g.StrictEquals(a, f)
	assert.False(t, same)

	null, _ := g.GetNullValue()
	typ, _ := g.GetValueType(null)
	assert.Equal(t, Null, typ)
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "RuntimeInUse", ErrorRuntimeInUse.String())
	assert.Equal(t, ErrorCategoryUsage, ErrorInvalidArgument.Category())
	assert.True(t, ErrorScriptException.IsScript())
	assert.False(t, ErrorInvalidArgument.IsScript())
	assert.NoError(t, NoError.Err("op"))
	assert.Error(t, ErrorFatal.Err("op"))
	assert.Equal(t, "ErrorCode(0x12345)", ErrorCode(0x12345).String())
}

func TestClose(t *testing.T) {
	g := New(Config{})
	rt, code := g.CreateRuntime(RuntimeAttributeNone)
	require.Equal(t, NoError, code)
	ctx, code := g.CreateContext(rt)
	require.Equal(t, NoError, code)
	require.Equal(t, NoError, g.SetCurrentContext(ctx))

	var finalized []uintptr
	_, code = g.CreateExternalObject(7, func(data uintptr) { finalized = append(finalized, data) })
	require.Equal(t, NoError, code)
	_, code = g.CreateString("kept")
	require.Equal(t, NoError, code)

	err := g.Close()
	require.Error(t, err, "context still current")
	status, ok := errors.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, ErrorRuntimeInUse, ErrorCode(status))

	require.Equal(t, NoError, g.SetCurrentContext(0))
	require.NoError(t, g.Close())
	assert.Equal(t, []uintptr{7}, finalized)
	assert.Zero(t, g.LiveRefs())

	assert.Equal(t, ErrorInvalidArgument, g.SetCurrentContext(ctx))
	_, code = g.CreateRuntime(RuntimeAttributeNone)
	assert.Equal(t, ErrorInvalidArgument, code)
	assert.NoError(t, g.Close())
}

func TestCloseWhileBound(t *testing.T) {
	g, _, _ := newBound(t, Config{}, RuntimeAttributeNone)
	assert.Error(t, g.Close())
}
