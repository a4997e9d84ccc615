package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/runtime"
)

func TestParseArg(t *testing.T) {
	assert.Equal(t, 42.0, parseArg("42"))
	assert.Equal(t, true, parseArg("true"))
	assert.Equal(t, []any{1.0, "a"}, parseArg(`[1,"a"]`))
	assert.Equal(t, "hello", parseArg("hello"))
}

func TestHostFunctions(t *testing.T) {
	var printed []string
	rt, err := newRuntime(&runtime.Config{}, func(s string) { printed = append(printed, s) })
	require.NoError(t, err)
	defer rt.Close()

	e, err := rt.NewEngine()
	require.NoError(t, err)

	t.Setenv("JS_RUNTIME_TEST", "set")
	v, err := rt.Run(context.Background(), e, engine.NewScriptSource("t.js",
		"host.print('a', 1, true); [host.env('JS_RUNTIME_TEST'), host.env('JS_RUNTIME_MISSING')]"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a 1 true"}, printed)
	assert.Equal(t, `["set",null]`, formatValue(e, v))
}

func TestGlobalFunctionsSkipsBuiltins(t *testing.T) {
	rt, err := newRuntime(&runtime.Config{}, func(string) {})
	require.NoError(t, err)
	defer rt.Close()

	e, err := rt.NewEngine()
	require.NoError(t, err)

	builtins, err := globalFunctions(e, nil)
	require.NoError(t, err)
	assert.Contains(t, builtins, "parseInt")

	_, err = rt.Run(context.Background(), e, engine.NewScriptSource("t.js", "function b() {} function a() {} var c = 1"))
	require.NoError(t, err)

	funcs, err := globalFunctions(e, builtins)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, funcs)
}

func TestRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "add.js")
	require.NoError(t, os.WriteFile(path, []byte("function add(a, b) { return a + b }"), 0o644))

	cfg := &runtime.Config{}
	assert.NoError(t, run(cfg, path, "add", []string{"2", "3"}, 0, false))
	assert.NoError(t, run(cfg, path, "", nil, 0, true))
	assert.Error(t, run(cfg, path, "missing", nil, 0, false))
	assert.Error(t, run(cfg, filepath.Join(t.TempDir(), "none.js"), "", nil, 0, false))
}
