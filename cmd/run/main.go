package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/runtime"
)

// argList collects repeated -arg flags.
type argList []string

func (a *argList) String() string { return strings.Join(*a, ",") }

func (a *argList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	var (
		args        argList
		scriptFile  = flag.String("script", "", "Path to a JavaScript file")
		funcName    = flag.String("func", "", "Global function to call after the script ran (optional)")
		list        = flag.Bool("list", false, "List global functions defined by the script and exit")
		timeout     = flag.Duration("timeout", 0, "Abort script execution after this duration (0 disables)")
		noEval      = flag.Bool("no-eval", false, "Disable eval() in scripts")
		verbose     = flag.Bool("v", false, "Verbose engine logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Var(&args, "arg", "Argument to pass to -func (repeatable)")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer logger.Sync() //nolint:errcheck

	cfg := &runtime.Config{
		Logger:      logger,
		Console:     stdoutPrinter{},
		DisableEval: *noEval,
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*scriptFile, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *scriptFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -script <file.js> [-func name] [-arg value ...] [-timeout 5s]")
		fmt.Fprintln(os.Stderr, "       run -script <file.js> -list")
		fmt.Fprintln(os.Stderr, "       run [-script <file.js>] -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(cfg, *scriptFile, *funcName, args, *timeout, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// stdoutPrinter writes script console output to the terminal.
type stdoutPrinter struct{}

func (stdoutPrinter) Log(s string)   { fmt.Fprintln(os.Stdout, s) }
func (stdoutPrinter) Warn(s string)  { fmt.Fprintln(os.Stderr, "warn:", s) }
func (stdoutPrinter) Error(s string) { fmt.Fprintln(os.Stderr, "error:", s) }

// newRuntime creates a runtime with the CLI host functions registered.
func newRuntime(cfg *runtime.Config, print func(string)) (*runtime.Runtime, error) {
	rt, err := runtime.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	err = rt.RegisterFunc("host", "print", func(args ...any) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		print(strings.Join(parts, " "))
	})
	if err == nil {
		err = rt.RegisterFunc("host", "env", func(name string) any {
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
			return nil
		})
	}
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func run(cfg *runtime.Config, scriptFile, funcName string, args []string, timeout time.Duration, listOnly bool) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	data, err := os.ReadFile(scriptFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	rt, err := newRuntime(cfg, func(s string) { fmt.Println(s) })
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close()

	e, err := rt.NewEngine()
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	builtins, err := globalFunctions(e, nil)
	if err != nil {
		return fmt.Errorf("list functions: %w", err)
	}

	result, err := rt.Run(ctx, e, engine.NewScriptSource(scriptFile, string(data)))
	if err != nil {
		return fmt.Errorf("run %s: %w", scriptFile, err)
	}

	funcs, err := globalFunctions(e, builtins)
	if err != nil {
		return fmt.Errorf("list functions: %w", err)
	}
	if listOnly {
		fmt.Printf("Global functions in %s:\n", scriptFile)
		for _, name := range funcs {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}

	if funcName == "" {
		if result.Type() != abi.Undefined {
			fmt.Printf("Result: %s\n", formatValue(e, result))
		}
		return nil
	}
	if !slices.Contains(funcs, funcName) {
		return fmt.Errorf("function %q is not defined", funcName)
	}

	callArgs := make([]any, len(args))
	for i, a := range args {
		callArgs[i] = parseArg(a)
	}

	fmt.Printf("Calling %s(%s)...\n", funcName, strings.Join(args, ", "))
	result, err = rt.Call(ctx, e, funcName, callArgs...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("Result: %s\n", formatValue(e, result))
	return nil
}

// parseArg interprets a command line argument as a JSON literal when it is
// one and as a plain string otherwise.
func parseArg(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// globalFunctions returns the sorted names of functions on the global object
// that are not in skip.
func globalFunctions(e *engine.Engine, skip []string) ([]string, error) {
	global := e.GlobalObject()
	keys, err := global.Keys()
	if err != nil {
		return nil, err
	}
	var funcs []string
	for _, k := range keys {
		if slices.Contains(skip, k) {
			continue
		}
		v, err := global.GetProperty(k)
		if err != nil {
			return nil, err
		}
		if v.Type() == abi.Function {
			funcs = append(funcs, k)
		}
		v.Release()
	}
	slices.Sort(funcs)
	return funcs, nil
}

// formatValue renders objects and arrays as JSON and everything else with
// the script's own string conversion.
func formatValue(e *engine.Engine, v engine.Value) string {
	switch v.Type() {
	case abi.Object, abi.Array:
		x, err := e.ToAny(v)
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	case abi.String:
		s, _ := e.ToString(v)
		return strconv.Quote(s)
	}
	s, err := e.ToString(v)
	if err != nil {
		return fmt.Sprintf("<%s>", v.Type())
	}
	return s
}
