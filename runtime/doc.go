// Package runtime provides the high-level API for embedding script engines.
//
// # Quick Start
//
//	rt, err := runtime.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	// Register host functions before creating engines
//	rt.RegisterFunc("host", "greet", func(name string) string {
//	    return "Hello, " + name
//	})
//
//	e, err := rt.NewEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v, err := rt.Run(ctx, e, engine.NewScriptSource("main.js", `host.greet("World")`))
//	s, _ := e.ToString(v)
//	fmt.Println(s) // "Hello, World"
//
// # Host Functions
//
// Functions are installed under a namespace object in every engine's global
// scope. A namespace may be dotted ("app.storage"). Handlers can be
// engine.HostFunction values, which see raw script values, or plain Go
// functions whose parameters and results are converted automatically:
//
//	func(s string, n float64) (string, error)
//	func(e *engine.Engine, args ...any) error
//
// Structs implementing Host register all exported methods at once, named in
// camelCase.
//
// # Cancellation
//
// Run and Call interrupt script when their context is done. Interruption
// applies to the whole runtime, so engines that must be cancelled
// independently belong on separate runtimes.
//
// # Configuration
//
//	rt, err := runtime.NewWithConfig(&runtime.Config{
//	    DisableEval: true,
//	    Modules:     map[string]require.ModuleLoader{"util": utilLoader},
//	    Logger:      zap.NewExample(),
//	})
package runtime
