package runtime

import (
	"context"
	"sync"

	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
)

// Config configures a Runtime. The zero value is usable.
type Config struct {
	// Modules are native modules available to require() in every engine.
	Modules map[string]require.ModuleLoader

	// Console receives console output. Defaults to a printer that writes
	// to the zap logger.
	Console console.Printer

	// Logger, if set, is installed as the logger of the abi and engine
	// packages.
	Logger *zap.Logger

	// DisableEval makes script eval throw.
	DisableEval bool

	// EnableIdleProcessing allows Engine.RunIdleWork.
	EnableIdleProcessing bool
}

func (c *Config) attributes() abi.RuntimeAttributes {
	attrs := abi.RuntimeAttributeNone
	if c.DisableEval {
		attrs |= abi.RuntimeAttributeDisableEval
	}
	if c.EnableIdleProcessing {
		attrs |= abi.RuntimeAttributeEnableIdleProcessing
	}
	return attrs
}

// Runtime owns one native runtime and the engines created on it. Engines of
// one runtime share goroutine affinity: while any of them is current on a
// goroutine, none can be made current on another.
type Runtime struct {
	api   *abi.Goja
	hosts *HostRegistry

	mu      sync.Mutex
	engines map[*engine.Engine]struct{}
	rt      abi.Runtime
	closed  bool
}

func New() (*Runtime, error) {
	return NewWithConfig(nil)
}

func NewWithConfig(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger != nil {
		abi.SetLogger(cfg.Logger)
		engine.SetLogger(cfg.Logger)
	}

	api := abi.New(abi.Config{Modules: cfg.Modules, Console: cfg.Console})
	rt, code := api.CreateRuntime(cfg.attributes())
	if code != abi.NoError {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindStatus, code.Err("CreateRuntime"), "create runtime")
	}

	return &Runtime{
		api:     api,
		rt:      rt,
		hosts:   NewHostRegistry(),
		engines: make(map[*engine.Engine]struct{}),
	}, nil
}

// Close closes every engine still open and disposes the native runtime.
// No engine of the runtime may be current on any goroutine.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	engines := make([]*engine.Engine, 0, len(r.engines))
	for e := range r.engines {
		engines = append(engines, e)
	}
	r.engines = nil
	r.mu.Unlock()

	var err error
	for _, e := range engines {
		err = multierr.Append(err, e.Close())
	}
	if code := r.api.DisposeRuntime(r.rt); code != abi.NoError {
		err = multierr.Append(err, code.Err("DisposeRuntime"))
	}
	err = multierr.Append(err, r.api.Close())
	return err
}

// RegisterHost registers all exported methods of h as host functions.
// Must be called BEFORE creating the engines that should see them.
// Method names are converted from PascalCase to camelCase (GetValue -> getValue).
func (r *Runtime) RegisterHost(h Host) error {
	return r.hosts.RegisterHost(h)
}

func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	return r.hosts.RegisterFunc(namespace, name, fn)
}

func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

// API exposes the native call surface, mostly for diagnostics.
func (r *Runtime) API() *abi.Goja {
	return r.api
}

// NewEngine creates an engine on the runtime with every registered host
// function bound into its global object.
func (r *Runtime) NewEngine() (*engine.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Disposed(errors.PhaseRuntime, "runtime")
	}

	e, err := engine.New(r.api, r.rt)
	if err != nil {
		return nil, err
	}
	if err := r.hosts.Bind(e); err != nil {
		return nil, multierr.Append(err, e.Close())
	}
	r.engines[e] = struct{}{}
	return e, nil
}

// CloseEngine closes e and forgets it.
func (r *Runtime) CloseEngine(e *engine.Engine) error {
	r.mu.Lock()
	delete(r.engines, e)
	r.mu.Unlock()
	return e.Close()
}

// EngineCount reports the number of open engines.
func (r *Runtime) EngineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// CollectGarbage runs a full collection, which finalizes unreachable
// external objects.
func (r *Runtime) CollectGarbage() error {
	if code := r.api.CollectGarbage(r.rt); code != abi.NoError {
		return code.Err("CollectGarbage")
	}
	return nil
}

// Run executes src on e. If ctx is done before the script finishes, the
// script is interrupted and the returned error wraps ctx.Err().
func (r *Runtime) Run(ctx context.Context, e *engine.Engine, src engine.ScriptSource) (engine.Value, error) {
	var out engine.Value
	err := r.interruptible(ctx, func() error {
		v, err := e.Execute(src)
		out = v
		return err
	})
	return out, err
}

// Call calls the global function name on e under ctx like Run. Arguments
// are converted with Engine.FromAny.
func (r *Runtime) Call(ctx context.Context, e *engine.Engine, name string, args ...any) (engine.Value, error) {
	var out engine.Value
	err := r.interruptible(ctx, func() error {
		vals := make([]engine.Value, len(args))
		for i, a := range args {
			v, err := e.FromAny(a)
			if err != nil {
				return err
			}
			vals[i] = v
		}
		v, err := e.CallGlobalFunction(name, vals...)
		out = v
		return err
	})
	return out, err
}

// interruptible runs fn and disables script execution on the runtime while
// ctx is done, re-enabling it before returning.
func (r *Runtime) interruptible(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindException, err, "script not started")
	}

	var interrupted sync.WaitGroup
	interrupted.Add(1)
	stop := context.AfterFunc(ctx, func() {
		defer interrupted.Done()
		if code := r.api.DisableRuntimeExecution(r.rt); code != abi.NoError {
			engine.Logger().Warn("interrupt failed", zap.Stringer("code", code))
		}
	})

	err := fn()

	if !stop() {
		interrupted.Wait()
		if code := r.api.EnableRuntimeExecution(r.rt); code != abi.NoError {
			err = multierr.Append(err, code.Err("EnableRuntimeExecution"))
		}
		if err != nil {
			return errors.Wrap(errors.PhaseRuntime, errors.KindException, multierr.Append(ctx.Err(), err), "script interrupted")
		}
	}
	return err
}
