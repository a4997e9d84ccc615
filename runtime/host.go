package runtime

import (
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/abi"
	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions.
type Host interface {
	// Namespace returns the global object path the functions are installed
	// under (e.g. "host" or "app.storage").
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact script names when the
// automatic PascalCase-to-camelCase conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

type HostRegistry struct {
	funcs map[string]map[string]*HostFunc
	mu    sync.RWMutex
}

type HostFunc struct {
	Handler  any
	Receiver reflect.Value
	call     engine.HostFunction
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]*HostFunc),
	}
}

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if err := validNamespace(ns); err != nil {
		return err
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			if err := r.register(ns, name, handler, reflect.ValueOf(h)); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()

	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)

		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}

		if err := r.register(ns, toCamelCase(method.Name), rv.Method(i).Interface(), rv); err != nil {
			return err
		}
	}

	return nil
}

func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	if err := validNamespace(namespace); err != nil {
		return err
	}
	return r.register(namespace, name, fn, reflect.Value{})
}

func (r *HostRegistry) register(namespace, name string, fn any, recv reflect.Value) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}

	call, err := adapt(name, fn)
	if err != nil {
		return errors.Registration(errors.PhaseHost, namespace, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]*HostFunc)
	}

	r.funcs[namespace][name] = &HostFunc{
		Handler:  fn,
		Receiver: recv,
		call:     call,
	}

	return nil
}

// Namespaces returns the registered namespaces in sorted order.
func (r *HostRegistry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		out = append(out, ns)
	}
	slices.Sort(out)
	return out
}

// Funcs returns the function names registered under namespace, sorted.
func (r *HostRegistry) Funcs(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs[namespace]))
	for name := range r.funcs[namespace] {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Bind installs every registered function into e's global object. A
// namespace "a.b" becomes globalThis.a.b; existing objects on the path are
// reused.
func (r *HostRegistry) Bind(e *engine.Engine) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for namespace, funcs := range r.funcs {
		target, err := namespaceObject(e, namespace)
		if err != nil {
			return errors.Registration(errors.PhaseHost, namespace, "*", err)
		}
		for name, hf := range funcs {
			fn, err := e.CreateNamedFunction(name, hf.call)
			if err != nil {
				return errors.Registration(errors.PhaseHost, namespace, name, err)
			}
			if err := target.SetProperty(name, fn); err != nil {
				return errors.Registration(errors.PhaseHost, namespace, name, err)
			}
			fn.Release()
		}
		target.Release()
		engine.Logger().Debug("host namespace bound", zap.String("namespace", namespace), zap.Int("funcs", len(funcs)))
	}
	return nil
}

func namespaceObject(e *engine.Engine, namespace string) (engine.ObjectLike, error) {
	var cur engine.ObjectLike = e.GlobalObject()
	for _, part := range strings.Split(namespace, ".") {
		v, err := cur.GetProperty(part)
		if err != nil {
			return nil, err
		}
		next, ok := v.(engine.ObjectLike)
		if !ok || v.Type() == abi.Null {
			v.Release()
			obj, err := e.CreateObject(nil)
			if err != nil {
				return nil, err
			}
			if err := cur.SetProperty(part, obj); err != nil {
				return nil, err
			}
			next = obj
		}
		cur.Release()
		cur = next
	}
	return cur, nil
}

func validNamespace(ns string) error {
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	for _, part := range strings.Split(ns, ".") {
		if !isIdentifier(part) {
			return errors.InvalidInput(errors.PhaseHost, "namespace "+ns+" is not a dotted identifier")
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '$' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// toCamelCase converts PascalCase to camelCase.
// Handles acronyms: GetHTTPURL -> getHTTPURL, HTTPGet -> httpGet
func toCamelCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	end := 0
	for end < len(runes) && unicode.IsUpper(runes[end]) {
		end++
	}

	switch {
	case end == 0:
		return s
	case end == 1 || end == len(runes):
		// single leading capital, or an all-caps name
	default:
		// Last uppercase before lowercase starts next word, not part of acronym
		if unicode.IsLower(runes[end]) {
			end--
		}
	}

	for i := 0; i < end; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
