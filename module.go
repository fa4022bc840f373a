package jsbridge

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// MODULE TYPES AND STRUCTURES
// =============================================================================

type exportKind int

const (
	exportFunction exportKind = iota
	exportClass
	exportValue
)

// moduleExport is a single entry of the export namespace.
type moduleExport struct {
	name       string
	kind       exportKind
	candidates []Callable
	class      ClassDefinition
	value      interface{}
}

// ModuleBuilder declares the flat export namespace of a native module.
//
//	math := jsbridge.NewModule("math").
//		Function("add", func(a, b int) int { return a + b }, func(a, b string) string { return a + b }).
//		Class("Point", jsbridge.NewClass[Point]("Point").Constructor(newPoint)).
//		Value("version", "1.0")
type ModuleBuilder struct {
	name    string
	exports []moduleExport
}

// NewModule creates a module builder.
func NewModule(name string) *ModuleBuilder {
	return &ModuleBuilder{name: name}
}

// Name returns the module name.
func (mb *ModuleBuilder) Name() string {
	return mb.name
}

// Function exports a function. Calling it again with the same name adds overloads,
// tried after the ones already registered.
func (mb *ModuleBuilder) Function(name string, fns ...interface{}) *ModuleBuilder {
	for i := range mb.exports {
		if e := &mb.exports[i]; e.name == name && e.kind == exportFunction {
			e.candidates = append(e.candidates, callables(fns)...)
			return mb
		}
	}
	mb.exports = append(mb.exports, moduleExport{name: name, kind: exportFunction, candidates: callables(fns)})
	return mb
}

// Class exports the constructor of a class.
func (mb *ModuleBuilder) Class(name string, def ClassDefinition) *ModuleBuilder {
	mb.exports = append(mb.exports, moduleExport{name: name, kind: exportClass, class: def})
	return mb
}

// Value exports a constant converted with Env.ToValue.
func (mb *ModuleBuilder) Value(name string, v interface{}) *ModuleBuilder {
	mb.exports = append(mb.exports, moduleExport{name: name, kind: exportValue, value: v})
	return mb
}

func (mb *ModuleBuilder) validate() error {
	if mb.name == "" {
		return errors.New("module name cannot be empty")
	}

	nameSet := make(map[string]bool)
	for _, export := range mb.exports {
		if export.name == "" {
			return errors.New("export name cannot be empty")
		}
		if nameSet[export.name] {
			return fmt.Errorf("duplicate export name: %s", export.name)
		}
		if export.kind == exportClass && export.class == nil {
			return fmt.Errorf("class export %s has no definition", export.name)
		}
		nameSet[export.name] = true
	}
	return nil
}

// Build creates the export namespace object in env.
func (mb *ModuleBuilder) Build(env *Env) (Object, error) {
	if err := mb.validate(); err != nil {
		return Object{}, err
	}
	if env.closed {
		return Object{}, ErrEnvClosed
	}

	ns := env.Object()
	for _, export := range mb.exports {
		var (
			v   Value
			err error
		)
		switch export.kind {
		case exportFunction:
			var fn Function
			fn, err = env.Function(mb.name+"."+export.name, export.candidates...)
			v = fn.Value()
		case exportClass:
			var ctor Function
			ctor, err = export.class.define(env)
			v = ctor.Value()
		case exportValue:
			v, err = env.ToValue(export.value)
		}
		if err != nil {
			return Object{}, fmt.Errorf("module %s: export %s: %w", mb.name, export.name, err)
		}
		if err := ns.Set(export.name, v); err != nil {
			return Object{}, fmt.Errorf("module %s: export %s: %w", mb.name, export.name, err)
		}
	}
	return ns, nil
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the list of modules installed into new environments. Modules are registered
// during start-up; the first Install freezes the list.
type Registry struct {
	mu      sync.Mutex
	modules []*ModuleBuilder
	frozen  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry is the registry used by Register.
var DefaultRegistry = NewRegistry()

// Register adds a module to DefaultRegistry.
func Register(mb *ModuleBuilder) error {
	return DefaultRegistry.Register(mb)
}

// Register adds a module. It fails with ErrFrozen once the registry has been installed.
func (r *Registry) Register(mb *ModuleBuilder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	if err := mb.validate(); err != nil {
		return err
	}
	for _, m := range r.modules {
		if m.name == mb.name {
			return fmt.Errorf("module %s is already registered", mb.name)
		}
	}
	r.modules = append(r.modules, mb)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(mb *ModuleBuilder) {
	if err := r.Register(mb); err != nil {
		panic(err)
	}
}

// Modules returns the names of the registered modules in registration order.
func (r *Registry) Modules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.modules))
	for i, m := range r.modules {
		names[i] = m.name
	}
	return names
}

// Install freezes the registry, builds every module in env and publishes each one as a global
// named after the module.
func (r *Registry) Install(env *Env) error {
	r.mu.Lock()
	r.frozen = true
	modules := r.modules
	r.mu.Unlock()

	globals := env.Globals()
	for _, mb := range modules {
		ns, err := mb.Build(env)
		if err != nil {
			return err
		}
		if err := globals.Set(mb.name, ns); err != nil {
			return fmt.Errorf("module %s: %w", mb.name, err)
		}
		env.logger.Debug("module installed", zap.String("module", mb.name), zap.Int("exports", len(mb.exports)))
	}
	return nil
}
