package jsbridge

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// CLASS BINDING CONFIGURATION STRUCTURES
// =============================================================================

// MethodEntry is one method of a class. Repeated registrations of a name add overloads.
type MethodEntry struct {
	Name       string
	Candidates []Callable
	Static     bool
}

// AccessorEntry is one accessor property of a class. A nil Getter or Setter makes it
// write-only or read-only.
type AccessorEntry struct {
	Name   string
	Getter Callable
	Setter Callable
	Static bool
}

// PropertyEntry is a data property of instances or of the constructor.
type PropertyEntry struct {
	Name   string
	Value  interface{}
	Static bool
	Flags  int
}

// Property flags.
const (
	PropertyConfigurable = 1 << 0
	PropertyWritable     = 1 << 1
	PropertyEnumerable   = 1 << 2

	PropertyDefault = PropertyConfigurable | PropertyWritable | PropertyEnumerable
)

func flag(flags, bit int) goja.Flag {
	if flags&bit != 0 {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

// =============================================================================
// CLASS BUILDER
// =============================================================================

// ClassBuilder declares a host class whose instances wrap a *T.
//
//	point, err := jsbridge.NewClass[Point]("Point").
//		Constructor(func(x, y float64) *Point { return &Point{x, y} }).
//		Method("norm", (*Point).Norm).
//		Accessor("x", func(p *Point) float64 { return p.X }, func(p *Point, x float64) { p.X = x }).
//		Build(env)
//
// Methods, accessors and constructors are ordinary candidates (see Func). A parameter of type
// *T binds the receiving instance without consuming an argument.
type ClassBuilder[T any] struct {
	name         string
	constructors []Callable
	methods      []MethodEntry
	accessors    []AccessorEntry
	properties   []PropertyEntry
}

// NewClass starts the declaration of a class named name.
func NewClass[T any](name string) *ClassBuilder[T] {
	return &ClassBuilder[T]{name: name}
}

// Name returns the class name.
func (cb *ClassBuilder[T]) Name() string {
	return cb.name
}

// Constructor adds constructor overloads. Each must return *T or T, optionally with an error.
func (cb *ClassBuilder[T]) Constructor(fns ...interface{}) *ClassBuilder[T] {
	cb.constructors = append(cb.constructors, callables(fns)...)
	return cb
}

// Method adds instance method overloads.
func (cb *ClassBuilder[T]) Method(name string, fns ...interface{}) *ClassBuilder[T] {
	cb.addMethod(name, false, fns)
	return cb
}

// StaticMethod adds overloads of a method of the constructor.
func (cb *ClassBuilder[T]) StaticMethod(name string, fns ...interface{}) *ClassBuilder[T] {
	cb.addMethod(name, true, fns)
	return cb
}

func (cb *ClassBuilder[T]) addMethod(name string, static bool, fns []interface{}) {
	for i := range cb.methods {
		if cb.methods[i].Name == name && cb.methods[i].Static == static {
			cb.methods[i].Candidates = append(cb.methods[i].Candidates, callables(fns)...)
			return
		}
	}
	cb.methods = append(cb.methods, MethodEntry{Name: name, Candidates: callables(fns), Static: static})
}

// Accessor adds an instance accessor. Pass nil for getter or setter to omit it.
func (cb *ClassBuilder[T]) Accessor(name string, getter, setter interface{}) *ClassBuilder[T] {
	cb.accessors = append(cb.accessors, newAccessorEntry(name, getter, setter, false))
	return cb
}

// StaticAccessor adds an accessor of the constructor.
func (cb *ClassBuilder[T]) StaticAccessor(name string, getter, setter interface{}) *ClassBuilder[T] {
	cb.accessors = append(cb.accessors, newAccessorEntry(name, getter, setter, true))
	return cb
}

func newAccessorEntry(name string, getter, setter interface{}, static bool) AccessorEntry {
	e := AccessorEntry{Name: name, Static: static}
	if getter != nil {
		e.Getter = Func(getter)
	}
	if setter != nil {
		e.Setter = Func(setter)
	}
	return e
}

// Property adds a data property set on every new instance. Flags default to PropertyDefault.
func (cb *ClassBuilder[T]) Property(name string, value interface{}, flags ...int) *ClassBuilder[T] {
	cb.properties = append(cb.properties, newPropertyEntry(name, value, false, flags))
	return cb
}

// StaticProperty adds a data property of the constructor.
func (cb *ClassBuilder[T]) StaticProperty(name string, value interface{}, flags ...int) *ClassBuilder[T] {
	cb.properties = append(cb.properties, newPropertyEntry(name, value, true, flags))
	return cb
}

func newPropertyEntry(name string, value interface{}, static bool, flags []int) PropertyEntry {
	f := PropertyDefault
	if len(flags) > 0 {
		f = flags[0]
	}
	return PropertyEntry{Name: name, Value: value, Static: static, Flags: f}
}

func (cb *ClassBuilder[T]) validate() error {
	if cb.name == "" {
		return errors.New("class name cannot be empty")
	}
	seen := make(map[string]bool)
	for _, m := range cb.methods {
		if m.Name == "" {
			return errors.New("method name cannot be empty")
		}
	}
	for _, a := range cb.accessors {
		if a.Name == "" {
			return errors.New("accessor name cannot be empty")
		}
		if a.Getter == nil && a.Setter == nil {
			return fmt.Errorf("accessor %s must have at least getter or setter", a.Name)
		}
		key := fmt.Sprintf("%t:%s", a.Static, a.Name)
		if seen[key] {
			return fmt.Errorf("accessor %s is declared twice", a.Name)
		}
		seen[key] = true
	}
	for _, p := range cb.properties {
		if p.Name == "" {
			return errors.New("property name cannot be empty")
		}
	}
	return nil
}

// define builds the class and returns its constructor. It lets modules export classes of any T.
func (cb *ClassBuilder[T]) define(env *Env) (Function, error) {
	c, err := cb.Build(env)
	if err != nil {
		return Function{}, err
	}
	return c.Constructor(), nil
}

// ClassDefinition is a class declaration that can be built in an environment.
type ClassDefinition interface {
	Name() string
	define(env *Env) (Function, error)
}

// =============================================================================
// INSTANCE TABLE
// =============================================================================

// instanceTable is the shared, read-only description of a built class.
type instanceTable struct {
	id       string // process-unique class identity
	name     string
	owner    reflect.Type // *T
	handlers []methodHandler
	ctor     *goja.Object
	proto    *goja.Object

	constructors []Callable
	properties   []PropertyEntry

	// pending is the construction origin set by native code for the next construction.
	pending *construction
}

type methodHandler struct {
	name       string
	candidates []Callable
}

// construction is a construction requested from Go: either pre-built constructor
// arguments or a pre-built instance.
type construction struct {
	args     []interface{}
	instance reflect.Value
}

// instanceBox is attached to every instance. Its fields are unexported so the host sees an
// opaque object.
type instanceBox struct {
	class string
	value reflect.Value
}

// Class is a host class built from a ClassBuilder.
type Class[T any] struct {
	env   *Env
	table *instanceTable
}

// Build creates the constructor and prototype of the class in env. Each Go type can back
// one class per environment.
func (cb *ClassBuilder[T]) Build(env *Env) (*Class[T], error) {
	if env.closed {
		return nil, ErrEnvClosed
	}
	if err := cb.validate(); err != nil {
		return nil, err
	}
	owner := reflect.TypeFor[*T]()
	if prev, ok := env.classes[owner]; ok {
		return nil, fmt.Errorf("%v is already bound to class %s", owner, prev.name)
	}

	table := &instanceTable{
		id:           uuid.NewString(),
		name:         cb.name,
		owner:        owner,
		constructors: cb.constructors,
		properties:   cb.properties,
	}
	handles := env.handles
	id := handles.Store(table)

	if err := env.defineClass(id, table, cb.methods, cb.accessors); err != nil {
		handles.Delete(id)
		return nil, err
	}

	env.classes[owner] = table
	env.logger.Debug("class built",
		zap.String("class", table.name),
		zap.String("id", table.id),
		zap.Stringer("type", owner))
	return &Class[T]{env: env, table: table}, nil
}

func (env *Env) defineClass(id int32, table *instanceTable, methods []MethodEntry, accessors []AccessorEntry) error {
	name := table.name
	ctor := env.rt.ToValue(func(call goja.ConstructorCall) *goja.Object {
		env.trampoline(name, func() (Value, error) {
			return env.construct(id, name, call)
		})
		return nil
	}).(*goja.Object)
	if err := ctor.DefineDataProperty("name", env.rt.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return env.hostError(err)
	}

	proto, ok := ctor.Get("prototype").(*goja.Object)
	if !ok {
		proto = env.rt.NewObject()
		if err := ctor.DefineDataProperty("prototype", proto, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return env.hostError(err)
		}
		if err := proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return env.hostError(err)
		}
	}
	if err := proto.DefineDataPropertySymbol(env.classKey, env.rt.ToValue(table.id), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return env.hostError(err)
	}
	table.ctor, table.proto = ctor, proto

	for _, m := range methods {
		if m.Static {
			fn, err := env.Function(name+"."+m.Name, m.Candidates...)
			if err != nil {
				return err
			}
			if err := ctor.DefineDataProperty(m.Name, fn.v.ref, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
				return env.hostError(err)
			}
			continue
		}
		fn := env.methodFunction(id, table.addHandler(m.Name, m.Candidates), name, m.Name)
		if err := proto.DefineDataProperty(m.Name, fn, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return env.hostError(err)
		}
	}

	for _, a := range accessors {
		var getter, setter goja.Value
		if a.Static {
			if a.Getter != nil {
				fn, err := env.Function("get "+a.Name, a.Getter)
				if err != nil {
					return err
				}
				getter = fn.v.ref
			}
			if a.Setter != nil {
				fn, err := env.Function("set "+a.Name, a.Setter)
				if err != nil {
					return err
				}
				setter = fn.v.ref
			}
			if err := ctor.DefineAccessorProperty(a.Name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
				return env.hostError(err)
			}
			continue
		}
		if a.Getter != nil {
			getter = env.methodFunction(id, table.addHandler(a.Name, []Callable{a.Getter}), name, "get "+a.Name)
		}
		if a.Setter != nil {
			setter = env.methodFunction(id, table.addHandler(a.Name, []Callable{a.Setter}), name, "set "+a.Name)
		}
		if err := proto.DefineAccessorProperty(a.Name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return env.hostError(err)
		}
	}

	for _, p := range table.properties {
		if !p.Static {
			continue
		}
		v, err := env.ToValue(p.Value)
		if err != nil {
			return fmt.Errorf("static property %s: %w", p.Name, err)
		}
		if err := ctor.DefineDataProperty(p.Name, v.ref,
			flag(p.Flags, PropertyWritable), flag(p.Flags, PropertyConfigurable), flag(p.Flags, PropertyEnumerable)); err != nil {
			return env.hostError(err)
		}
	}
	return nil
}

// addHandler appends a method handler and returns its key.
func (t *instanceTable) addHandler(name string, candidates []Callable) int {
	t.handlers = append(t.handlers, methodHandler{name: name, candidates: candidates})
	return len(t.handlers) - 1
}

// methodFunction creates the host function dispatching method key of the class stored under id.
func (env *Env) methodFunction(id int32, key int, class, method string) *goja.Object {
	name := class + "." + method
	fn := env.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		return env.trampoline(name, func() (Value, error) {
			return env.dispatchMethod(id, key, name, call)
		})
	}).(*goja.Object)
	_ = fn.DefineDataProperty("name", env.rt.ToValue(method), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	return fn
}

func (env *Env) loadTable(id int32, name string) (*instanceTable, error) {
	v, ok := env.handles.Load(id)
	if !ok {
		return nil, &DispatchError{Reason: RegistrationGone, Name: name}
	}
	table, ok := v.(*instanceTable)
	if !ok {
		return nil, &DispatchError{Reason: WrongHandler, Name: name}
	}
	return table, nil
}

func (env *Env) dispatchMethod(id int32, key int, name string, call goja.FunctionCall) (Value, error) {
	table, err := env.loadTable(id, name)
	if err != nil {
		return Value{}, err
	}
	if key < 0 || key >= len(table.handlers) {
		return Value{}, &DispatchError{Reason: WrongHandler, Name: table.name}
	}
	inst, err := table.instanceOf(env, call.This)
	if err != nil {
		return Value{}, err
	}
	h := table.handlers[key]
	return env.resolve(name, h.candidates, func() *Arguments {
		a := newArguments(env, call.This, call.Arguments)
		a.instance = inst
		return a
	})
}

// instanceOf checks the class sentinel and the instance box of this.
func (t *instanceTable) instanceOf(env *Env, this goja.Value) (reflect.Value, error) {
	obj, ok := this.(*goja.Object)
	if !ok {
		return reflect.Value{}, &DispatchError{Reason: WrongThis, Name: t.name}
	}
	sentinel := obj.GetSymbol(env.classKey)
	if sentinel == nil {
		return reflect.Value{}, &DispatchError{Reason: WrongThis, Name: t.name}
	}
	if sentinel.String() != t.id {
		return reflect.Value{}, &DispatchError{Reason: WrongClass, Name: t.name}
	}
	boxed := obj.GetSymbol(env.wrapKey)
	if boxed == nil {
		return reflect.Value{}, &DispatchError{Reason: WrongThis, Name: t.name}
	}
	box, ok := boxed.Export().(*instanceBox)
	if !ok {
		return reflect.Value{}, &DispatchError{Reason: WrongThis, Name: t.name}
	}
	if box.class != t.id {
		return reflect.Value{}, &DispatchError{Reason: WrongClass, Name: t.name}
	}
	return box.value, nil
}

// unwrap returns the *T wrapped by v.
func (t *instanceTable) unwrap(env *Env, v Value) (reflect.Value, error) {
	return t.instanceOf(env, v.ref)
}

// wrap creates an instance around rv, a non-nil *T, without running a constructor.
func (t *instanceTable) wrap(env *Env, rv reflect.Value) (*goja.Object, error) {
	t.pending = &construction{instance: rv}
	defer func() { t.pending = nil }()
	obj, err := env.rt.New(t.ctor)
	if err != nil {
		return nil, env.hostError(err)
	}
	return obj, nil
}

// construct runs one construction. The pending slot set by native code is consumed here,
// so exactly one origin applies: a pre-built instance, pre-built constructor arguments,
// or the host arguments.
func (env *Env) construct(id int32, name string, call goja.ConstructorCall) (Value, error) {
	table, err := env.loadTable(id, name)
	if err != nil {
		return Value{}, err
	}
	p := table.pending
	table.pending = nil

	if p != nil && p.instance.IsValid() {
		return Value{}, env.attachInstance(table, call, p.instance, false)
	}
	if len(table.constructors) == 0 {
		return Value{}, &DispatchError{Reason: NoConstructor, Name: name}
	}

	var inv Invocation
	if p != nil {
		inv, err = env.nativeConstruction(table, call, p.args)
	} else {
		inv, err = env.selectCandidate(name, table.constructors, func() *Arguments {
			return newArguments(env, call.This, call.Arguments)
		})
	}
	if err != nil {
		return Value{}, err
	}

	res, err := inv()
	if err != nil {
		return Value{}, err
	}
	inst, err := table.instanceFrom(res)
	if err != nil {
		return Value{}, err
	}
	return Value{}, env.attachInstance(table, call, inst, true)
}

// nativeConstruction matches Go arguments against the constructor parameters. When no
// constructor takes them as they are, they are converted and bound like host arguments.
func (env *Env) nativeConstruction(table *instanceTable, call goja.ConstructorCall, argv []interface{}) (Invocation, error) {
	for _, c := range table.constructors {
		if fc, ok := c.(*funcCallable); ok {
			if inv, ok := fc.prepareNative(argv); ok {
				return inv, nil
			}
		}
	}
	refs, err := env.toRefs(argv)
	if err != nil {
		return nil, err
	}
	return env.selectCandidate(table.name, table.constructors, func() *Arguments {
		return newArguments(env, call.This, refs)
	})
}

// instanceFrom accepts *T or T from a constructor.
func (t *instanceTable) instanceFrom(res interface{}) (reflect.Value, error) {
	rv := reflect.ValueOf(res)
	switch {
	case !rv.IsValid():
	case rv.Type() == t.owner:
		if !rv.IsNil() {
			return rv, nil
		}
	case rv.Type() == t.owner.Elem():
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		return p, nil
	}
	return reflect.Value{}, fmt.Errorf("constructor of %s returned %T, expected %v", t.name, res, t.owner)
}

// attachInstance stores the instance box on the new object and sets the instance properties.
// Instances created by a constructor are finalized with the host object.
func (env *Env) attachInstance(t *instanceTable, call goja.ConstructorCall, inst reflect.Value, owned bool) error {
	obj := call.This
	box := &instanceBox{class: t.id, value: inst}
	if err := obj.DefineDataPropertySymbol(env.wrapKey, env.rt.ToValue(box), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return env.hostError(err)
	}

	for _, p := range t.properties {
		if p.Static {
			continue
		}
		v, err := env.ToValue(p.Value)
		if err != nil {
			return fmt.Errorf("property %s: %w", p.Name, err)
		}
		if err := obj.DefineDataProperty(p.Name, v.ref,
			flag(p.Flags, PropertyWritable), flag(p.Flags, PropertyConfigurable), flag(p.Flags, PropertyEnumerable)); err != nil {
			return env.hostError(err)
		}
	}

	if owned {
		if f, ok := inst.Interface().(Finalizer); ok {
			env.addFinalizer(obj, f.Finalize)
		}
	}
	return nil
}

// =============================================================================
// CLASS API
// =============================================================================

// Name returns the class name.
func (c *Class[T]) Name() string {
	return c.table.name
}

// Constructor returns the host constructor function.
func (c *Class[T]) Constructor() Function {
	return Function{c.env.wrap(c.table.ctor)}
}

// New constructs an instance from Go arguments. Arguments matching the parameter types of a
// constructor are passed as they are; otherwise they are converted and bound like host arguments.
func (c *Class[T]) New(args ...interface{}) (Object, error) {
	if c.env.closed {
		return Object{}, ErrEnvClosed
	}
	if args == nil {
		args = []interface{}{}
	}
	c.table.pending = &construction{args: args}
	defer func() { c.table.pending = nil }()
	obj, err := c.env.rt.New(c.table.ctor)
	if err != nil {
		return Object{}, c.env.hostError(err)
	}
	return Object{c.env.wrap(obj)}, nil
}

// Wrap creates an instance around v without running a constructor. v is not finalized
// when the instance is collected: it stays owned by the caller.
func (c *Class[T]) Wrap(v *T) (Object, error) {
	if v == nil {
		return Object{}, fmt.Errorf("cannot wrap a nil %v", c.table.owner)
	}
	if c.env.closed {
		return Object{}, ErrEnvClosed
	}
	obj, err := c.table.wrap(c.env, reflect.ValueOf(v))
	if err != nil {
		return Object{}, err
	}
	return Object{c.env.wrap(obj)}, nil
}

// Unwrap returns the instance wrapped by v.
func (c *Class[T]) Unwrap(v Value) (*T, error) {
	inst, err := c.table.unwrap(c.env, v)
	if err != nil {
		return nil, err
	}
	return inst.Interface().(*T), nil
}

// IsInstance reports whether v is an instance of the class.
func (c *Class[T]) IsInstance(v Value) bool {
	_, err := c.table.unwrap(c.env, v)
	return err == nil
}
