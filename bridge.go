package jsbridge

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Invocation runs a candidate whose arguments are already bound.
type Invocation func() (interface{}, error)

// Callable is one candidate implementation of an exported function.
// Prepare binds the arguments; a *BindingError makes the trampoline try the next candidate.
// The native call happens in the returned Invocation, and its error is raised as is.
// When Prepare fails, the side effects of the bindings it made (taken Box payloads,
// cloned Rc and Arc handles) are reverted before the next candidate binds.
type Callable interface {
	Prepare(args *Arguments) (Invocation, error)
}

// NativeFunc is a hand-written candidate binding its own arguments.
// A *BindingError it returns is treated as a binding failure, any other error is raised.
type NativeFunc func(args *Arguments) (interface{}, error)

func (fn NativeFunc) Prepare(args *Arguments) (Invocation, error) {
	res, err := fn(args)
	var bindErr *BindingError
	if errors.As(err, &bindErr) {
		return nil, err
	}
	return func() (interface{}, error) { return res, err }, nil
}

// funcCallable calls a Go function through reflection.
type funcCallable struct {
	fn  reflect.Value
	typ reflect.Type
}

// Func returns a candidate calling fn, which must be a function. Each parameter is bound with Bind
// and a variadic parameter consumes the remaining arguments. Results are converted as follows:
// no result is undefined, a trailing error is raised when non-nil, one result is converted with
// Env.ToValue and several results become an Array.
func Func(fn interface{}) Callable {
	if c, ok := fn.(Callable); ok {
		return c
	}
	if nf, ok := fn.(func(*Arguments) (interface{}, error)); ok {
		return NativeFunc(nf)
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		panic(fmt.Sprintf("jsbridge: Func expects a function, got %T", fn))
	}
	return &funcCallable{fn: rv, typ: rv.Type()}
}

func (c *funcCallable) Prepare(args *Arguments) (Invocation, error) {
	n := c.typ.NumIn()
	fixed := n
	if c.typ.IsVariadic() {
		fixed--
	}

	in := make([]reflect.Value, 0, n)
	for i := 0; i < fixed; i++ {
		rv := reflect.New(c.typ.In(i)).Elem()
		if err := args.bind(rv); err != nil {
			return nil, err
		}
		in = append(in, rv)
	}
	if c.typ.IsVariadic() {
		elem := c.typ.In(fixed).Elem()
		for args.Remaining() > 0 {
			pos := args.Position()
			rv := reflect.New(elem).Elem()
			if err := args.bind(rv); err != nil {
				return nil, err
			}
			in = append(in, rv)
			if args.Position() == pos {
				break
			}
		}
	}

	return func() (interface{}, error) {
		return splitResults(c.fn.Call(in))
	}, nil
}

// prepareNative matches pre-built Go arguments against the parameter types without host conversion.
func (c *funcCallable) prepareNative(argv []interface{}) (Invocation, bool) {
	if c.typ.IsVariadic() || len(argv) != c.typ.NumIn() {
		return nil, false
	}
	in := make([]reflect.Value, len(argv))
	for i, arg := range argv {
		pt := c.typ.In(i)
		if arg == nil {
			switch pt.Kind() {
			case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
				in[i] = reflect.Zero(pt)
				continue
			}
			return nil, false
		}
		av := reflect.ValueOf(arg)
		if !av.Type().AssignableTo(pt) {
			return nil, false
		}
		in[i] = av
	}
	return func() (interface{}, error) {
		return splitResults(c.fn.Call(in))
	}, true
}

func splitResults(out []reflect.Value) (interface{}, error) {
	if n := len(out); n > 0 && out[n-1].Type() == typeError {
		if !out[n-1].IsNil() {
			return nil, out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	results := make([]interface{}, len(out))
	for i, o := range out {
		results[i] = o.Interface()
	}
	return results, nil
}

func callables(fns []interface{}) []Callable {
	out := make([]Callable, len(fns))
	for i, fn := range fns {
		out[i] = Func(fn)
	}
	return out
}

// registration is the candidate list of one exported name, recovered by id from the handle store.
type registration struct {
	name       string
	candidates []Callable
}

// Function creates a host function dispatching to the candidates in registration order.
// The first candidate whose arguments bind is invoked; see Callable.
func (env *Env) Function(name string, candidates ...Callable) (Function, error) {
	if env.closed {
		return Function{}, ErrEnvClosed
	}
	handles := env.handles
	id := handles.Store(&registration{name: name, candidates: candidates})

	fn := env.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		return env.trampoline(name, func() (Value, error) {
			reg, err := env.loadRegistration(id, name)
			if err != nil {
				return Value{}, err
			}
			return env.resolve(reg.name, reg.candidates, func() *Arguments {
				return newArguments(env, call.This, call.Arguments)
			})
		})
	}).(*goja.Object)

	if err := fn.DefineDataProperty("name", env.rt.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		handles.Delete(id)
		return Function{}, env.hostError(err)
	}
	env.addFinalizer(fn, func() { handles.Delete(id) })
	return Function{env.wrap(fn)}, nil
}

// NewFunction is Function with plain Go functions as candidates.
func (env *Env) NewFunction(name string, fns ...interface{}) (Function, error) {
	return env.Function(name, callables(fns)...)
}

func (env *Env) loadRegistration(id int32, name string) (*registration, error) {
	v, ok := env.handles.Load(id)
	if !ok {
		return nil, &DispatchError{Reason: RegistrationGone, Name: name}
	}
	reg, ok := v.(*registration)
	if !ok {
		return nil, &DispatchError{Reason: WrongHandler, Name: name}
	}
	return reg, nil
}

// resolve tries the candidates in order with a fresh cursor each. The first candidate that binds
// is invoked and its result returned; invocation errors are never retried.
func (env *Env) resolve(name string, candidates []Callable, newArgs func() *Arguments) (Value, error) {
	inv, err := env.selectCandidate(name, candidates, newArgs)
	if err != nil {
		return Value{}, err
	}
	return env.invoke(inv)
}

// selectCandidate returns the invocation of the first candidate whose arguments bind.
func (env *Env) selectCandidate(name string, candidates []Callable, newArgs func() *Arguments) (Invocation, error) {
	if len(candidates) == 0 {
		return nil, &DispatchError{Reason: NoCandidates, Name: name}
	}

	var failures []error
	for _, c := range candidates {
		args := newArgs()
		inv, err := c.Prepare(args)
		if err == nil {
			return inv, nil
		}
		args.reject()
		var bindErr *BindingError
		if !errors.As(err, &bindErr) {
			return nil, err
		}
		failures = append(failures, err)
	}

	env.logger.Debug("no candidate matched",
		zap.String("function", name),
		zap.Int("candidates", len(candidates)),
		zap.Errors("failures", failures))

	if len(failures) == 1 {
		return nil, failures[0]
	}
	return nil, newOverloadError(name, failures, env.config.OverloadDetails)
}

func (env *Env) invoke(inv Invocation) (Value, error) {
	res, err := inv()
	if err != nil {
		return Value{}, err
	}
	if res == nil {
		return env.Undefined(), nil
	}
	return env.ToValue(res)
}

var gojaPkgPath = reflect.TypeOf(goja.Runtime{}).PkgPath()

// isHostPanic reports whether r is a host exception unwinding through native code.
func isHostPanic(r interface{}) bool {
	if _, ok := r.(goja.Value); ok {
		return true
	}
	t := reflect.TypeOf(r)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t != nil && t.PkgPath() == gojaPkgPath
}

// trampoline runs body as the host-visible entry point of a native callback: it returns the converted
// result or throws the error as a host exception, and turns native panics into host exceptions.
func (env *Env) trampoline(name string, body func() (Value, error)) goja.Value {
	var (
		res Value
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				if isHostPanic(r) {
					panic(r)
				}
				perr := &PanicError{Value: r, Stack: debug.Stack()}
				env.logger.Error("native panic recovered",
					zap.String("function", name),
					zap.Any("panic", r),
					zap.ByteString("stack", perr.Stack))
				err = perr
			}
		}()
		if env.closed {
			err = &DispatchError{Reason: RegistrationGone, Name: name}
			return
		}
		res, err = body()
	}()

	if err != nil {
		env.logger.Debug("raising host exception", zap.String("function", name), zap.Error(err))
		panic(env.throwValue(err))
	}
	return res.Ref()
}
