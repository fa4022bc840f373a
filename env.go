package jsbridge

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"runtime"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Env is the execution environment every Value belongs to. It owns the host runtime, the loop
// executing host work, the handle store of registered functions and classes, and the logger.
// An Env is not safe for concurrent use: only the goroutine running the loop may touch it.
// Other goroutines reach it through RunOnLoop or a ThreadsafeFunction.
type Env struct {
	rt      *goja.Runtime
	loop    *Loop
	handles *HandleStore
	config  Config
	logger  *zap.Logger

	wrapKey  *goja.Symbol // instance box of class instances
	classKey *goja.Symbol // class identity sentinel on class prototypes

	classes map[reflect.Type]*instanceTable

	closed bool
}

// NewEnv creates a new environment with a fresh host runtime.
func NewEnv(opts ...EnvOption) *Env {
	o := envOptions{config: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		var err error
		if log, err = o.config.newLogger(); err != nil {
			log = Logger()
			log.Warn("invalid log level, using package logger", zap.String("level", o.config.LogLevel), zap.Error(err))
		}
	}

	env := &Env{
		rt:       goja.New(),
		loop:     NewLoop(o.config.LoopQueueSize),
		handles:  NewHandleStore(),
		config:   o.config,
		logger:   log,
		wrapKey:  goja.NewSymbol("jsbridge.instance"),
		classKey: goja.NewSymbol("jsbridge.class"),
		classes:  make(map[reflect.Type]*instanceTable),
	}
	if o.config.MaxCallStackSize > 0 {
		env.rt.SetMaxCallStackSize(o.config.MaxCallStackSize)
	}
	return env
}

// Runtime returns the underlying host runtime.
func (env *Env) Runtime() *goja.Runtime {
	return env.rt
}

// Loop returns the loop executing host work for this environment.
func (env *Env) Loop() *Loop {
	return env.loop
}

// Config returns the environment configuration.
func (env *Env) Config() Config {
	return env.config
}

// Logger returns the environment logger.
func (env *Env) Logger() *zap.Logger {
	return env.logger
}

// Close releases the registered functions and classes and stops the loop.
// Host callbacks invoked after Close raise a dispatch error.
func (env *Env) Close() {
	if env.closed {
		return
	}
	env.closed = true
	env.handles.Clear()
	env.loop.runCleanups()
	_ = env.loop.Stop()
}

// Run executes the loop until no thread-safe function keeps it alive and no job is pending.
func (env *Env) Run() error {
	if env.closed {
		return ErrEnvClosed
	}
	return env.loop.Run()
}

// RunOnLoop schedules fn on the loop goroutine. It is safe to call from any goroutine.
func (env *Env) RunOnLoop(fn func(env *Env)) error {
	return env.loop.ScheduleJob(func() { fn(env) })
}

// Interrupt aborts the script currently running on the loop goroutine. The running Eval returns
// an *goja.InterruptedError carrying reason. It is safe to call from any goroutine.
func (env *Env) Interrupt(reason interface{}) {
	env.rt.Interrupt(reason)
}

// ClearInterrupt resets a pending interrupt so the environment can run scripts again.
func (env *Env) ClearInterrupt() {
	env.rt.ClearInterrupt()
}

// CollectGarbage runs the Go garbage collector and executes the finalizers it triggered.
func (env *Env) CollectGarbage() {
	runtime.GC()
	env.loop.runCleanups()
}

// addFinalizer registers fn to run on the loop goroutine once obj is unreachable.
// fn must reference neither obj nor env.
func (env *Env) addFinalizer(obj *goja.Object, fn func()) {
	runtime.AddCleanup(obj, env.loop.addCleanup, fn)
}

func (env *Env) wrap(ref goja.Value) Value {
	if ref == nil {
		ref = goja.Undefined()
	}
	return Value{env: env, ref: ref}
}

// Null return a null value.
func (env *Env) Null() Value {
	return env.wrap(goja.Null())
}

// Undefined return a undefined value.
func (env *Env) Undefined() Value {
	return env.wrap(goja.Undefined())
}

// Bool returns a boolean value.
func (env *Env) Bool(b bool) Boolean {
	return Boolean{env.wrap(env.rt.ToValue(b))}
}

// Number returns a number value.
func (env *Env) Number(f float64) Number {
	return Number{env.wrap(env.rt.ToValue(f))}
}

// Int returns a number value holding an integer.
func (env *Env) Int(i int64) Number {
	return Number{env.wrap(env.rt.ToValue(i))}
}

// String returns a string value.
func (env *Env) String(s string) String {
	return String{env.wrap(env.rt.ToValue(s))}
}

// BigInt returns a bigint value.
func (env *Env) BigInt(i *big.Int) BigInt {
	return BigInt{env.wrap(env.rt.ToValue(new(big.Int).Set(i)))}
}

// Symbol returns a new unique symbol.
func (env *Env) Symbol(description string) Symbol {
	return Symbol{env.wrap(goja.NewSymbol(description))}
}

// Object returns a new empty object.
func (env *Env) Object() Object {
	return Object{env.wrap(env.rt.NewObject())}
}

// Array returns a new array holding items.
func (env *Env) Array(items ...Value) Array {
	refs := make([]interface{}, len(items))
	for i, item := range items {
		refs[i] = item.ref
	}
	return Array{env.wrap(env.rt.NewArray(refs...))}
}

// ArrayBuffer returns a ArrayBuffer value with given binary data.
func (env *Env) ArrayBuffer(data []byte) Object {
	b := make([]byte, len(data))
	copy(b, data)
	buf := env.rt.NewArrayBuffer(b)
	return Object{env.wrap(env.rt.ToValue(buf))}
}

// Error returns a new host Error object carrying the message and code of err.
func (env *Env) Error(err error) Object {
	return Object{env.wrap(env.errorObject(err))}
}

// Globals returns the global object.
func (env *Env) Globals() Object {
	return Object{env.wrap(env.rt.GlobalObject())}
}

// EvalOption configures Eval.
type EvalOption func(*evalOptions)

type evalOptions struct {
	filename string
}

// EvalFileName sets the script name reported in stack traces.
func EvalFileName(filename string) EvalOption {
	return func(o *evalOptions) {
		o.filename = filename
	}
}

// Eval runs code in the global scope and returns its completion value.
// A thrown exception is returned as *Error.
func (env *Env) Eval(code string, opts ...EvalOption) (Value, error) {
	o := evalOptions{filename: "<eval>"}
	for _, opt := range opts {
		opt(&o)
	}
	if env.closed {
		return env.Undefined(), ErrEnvClosed
	}
	v, err := env.rt.RunScript(o.filename, code)
	if err != nil {
		return env.Undefined(), env.hostError(err)
	}
	return env.wrap(v), nil
}

// EvalFile reads and runs a script file.
func (env *Env) EvalFile(path string) (Value, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return env.Undefined(), err
	}
	return env.Eval(string(code), EvalFileName(path))
}

// ParseJSON parses given json string and returns a object value.
func (env *Env) ParseJSON(s string) (Value, error) {
	parse, ok := goja.AssertFunction(env.rt.Get("JSON").ToObject(env.rt).Get("parse"))
	if !ok {
		return env.Undefined(), errors.New("JSON.parse is not a function")
	}
	v, err := parse(goja.Undefined(), env.rt.ToValue(s))
	if err != nil {
		return env.Undefined(), env.hostError(err)
	}
	return env.wrap(v), nil
}

// hostError converts a host exception into *Error. Other errors are returned unchanged.
func (env *Env) hostError(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return env.exceptionError(ex)
	}
	return err
}

func (env *Env) exceptionError(ex *goja.Exception) *Error {
	thrown := ex.Value()
	if e, ok := env.wrap(thrown).ToError().(*Error); ok {
		if e.Stack == "" {
			e.Stack = ex.String()
		}
		return e
	}
	msg := "undefined"
	if thrown != nil {
		msg = thrown.String()
	}
	return &Error{Name: "Error", Message: msg, Stack: ex.String(), value: thrown}
}

// errorObject builds the host exception raised for err.
func (env *Env) errorObject(err error) *goja.Object {
	if hostErr, ok := err.(*Error); ok {
		if obj, ok := hostErr.value.(*goja.Object); ok {
			return obj
		}
	}

	msg := err.Error()
	var panicErr *PanicError
	if errors.As(err, &panicErr) && env.config.CaptureStack {
		msg = fmt.Sprintf("%s\n%s", msg, panicErr.Stack)
	}

	var obj *goja.Object
	var bindErr *BindingError
	var overloadErr *OverloadError
	if errors.As(err, &bindErr) || errors.As(err, &overloadErr) {
		obj = env.rt.NewTypeError("%s", msg)
	} else if o, e := env.rt.New(env.rt.Get("Error"), env.rt.ToValue(msg)); e == nil {
		obj = o
	} else {
		obj = env.rt.NewGoError(err)
	}
	_ = obj.Set("code", errorCode(err))
	return obj
}

// throwValue returns the value the trampoline throws for err.
func (env *Env) throwValue(err error) goja.Value {
	if hostErr, ok := err.(*Error); ok && hostErr.value != nil {
		return hostErr.value
	}
	return env.errorObject(err)
}
