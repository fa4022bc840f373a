package jsbridge_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/buke/jsbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setGlobal(t *testing.T, env *jsbridge.Env, name string, fns ...interface{}) {
	t.Helper()
	fn, err := env.NewFunction(name, fns...)
	require.NoError(t, err)
	require.NoError(t, env.Globals().Set(name, fn))
}

func evalString(t *testing.T, env *jsbridge.Env, code string) string {
	t.Helper()
	v, err := env.Eval(code)
	require.NoError(t, err)
	return v.String()
}

func hostError(t *testing.T, err error) *jsbridge.Error {
	t.Helper()
	var hostErr *jsbridge.Error
	require.True(t, errors.As(err, &hostErr), "expected *jsbridge.Error, got %T: %v", err, err)
	return hostErr
}

func TestOverloadResolution(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	setGlobal(t, env, "add",
		func(a, b int) int { return a + b },
		func(a, b string) string { return a + b },
	)

	assert.Equal(t, "3", evalString(t, env, `add(1, 2)`))
	assert.Equal(t, "ab", evalString(t, env, `add("a", "b")`))
	assert.Equal(t, "add", evalString(t, env, `add.name`))

	_, err := env.Eval(`add(1, "b")`)
	hostErr := hostError(t, err)
	assert.Equal(t, "TypeError", hostErr.Name)
	assert.Equal(t, jsbridge.CodeOverload, hostErr.Code())
	assert.Equal(t, "no overload of add matched the arguments ("+
		"candidate 0: wrong type, expected int on argument 1, got string; "+
		"candidate 1: wrong type, expected string on argument 0, got number)", hostErr.Message)
}

func TestOverloadFirstMatchWins(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	setGlobal(t, env, "pick",
		func(v float64) string { return "float" },
		func(v int) string { return "int" },
	)
	assert.Equal(t, "float", evalString(t, env, `pick(1)`))

	setGlobal(t, env, "arity",
		func(a int) string { return "one" },
		func(a, b int) string { return "two" },
	)
	assert.Equal(t, "one", evalString(t, env, `arity(1, 2)`))
	assert.Equal(t, "ERR_OVERLOAD", evalString(t, env, `try { arity() } catch (e) { e.code }`))
}

func TestOverloadWithoutDetails(t *testing.T) {
	cfg := jsbridge.DefaultConfig()
	cfg.OverloadDetails = false
	env := jsbridge.NewEnv(jsbridge.WithConfig(cfg))
	defer env.Close()

	setGlobal(t, env, "f", func(int) {}, func(string) {})
	assert.Equal(t, "no overload of f matched the arguments", evalString(t, env, `try { f(true) } catch (e) { e.message }`))
}

func TestOverloadErrorFromGo(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	fn, err := env.NewFunction("f", func(int) {}, func(string) {})
	require.NoError(t, err)

	_, err = fn.Call(env.Undefined(), true)
	hostErr := hostError(t, err)
	assert.Equal(t, jsbridge.CodeOverload, hostErr.Code())
	assert.Contains(t, hostErr.Message, "candidate 1: wrong type, expected string on argument 0, got boolean")
}

type codedError struct{ code string }

func (e *codedError) Error() string { return "coded failure" }
func (e *codedError) Code() string  { return e.code }

func TestNativeErrors(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	setGlobal(t, env, "fail", func() error { return errors.New("boom") })
	setGlobal(t, env, "coded", func() (int, error) { return 0, &codedError{code: "E_QUOTA"} })

	_, err := env.Eval(`fail()`)
	hostErr := hostError(t, err)
	assert.Equal(t, "Error", hostErr.Name)
	assert.Equal(t, "boom", hostErr.Message)
	assert.Equal(t, jsbridge.CodeNative, hostErr.Code())

	assert.Equal(t, "E_QUOTA coded failure", evalString(t, env, `try { coded() } catch (e) { e.code + " " + e.message }`))
}

func TestNativeErrorIsNotRetried(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	calls := 0
	setGlobal(t, env, "once",
		func(n int) error {
			calls++
			return fmt.Errorf("rejected %d", n)
		},
		func(n int) string {
			calls++
			return "fallback"
		},
	)
	assert.Equal(t, "rejected 1", evalString(t, env, `try { once(1) } catch (e) { e.message }`))
	assert.Equal(t, 1, calls)
}

func TestNativeFunc(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	fn, err := env.Function("describe",
		jsbridge.NativeFunc(func(args *jsbridge.Arguments) (interface{}, error) {
			n, err := jsbridge.Bind[int](args)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("int %d of %d", n, args.Len()), nil
		}),
		jsbridge.Func(func(args *jsbridge.Arguments) (interface{}, error) {
			return fmt.Sprintf("other of %d", args.Len()), nil
		}),
	)
	require.NoError(t, err)

	res, err := fn.Call(env.Undefined(), 4, "x")
	require.NoError(t, err)
	assert.Equal(t, "int 4 of 2", res.String())

	res, err = fn.Call(env.Undefined(), "x")
	require.NoError(t, err)
	assert.Equal(t, "other of 1", res.String())
}

func TestPanicRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	env := jsbridge.NewEnv(jsbridge.WithLogger(zap.New(core)))
	defer env.Close()

	setGlobal(t, env, "explode", func() { panic("kaboom") })
	setGlobal(t, env, "explodeErr", func() { panic(errors.New("wrapped")) })

	_, err := env.Eval(`explode()`)
	hostErr := hostError(t, err)
	assert.Equal(t, jsbridge.CodePanic, hostErr.Code())
	assert.Contains(t, hostErr.Message, "native code panicked: kaboom")

	panics := logs.FilterMessage("native panic recovered")
	require.Equal(t, 1, panics.Len())
	entry := panics.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "explode", entry.ContextMap()["function"])

	assert.Equal(t, "ERR_PANIC", evalString(t, env, `try { explodeErr() } catch (e) { e.code }`))
	assert.Equal(t, "still alive", evalString(t, env, `"still alive"`))
}

func TestPanicWithoutStack(t *testing.T) {
	cfg := jsbridge.DefaultConfig()
	cfg.CaptureStack = false
	env := jsbridge.NewEnv(jsbridge.WithConfig(cfg))
	defer env.Close()

	setGlobal(t, env, "explode", func() { panic("kaboom") })
	assert.Equal(t, "native code panicked: kaboom", evalString(t, env, `try { explode() } catch (e) { e.message }`))
}

func TestHostExceptionPassesThrough(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	setGlobal(t, env, "invoke", func(env *jsbridge.Env, fn jsbridge.Function) (jsbridge.Value, error) {
		return fn.Call(env.Undefined())
	})

	v, err := env.Eval(`
		var orig = new RangeError("deep");
		var caught;
		try { invoke(() => { throw orig }) } catch (e) { caught = e }
		caught === orig`)
	require.NoError(t, err)
	assert.True(t, v.ToBool())

	assert.Equal(t, "7", evalString(t, env, `invoke(() => 7)`))
}

func TestResultConversion(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	setGlobal(t, env, "nothing", func() {})
	setGlobal(t, env, "okOrErr", func() error { return nil })
	setGlobal(t, env, "pair", func() (string, int, error) { return "a", 1, nil })
	setGlobal(t, env, "nilPtr", func() *Document { return nil })
	setGlobal(t, env, "record", func() Document { return Document{ID: 9, Title: "t"} })

	assert.Equal(t, "undefined", evalString(t, env, `typeof nothing()`))
	assert.Equal(t, "undefined", evalString(t, env, `typeof okOrErr()`))
	assert.Equal(t, `["a",1]`, evalString(t, env, `JSON.stringify(pair())`))
	assert.Equal(t, "true", evalString(t, env, `nilPtr() === null`))
	assert.Equal(t, "9:t", evalString(t, env, `var r = record(); r.id + ":" + r.title`))
}

func TestVariadic(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	setGlobal(t, env, "sum", func(base int, nums ...int) int {
		for _, n := range nums {
			base += n
		}
		return base
	})
	setGlobal(t, env, "join", func(sep string, parts ...string) string {
		out := ""
		for i, p := range parts {
			if i > 0 {
				out += sep
			}
			out += p
		}
		return out
	})

	assert.Equal(t, "1", evalString(t, env, `sum(1)`))
	assert.Equal(t, "10", evalString(t, env, `sum(1, 2, 3, 4)`))
	assert.Equal(t, "a-b-c", evalString(t, env, `join("-", "a", "b", "c")`))
	assert.Equal(t, "ERR_ARGUMENTS", evalString(t, env, `try { sum(1, 2, "x") } catch (e) { e.code }`))
}

func TestThisBinding(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	setGlobal(t, env, "scaled", func(this jsbridge.This, n int) (int, error) {
		obj, err := this.ToObject()
		if err != nil {
			return 0, err
		}
		return int(obj.Get("factor").ToInt64()) * n, nil
	})

	assert.Equal(t, "12", evalString(t, env, `({factor: 3, scaled}).scaled(4)`))
}

func TestNoCandidates(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	fn, err := env.Function("empty")
	require.NoError(t, err)

	_, err = fn.Call(env.Undefined())
	hostErr := hostError(t, err)
	assert.Equal(t, jsbridge.CodeDispatch, hostErr.Code())
	assert.Equal(t, "function empty has no registered implementation", hostErr.Message)
}

func TestFuncRejectsNonFunction(t *testing.T) {
	assert.Panics(t, func() { jsbridge.Func(42) })
}
