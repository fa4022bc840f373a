package jsbridge_test

import (
	"errors"
	"testing"

	"github.com/buke/jsbridge"
	"github.com/stretchr/testify/require"
)

func argsOf(t *testing.T, env *jsbridge.Env, code string) *jsbridge.Arguments {
	t.Helper()
	v, err := env.Eval(code)
	require.NoError(t, err)
	return env.NewArguments(env.Undefined(), jsbridge.MustDowncast[jsbridge.Array](v).Elements()...)
}

func TestBindPrimitives(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	args := argsOf(t, env, `[1, "two", true, 2.5]`)
	require.Equal(t, 4, args.Len())

	i, err := jsbridge.Bind[int](args)
	require.NoError(t, err)
	require.Equal(t, 1, i)

	s, err := jsbridge.Bind[string](args)
	require.NoError(t, err)
	require.Equal(t, "two", s)

	b, err := jsbridge.Bind[bool](args)
	require.NoError(t, err)
	require.True(t, b)
	require.Equal(t, 3, args.Position())
	require.Equal(t, 1, args.Remaining())

	f, err := jsbridge.Bind[float32](args)
	require.NoError(t, err)
	require.EqualValues(t, 2.5, f)

	_, err = jsbridge.Bind[int](args)
	require.True(t, jsbridge.IsMissing(err))
	require.EqualError(t, err, "argument 4 is missing")
	require.Zero(t, args.Remaining())
}

func TestBindWrongType(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	args := argsOf(t, env, `["x"]`)
	_, err := jsbridge.Bind[int](args)

	var bindErr *jsbridge.BindingError
	require.True(t, errors.As(err, &bindErr))
	require.Equal(t, jsbridge.WrongType, bindErr.Kind)
	require.Equal(t, 0, bindErr.Position)
	require.Equal(t, jsbridge.KindString, bindErr.Got)
	require.ErrorIs(t, err, jsbridge.ErrWrongType)
	require.Equal(t, jsbridge.CodeArguments, bindErr.Code())
	require.EqualError(t, err, "wrong type, expected int on argument 0, got string")
}

func TestBindNarrowing(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	_, err := jsbridge.Bind[uint8](argsOf(t, env, `[256]`))
	require.ErrorIs(t, err, jsbridge.ErrDeserialization)
	require.ErrorIs(t, err, jsbridge.ErrOutOfRange)

	_, err = jsbridge.Bind[int](argsOf(t, env, `[0.5]`))
	require.ErrorIs(t, err, jsbridge.ErrDeserialization)
}

func TestBindOptional(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	args := argsOf(t, env, `[5]`)
	opt, err := jsbridge.Bind[jsbridge.Optional[int]](args)
	require.NoError(t, err)
	require.Equal(t, jsbridge.Some(5), opt)

	opt, err = jsbridge.Bind[jsbridge.Optional[int]](args)
	require.NoError(t, err)
	_, ok := opt.Get()
	require.False(t, ok)
	require.Equal(t, 9, opt.OrElse(9))

	_, err = jsbridge.Bind[jsbridge.Optional[int]](argsOf(t, env, `["five"]`))
	require.ErrorIs(t, err, jsbridge.ErrWrongType)

	// null is a present argument
	_, err = jsbridge.Bind[jsbridge.Optional[int]](argsOf(t, env, `[null]`))
	require.ErrorIs(t, err, jsbridge.ErrWrongType)

	opt, err = jsbridge.Bind[jsbridge.Optional[int]](argsOf(t, env, `[]`))
	require.NoError(t, err)
	require.Equal(t, jsbridge.None[int](), opt)
}

func TestOptionalConversion(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	v, err := env.ToValue(jsbridge.None[string]())
	require.NoError(t, err)
	require.True(t, v.IsUndefined())

	v, err = env.ToValue(jsbridge.Some("x"))
	require.NoError(t, err)
	require.Equal(t, "x", v.String())

	in, err := env.Eval(`({a: null, b: 3})`)
	require.NoError(t, err)
	var out struct {
		A jsbridge.Optional[int] `json:"a"`
		B jsbridge.Optional[int] `json:"b"`
		C jsbridge.Optional[int] `json:"c"`
	}
	require.NoError(t, env.Unmarshal(in, &out))
	require.False(t, out.A.Valid)
	require.Equal(t, jsbridge.Some(3), out.B)
	require.False(t, out.C.Valid)
}

func TestBindSliceUsesFreshCursor(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	args := argsOf(t, env, `[[1, 2, 3], "after"]`)
	nums, err := jsbridge.Bind[[]int](args)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, nums)
	require.Equal(t, 1, args.Position())

	rest, err := jsbridge.Bind[string](args)
	require.NoError(t, err)
	require.Equal(t, "after", rest)

	args = argsOf(t, env, `[[1, "x"]]`)
	_, err = jsbridge.Bind[[]int](args)
	var bindErr *jsbridge.BindingError
	require.True(t, errors.As(err, &bindErr))
	require.Equal(t, jsbridge.WrongType, bindErr.Kind)
	require.Equal(t, 1, bindErr.Position)
	require.Equal(t, 1, args.Position())

	_, err = jsbridge.Bind[[]int](argsOf(t, env, `[{}]`))
	require.EqualError(t, err, "wrong type, expected array of int on argument 0, got object")

	b, err := jsbridge.Bind[[]byte](argsOf(t, env, `[new Uint8Array([7, 8]).buffer]`))
	require.NoError(t, err)
	require.Equal(t, []byte{7, 8}, b)
}

func TestBindTuples(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	args := argsOf(t, env, `["k", 1, [true, "v", 2.5]]`)
	pair, err := jsbridge.Bind[jsbridge.Tuple2[string, int]](args)
	require.NoError(t, err)
	require.Equal(t, jsbridge.Tuple2[string, int]{First: "k", Second: 1}, pair)

	triple, err := jsbridge.Bind[[]jsbridge.Value](args)
	require.NoError(t, err)
	require.Len(t, triple, 3)

	_, err = jsbridge.Bind[jsbridge.Tuple2[string, string]](argsOf(t, env, `["k"]`))
	require.True(t, jsbridge.IsMissing(err))

	v, err := env.ToValue(jsbridge.Tuple3[bool, string, float64]{First: true, Second: "v", Third: 2.5})
	require.NoError(t, err)
	s, err := v.JSONStringify()
	require.NoError(t, err)
	require.JSONEq(t, `[true, "v", 2.5]`, s)

	var back jsbridge.Tuple3[bool, string, float64]
	require.NoError(t, env.Unmarshal(v, &back))
	require.Equal(t, "v", back.Second)

	short, err := env.Eval(`[true]`)
	require.NoError(t, err)
	require.EqualError(t, env.Unmarshal(short, &back), "expected array of length 3, got 1")
}

func TestBindContext(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	this := env.Object()
	require.NoError(t, this.Set("name", "receiver"))
	args := env.NewArguments(this.Value(), env.Int(1).Value())

	gotEnv, err := jsbridge.Bind[*jsbridge.Env](args)
	require.NoError(t, err)
	require.Same(t, env, gotEnv)

	gotThis, err := jsbridge.Bind[jsbridge.This](args)
	require.NoError(t, err)
	require.Equal(t, "receiver", jsbridge.MustDowncast[jsbridge.Object](gotThis.Value).Get("name").String())

	gotArgs, err := jsbridge.Bind[*jsbridge.Arguments](args)
	require.NoError(t, err)
	require.Same(t, args, gotArgs)
	require.Equal(t, 0, args.Position())

	n, err := jsbridge.Bind[jsbridge.Number](args)
	require.NoError(t, err)
	require.EqualValues(t, 1, n.Int64())
}

func TestBindTypedHandles(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	args := argsOf(t, env, `[function f() {}, "s", {k: 1}]`)
	fn, err := jsbridge.Bind[jsbridge.Function](args)
	require.NoError(t, err)
	require.Equal(t, "f", fn.Name())

	_, err = jsbridge.Bind[jsbridge.Array](args)
	require.EqualError(t, err, "wrong type, expected array on argument 1, got string")

	d, err := jsbridge.Bind[jsbridge.Dynamic](args)
	require.NoError(t, err)
	_, isObject := d.(jsbridge.Object)
	require.True(t, isObject)
}

func TestBindValue(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	v, err := env.Eval(`({title: "t", id: 3})`)
	require.NoError(t, err)

	doc, err := jsbridge.BindValue[Document](v)
	require.NoError(t, err)
	require.Equal(t, "t", doc.Title)
	require.EqualValues(t, 3, doc.ID)

	m, err := jsbridge.BindValue[map[string]interface{}](v)
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"title": "t", "id": int64(3)}, m)
}

type point struct{ X, Y int }

func (p *point) BindArguments(a *jsbridge.Arguments) error {
	var err error
	if p.X, err = jsbridge.Bind[int](a); err != nil {
		return err
	}
	p.Y, err = jsbridge.Bind[int](a)
	return err
}

func TestFromArguments(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	args := argsOf(t, env, `[1, 2, "label"]`)
	p, err := jsbridge.Bind[point](args)
	require.NoError(t, err)
	require.Equal(t, point{X: 1, Y: 2}, p)
	require.Equal(t, 2, args.Position())

	pp, err := jsbridge.Bind[*point](argsOf(t, env, `[3, 4]`))
	require.NoError(t, err)
	require.Equal(t, &point{X: 3, Y: 4}, pp)
}

func TestBindSparseArrayFailsFast(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	args := argsOf(t, env, `(function() { var a = []; a.length = 1e7; return [a] })()`)
	_, err := jsbridge.Bind[[]int](args)

	var bindErr *jsbridge.BindingError
	require.True(t, errors.As(err, &bindErr))
	require.Equal(t, jsbridge.WrongType, bindErr.Kind)
	require.Equal(t, 0, bindErr.Position)
	require.Equal(t, jsbridge.KindUndefined, bindErr.Got)
}

func TestArrayLengthLimit(t *testing.T) {
	cfg := jsbridge.DefaultConfig()
	cfg.MaxArrayLength = 4
	env := jsbridge.NewEnv(jsbridge.WithConfig(cfg))
	defer env.Close()

	_, err := jsbridge.Bind[[]jsbridge.Value](argsOf(t, env, `[[1, 2, 3, 4, 5]]`))
	require.ErrorIs(t, err, jsbridge.ErrDeserialization)
	require.ErrorIs(t, err, jsbridge.ErrArrayTooLong)

	nums, err := jsbridge.Bind[[]int](argsOf(t, env, `[[1, 2, 3, 4]]`))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, nums)

	v, err := env.Eval(`var a = []; a.length = 1e9; a`)
	require.NoError(t, err)
	var decoded interface{}
	require.ErrorIs(t, env.Unmarshal(v, &decoded), jsbridge.ErrArrayTooLong)
	var strs []string
	require.ErrorIs(t, env.Unmarshal(v, &strs), jsbridge.ErrArrayTooLong)
}

func TestPositionAfterFailure(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	args := argsOf(t, env, `["k", "x"]`)
	_, err := jsbridge.Bind[jsbridge.Tuple2[string, int]](args)
	var bindErr *jsbridge.BindingError
	require.True(t, errors.As(err, &bindErr))
	require.Equal(t, 1, bindErr.Position)
	require.Equal(t, 1, args.Position())

	// the failing element can be bound again as something else
	s, err := jsbridge.Bind[string](args)
	require.NoError(t, err)
	require.Equal(t, "x", s)

	_, err = jsbridge.Bind[int](args)
	require.True(t, jsbridge.IsMissing(err))
	require.Equal(t, args.Len(), args.Position())

	args = argsOf(t, env, `[1, true]`)
	_, err = jsbridge.Bind[jsbridge.Tuple2[int, string]](args)
	require.ErrorIs(t, err, jsbridge.ErrWrongType)
	require.Equal(t, 1, args.Position())
}
