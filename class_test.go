package jsbridge_test

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/buke/jsbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Point struct {
	X, Y float64
}

func (p *Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

func (p *Point) Translate(dx, dy float64) *Point {
	p.X += dx
	p.Y += dy
	return p
}

type Vec struct {
	DX, DY float64
}

func pointClass() *jsbridge.ClassBuilder[Point] {
	return jsbridge.NewClass[Point]("Point").
		Constructor(
			func(x, y float64) *Point { return &Point{X: x, Y: y} },
			func(xy []float64) (*Point, error) {
				if len(xy) != 2 {
					return nil, errors.New("expected [x, y]")
				}
				return &Point{X: xy[0], Y: xy[1]}, nil
			},
			func(name string) (Point, error) {
				if name != "origin" {
					return Point{}, errors.New("unknown point " + name)
				}
				return Point{}, nil
			},
		).
		Method("norm", (*Point).Norm).
		Method("translate", (*Point).Translate).
		Method("add", func(p, other *Point) *Point {
			return &Point{X: p.X + other.X, Y: p.Y + other.Y}
		}).
		Method("add", func(p *Point, d float64) *Point {
			return &Point{X: p.X + d, Y: p.Y + d}
		}).
		Accessor("x", func(p *Point) float64 { return p.X }, func(p *Point, x float64) { p.X = x }).
		Accessor("y", func(p *Point) float64 { return p.Y }, nil).
		StaticMethod("origin", func() *Point { return &Point{} }).
		StaticAccessor("version", func() string { return "1.0" }, nil).
		StaticProperty("dimensions", 2, 0).
		Property("kind", "point", jsbridge.PropertyEnumerable)
}

func newPointEnv(t *testing.T) (*jsbridge.Env, *jsbridge.Class[Point]) {
	t.Helper()
	env := jsbridge.NewEnv()
	t.Cleanup(env.Close)

	class, err := pointClass().Build(env)
	require.NoError(t, err)
	require.NoError(t, env.Globals().Set("Point", class.Constructor()))
	return env, class
}

func TestClassFromScript(t *testing.T) {
	env, _ := newPointEnv(t)

	assert.Equal(t, "5", evalString(t, env, `new Point(3, 4).norm()`))
	assert.Equal(t, "5", evalString(t, env, `new Point([3, 4]).norm()`))
	assert.Equal(t, "0", evalString(t, env, `new Point("origin").norm()`))
	assert.Equal(t, "true", evalString(t, env, `new Point(1, 2) instanceof Point`))
	assert.Equal(t, "Point", evalString(t, env, `Point.name`))
	assert.Equal(t, "norm", evalString(t, env, `Point.prototype.norm.name`))

	assert.Equal(t, "expected [x, y]", evalString(t, env, `try { new Point([1]) } catch (e) { e.message }`))
	assert.Equal(t, "unknown point a", evalString(t, env, `try { new Point("a") } catch (e) { e.message }`))
	assert.Equal(t, "ERR_OVERLOAD", evalString(t, env, `try { new Point(true) } catch (e) { e.code }`))
	assert.Equal(t, "ERR_OVERLOAD", evalString(t, env, `try { new Point() } catch (e) { e.code }`))
}

func TestClassMethods(t *testing.T) {
	env, _ := newPointEnv(t)

	assert.Equal(t, "4,6", evalString(t, env, `
		var p = new Point(1, 2);
		var q = p.translate(3, 4);
		q.x + "," + q.y`))
	assert.Equal(t, "true", evalString(t, env, `p.x === 4`))

	assert.Equal(t, "5,8", evalString(t, env, `var r = p.add(new Point(1, 2)); r.x + "," + r.y`))
	assert.Equal(t, "14,16", evalString(t, env, `var s = p.add(10); s.x + "," + s.y`))
	assert.Equal(t, "true", evalString(t, env, `r instanceof Point && r !== p`))
}

func TestClassAccessors(t *testing.T) {
	env, _ := newPointEnv(t)

	assert.Equal(t, "9", evalString(t, env, `var p = new Point(1, 2); p.x = 9; p.x`))
	assert.Equal(t, "2", evalString(t, env, `"use strict"; try { p.y = 5 } catch (e) {} p.y`))
	assert.Equal(t, "ERR_ARGUMENTS", evalString(t, env, `try { p.x = "nine" } catch (e) { e.code }`))
}

func TestClassStatics(t *testing.T) {
	env, _ := newPointEnv(t)

	assert.Equal(t, "true", evalString(t, env, `Point.origin() instanceof Point`))
	assert.Equal(t, "1.0", evalString(t, env, `Point.version`))
	assert.Equal(t, "2", evalString(t, env, `Point.dimensions`))
	assert.Equal(t, "2", evalString(t, env, `Point.dimensions = 3; Point.dimensions`))
}

func TestClassInstanceProperties(t *testing.T) {
	env, _ := newPointEnv(t)

	assert.Equal(t, "point", evalString(t, env, `var p = new Point(0, 0); p.kind`))
	assert.Equal(t, "kind", evalString(t, env, `Object.keys(p).join(",")`))
	assert.Equal(t, "point", evalString(t, env, `p.kind = "other"; p.kind`))
	assert.Equal(t, "0", evalString(t, env, `Object.getOwnPropertySymbols(Object.assign({}, p)).length`))
}

func TestClassDispatchErrors(t *testing.T) {
	env, _ := newPointEnv(t)

	vecClass, err := jsbridge.NewClass[Vec]("Vec").
		Constructor(func(dx, dy float64) *Vec { return &Vec{DX: dx, DY: dy} }).
		Method("len", func(v *Vec) float64 { return math.Hypot(v.DX, v.DY) }).
		Build(env)
	require.NoError(t, err)
	require.NoError(t, env.Globals().Set("Vec", vecClass.Constructor()))

	tests := []struct {
		name string
		code string
		want string
	}{
		{"PlainObject", `Point.prototype.norm.call({})`, "wrong 'this' value on a method call of the class Point"},
		{"Primitive", `Point.prototype.norm.call(1)`, "wrong 'this' value on a method call of the class Point"},
		{"PrototypeOnly", `Point.prototype.norm.call(Object.create(Point.prototype))`, "wrong 'this' value on a method call of the class Point"},
		{"OtherClass", `Point.prototype.norm.call(new Vec(3, 4))`, "a method of the class Point has been called with the wrong class"},
		{"Reverse", `Vec.prototype.len.call(new Point(3, 4))`, "a method of the class Vec has been called with the wrong class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Eval(tt.code)
			hostErr := hostError(t, err)
			assert.Equal(t, jsbridge.CodeDispatch, hostErr.Code())
			assert.Equal(t, tt.want, hostErr.Message)
		})
	}

	assert.Equal(t, "TypeError", evalString(t, env, `try { new Point(0, 0).add(new Vec(1, 1)) } catch (e) { e.name }`))
}

func TestClassNewFromGo(t *testing.T) {
	env, class := newPointEnv(t)

	obj, err := class.New(3.0, 4.0)
	require.NoError(t, err)
	p, err := class.Unwrap(obj.Value())
	require.NoError(t, err)
	assert.Equal(t, &Point{X: 3, Y: 4}, p)

	// ints do not match float64 parameters natively and go through binding
	obj, err = class.New(6, 8)
	require.NoError(t, err)
	res, err := obj.Call("norm")
	require.NoError(t, err)
	assert.EqualValues(t, 10, res.ToFloat64())

	obj, err = class.New([]float64{5, 12})
	require.NoError(t, err)
	res, err = obj.Call("norm")
	require.NoError(t, err)
	assert.EqualValues(t, 13, res.ToFloat64())

	obj, err = class.New("origin")
	require.NoError(t, err)
	assert.True(t, class.IsInstance(obj.Value()))

	_, err = class.New("bad")
	hostErr := hostError(t, err)
	assert.Equal(t, jsbridge.CodeNative, hostErr.Code())
	assert.Equal(t, "unknown point bad", hostErr.Message)

	_, err = class.New(true)
	hostErr = hostError(t, err)
	assert.Equal(t, jsbridge.CodeOverload, hostErr.Code())

	// the pending slot does not leak into the next host construction
	assert.Equal(t, "ERR_OVERLOAD", evalString(t, env, `try { new Point() } catch (e) { e.code }`))
}

func TestClassWrap(t *testing.T) {
	env, class := newPointEnv(t)

	p := &Point{X: 1, Y: 1}
	obj, err := class.Wrap(p)
	require.NoError(t, err)

	_, err = obj.Call("translate", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, &Point{X: 2, Y: 3}, p)
	assert.Equal(t, "point", obj.Get("kind").String())

	back, err := class.Unwrap(obj.Value())
	require.NoError(t, err)
	assert.Same(t, p, back)

	_, err = class.Wrap(nil)
	require.Error(t, err)

	assert.False(t, class.IsInstance(env.Object().Value()))
	assert.False(t, class.IsInstance(env.Int(1).Value()))
	_, err = class.Unwrap(env.Object().Value())
	var dispatchErr *jsbridge.DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, jsbridge.WrongThis, dispatchErr.Reason)
}

func TestClassConversion(t *testing.T) {
	env, class := newPointEnv(t)

	p := &Point{X: 3, Y: 4}
	v, err := env.ToValue(p)
	require.NoError(t, err)
	assert.True(t, class.IsInstance(v))

	require.NoError(t, env.Globals().Set("shared", p))
	assert.Equal(t, "5", evalString(t, env, `shared.norm()`))

	setGlobal(t, env, "grow", func(p *Point, by float64) { p.X *= by; p.Y *= by })
	_, err = env.Eval(`grow(shared, 2)`)
	require.NoError(t, err)
	assert.Equal(t, &Point{X: 6, Y: 8}, p)

	assert.Equal(t, "wrong type, expected Point on argument 0, got object: wrong 'this' value on a method call of the class Point",
		evalString(t, env, `try { grow({}, 2) } catch (e) { e.message }`))

	var out *Point
	require.NoError(t, env.Unmarshal(v, &out))
	assert.Same(t, p, out)
}

func TestClassWithoutConstructor(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	class, err := jsbridge.NewClass[Vec]("Handle").
		Method("len", func(v *Vec) float64 { return math.Hypot(v.DX, v.DY) }).
		Build(env)
	require.NoError(t, err)
	require.NoError(t, env.Globals().Set("Handle", class.Constructor()))

	_, err = env.Eval(`new Handle()`)
	hostErr := hostError(t, err)
	assert.Equal(t, jsbridge.CodeDispatch, hostErr.Code())
	assert.Equal(t, "constructor of the class Handle is not defined", hostErr.Message)

	obj, err := class.Wrap(&Vec{DX: 3, DY: 4})
	require.NoError(t, err)
	res, err := obj.Call("len")
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.ToFloat64())
}

func TestClassBuildErrors(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	_, err := jsbridge.NewClass[Point]("").Build(env)
	assert.EqualError(t, err, "class name cannot be empty")

	_, err = jsbridge.NewClass[Point]("P").Method("", func() {}).Build(env)
	assert.EqualError(t, err, "method name cannot be empty")

	_, err = jsbridge.NewClass[Point]("P").Accessor("a", nil, nil).Build(env)
	assert.EqualError(t, err, "accessor a must have at least getter or setter")

	_, err = jsbridge.NewClass[Point]("P").
		Accessor("a", func(*Point) int { return 1 }, nil).
		Accessor("a", func(*Point) int { return 2 }, nil).
		Build(env)
	assert.EqualError(t, err, "accessor a is declared twice")

	_, err = pointClass().Build(env)
	require.NoError(t, err)
	_, err = jsbridge.NewClass[Point]("Point2").Build(env)
	assert.EqualError(t, err, "*jsbridge_test.Point is already bound to class Point")

	env.Close()
	_, err = jsbridge.NewClass[Vec]("Vec").Build(env)
	assert.ErrorIs(t, err, jsbridge.ErrEnvClosed)
}

type resource struct {
	closed atomic.Int32
}

func (r *resource) Finalize() {
	r.closed.Add(1)
}

func TestClassInstanceFinalizedOnce(t *testing.T) {
	env := jsbridge.NewEnv()
	defer env.Close()

	var owned []*resource
	class, err := jsbridge.NewClass[resource]("Resource").
		Constructor(func() *resource {
			r := &resource{}
			owned = append(owned, r)
			return r
		}).
		Build(env)
	require.NoError(t, err)

	wrapped := []*resource{{}, {}, {}}
	func() {
		for i := 0; i < 3; i++ {
			_, err := class.New()
			require.NoError(t, err)
		}
		for _, r := range wrapped {
			_, err := class.Wrap(r)
			require.NoError(t, err)
		}
	}()
	require.Len(t, owned, 3)

	closed := func() (n int32) {
		for _, r := range owned {
			n += r.closed.Load()
		}
		return n
	}
	collectUntil(t, env, func() bool { return closed() > 0 })
	for i := 0; i < 3; i++ {
		env.CollectGarbage()
	}

	for _, r := range owned {
		assert.LessOrEqual(t, r.closed.Load(), int32(1))
	}
	for _, r := range wrapped {
		assert.Zero(t, r.closed.Load())
	}
}
