package jsbridge

import (
	"reflect"

	"github.com/dop251/goja"
)

// ToValue converts a Go value to a host value.
//
//   - nil -> null
//   - Value, typed handles and goja values -> themselves
//   - Marshaler -> MarshalJS (Optional, Tuple2, Tuple3, Box, Rc, Arc and user types)
//   - error -> a host Error object
//   - bool, numbers and strings -> Boolean, Number and String
//   - pointers to registered classes -> a new instance wrapping the pointer
//   - everything else -> Marshal
//
// Conversion fails fast: the first inner failure is returned.
func (env *Env) ToValue(x interface{}) (Value, error) {
	switch v := x.(type) {
	case nil:
		return env.Null(), nil
	case Value:
		return env.adopt(v)
	case Dynamic:
		return env.adopt(v.Value())
	case goja.Value:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return env.Null(), nil
		}
		return env.wrap(v), nil
	case Marshaler:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return env.Null(), nil
		}
		return v.MarshalJS(env)
	case bool:
		return env.Bool(v).Value(), nil
	case string:
		return env.String(v).Value(), nil
	case int:
		return env.Int(int64(v)).Value(), nil
	case int32:
		return env.Int(int64(v)).Value(), nil
	case int64:
		return env.Int(v).Value(), nil
	case float64:
		return env.Number(v).Value(), nil
	case error:
		return env.Error(v).Value(), nil
	}
	return env.marshal(reflect.ValueOf(x))
}

// MustToValue is like ToValue but panics on error.
func (env *Env) MustToValue(x interface{}) Value {
	v, err := env.ToValue(x)
	if err != nil {
		panic(err)
	}
	return v
}
