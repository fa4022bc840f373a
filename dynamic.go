package jsbridge

import "reflect"

// Dynamic is the closed union of typed handles. It is produced by Value.Dynamic, which inspects
// the host value once; callers branch on it with a type switch:
//
//	switch d := v.Dynamic().(type) {
//	case jsbridge.String:
//		...
//	case jsbridge.Number:
//		...
//	}
//
// Only the handles of this package implement Dynamic.
type Dynamic interface {
	// Value upcasts the handle to the opaque value.
	Value() Value
	// Kind returns the kind every value of this handle type has.
	Kind() Kind

	dynamic()
}

func (String) dynamic()    {}
func (Number) dynamic()    {}
func (Boolean) dynamic()   {}
func (Symbol) dynamic()    {}
func (BigInt) dynamic()    {}
func (Object) dynamic()    {}
func (Array) dynamic()     {}
func (Function) dynamic()  {}
func (External) dynamic()  {}
func (Null) dynamic()      {}
func (Undefined) dynamic() {}

// Downcast converts v to the typed handle D after checking its runtime kind.
// Downcast to Object also accepts arrays, functions and externals.
func Downcast[D Dynamic](v Value) (D, error) {
	var zero D
	d := v.Dynamic()
	if typed, ok := d.(D); ok {
		return typed, nil
	}
	if _, ok := any(zero).(Object); ok && d.Kind().IsObject() {
		return any(Object{v}).(D), nil
	}
	return zero, &KindError{Expected: zero.Kind(), Got: d.Kind()}
}

// MustDowncast is like Downcast but panics on a kind mismatch.
func MustDowncast[D Dynamic](v Value) D {
	d, err := Downcast[D](v)
	if err != nil {
		panic(err)
	}
	return d
}

var typeObject = reflect.TypeOf(Object{})

// downcastTo is Downcast for a handle type known only at run time.
func downcastTo(v Value, t reflect.Type) (reflect.Value, error) {
	d := v.Dynamic()
	if reflect.TypeOf(d) == t {
		return reflect.ValueOf(d), nil
	}
	if t == typeObject && d.Kind().IsObject() {
		return reflect.ValueOf(Object{v}), nil
	}
	expected := reflect.Zero(t).Interface().(Dynamic).Kind()
	return reflect.Value{}, &KindError{Expected: expected, Got: d.Kind()}
}
