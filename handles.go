package jsbridge

import (
	"errors"
	"math"
	"math/big"
	"unicode/utf16"

	"github.com/dop251/goja"
)

// String is a host string.
type String struct{ v Value }

func (s String) Value() Value { return s.v }
func (String) Kind() Kind     { return KindString }

// String returns the Go string.
func (s String) String() string { return s.v.Ref().String() }

// Len returns the number of UTF-16 code units of the string.
func (s String) Len() int {
	return len(utf16.Encode([]rune(s.String())))
}

// Number is a host number.
type Number struct{ v Value }

func (n Number) Value() Value { return n.v }
func (Number) Kind() Kind     { return KindNumber }

func (n Number) Float64() float64 { return n.v.Ref().ToFloat() }
func (n Number) Int64() int64     { return n.v.Ref().ToInteger() }

// IsInteger reports whether the number has no fractional part.
func (n Number) IsInteger() bool {
	f := n.Float64()
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// Boolean is a host boolean.
type Boolean struct{ v Value }

func (b Boolean) Value() Value { return b.v }
func (Boolean) Kind() Kind     { return KindBoolean }
func (b Boolean) Bool() bool   { return b.v.Ref().ToBoolean() }

// Symbol is a host symbol.
type Symbol struct{ v Value }

func (s Symbol) Value() Value { return s.v }
func (Symbol) Kind() Kind     { return KindSymbol }

// String returns the descriptive string of the symbol, e.g. "Symbol(foo)".
func (s Symbol) String() string { return s.v.String() }

// BigInt is a host bigint.
type BigInt struct{ v Value }

func (b BigInt) Value() Value { return b.v }
func (BigInt) Kind() Kind     { return KindBigInt }

// Int returns a copy of the integer.
func (b BigInt) Int() *big.Int {
	if i, ok := b.v.Ref().Export().(*big.Int); ok {
		return new(big.Int).Set(i)
	}
	return new(big.Int)
}

// Null is the host null.
type Null struct{ v Value }

func (n Null) Value() Value { return n.v }
func (Null) Kind() Kind     { return KindNull }

// Undefined is the host undefined.
type Undefined struct{ v Value }

func (u Undefined) Value() Value { return u.v }
func (Undefined) Kind() Kind     { return KindUndefined }

// Object is a host object. Arrays, functions and externals upcast to Object.
type Object struct{ v Value }

func (o Object) Value() Value { return o.v }
func (Object) Kind() Kind     { return KindObject }

func (o Object) ref() *goja.Object {
	obj, _ := o.v.ref.(*goja.Object)
	return obj
}

// ClassName returns the internal class of the object, e.g. "Object", "Array" or "Error".
func (o Object) ClassName() string {
	return o.ref().ClassName()
}

// Get returns the named property, or undefined.
func (o Object) Get(name string) Value {
	return o.GetKey(NameKey(name))
}

// GetKey returns the property stored under key, or undefined.
func (o Object) GetKey(key PropertyKey) Value {
	return o.v.env.wrap(key.get(o.ref()))
}

// Set converts val with Env.ToValue and stores it as the named property.
func (o Object) Set(name string, val any) error {
	return o.SetKey(NameKey(name), val)
}

// SetKey converts val with Env.ToValue and stores it under key.
func (o Object) SetKey(key PropertyKey, val any) error {
	v, err := o.v.env.ToValue(val)
	if err != nil {
		return err
	}
	return o.v.env.hostError(key.set(o.ref(), v.Ref()))
}

// Has reports whether the property exists on the object or its prototype chain.
func (o Object) Has(name string) bool {
	return o.HasKey(NameKey(name))
}

// HasKey reports whether the property exists on the object or its prototype chain.
func (o Object) HasKey(key PropertyKey) bool {
	return key.get(o.ref()) != nil
}

// Delete removes the named property.
func (o Object) Delete(name string) error {
	return o.DeleteKey(NameKey(name))
}

// DeleteKey removes the property stored under key.
func (o Object) DeleteKey(key PropertyKey) error {
	return o.v.env.hostError(key.delete(o.ref()))
}

// Keys returns the own enumerable string keys in host enumeration order.
func (o Object) Keys() []string {
	return o.ref().Keys()
}

// Call invokes the named method with the object as receiver.
func (o Object) Call(method string, args ...any) (Value, error) {
	fn, err := Downcast[Function](o.Get(method))
	if err != nil {
		return o.v.env.Undefined(), errors.New("jsbridge: " + method + " is not a function")
	}
	return fn.Call(o.v, args...)
}

// Array is a host array.
type Array struct{ v Value }

func (a Array) Value() Value { return a.v }
func (Array) Kind() Kind     { return KindArray }

// Object upcasts the array to Object.
func (a Array) Object() Object { return Object(a) }

// Len returns the length of the array.
func (a Array) Len() int64 {
	return a.Object().Get("length").ToInt64()
}

// Get returns the element at index.
func (a Array) Get(index int64) (Value, error) {
	if index < 0 {
		return Value{}, errors.New("the input index value is a negative number")
	}
	if index >= a.Len() {
		return Value{}, errors.New("index subscript out of range")
	}
	return a.Object().GetKey(IndexKey(index)), nil
}

// Set converts val and stores it at index. Writing past the end grows the array.
func (a Array) Set(index int64, val any) error {
	if index < 0 {
		return errors.New("the input index value is a negative number")
	}
	return a.Object().SetKey(IndexKey(index), val)
}

// Push appends the converted items and returns the new length.
func (a Array) Push(items ...any) (int64, error) {
	n := a.Len()
	for _, item := range items {
		if err := a.Set(n, item); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// at returns the element at index without a bounds check. Holes read as undefined.
func (a Array) at(index int64) Value {
	return a.Object().GetKey(IndexKey(index))
}

// Elements returns the elements in index order. It reads every index up to Len, so it
// should not be used on arrays whose length comes from untrusted code.
func (a Array) Elements() []Value {
	n := a.Len()
	out := make([]Value, 0, n)
	for i := int64(0); i < n; i++ {
		out = append(out, a.Object().GetKey(IndexKey(i)))
	}
	return out
}

// Function is a host function.
type Function struct{ v Value }

func (f Function) Value() Value { return f.v }
func (Function) Kind() Kind     { return KindFunction }

// Object upcasts the function to Object.
func (f Function) Object() Object { return Object(f) }

// Name returns the name property of the function.
func (f Function) Name() string {
	return f.Object().Get("name").String()
}

// Call invokes the function with receiver this. Go arguments are converted with Env.ToValue.
// A thrown exception is returned as *Error.
func (f Function) Call(this Value, args ...any) (Value, error) {
	env := f.v.env
	fn, ok := goja.AssertFunction(f.v.ref)
	if !ok {
		return env.Undefined(), &KindError{Expected: KindFunction, Got: f.v.Kind()}
	}
	refs, err := env.toRefs(args)
	if err != nil {
		return env.Undefined(), err
	}
	res, err := fn(this.Ref(), refs...)
	if err != nil {
		return env.Undefined(), env.hostError(err)
	}
	return env.wrap(res), nil
}

// New invokes the function as a constructor.
func (f Function) New(args ...any) (Object, error) {
	env := f.v.env
	refs, err := env.toRefs(args)
	if err != nil {
		return Object{}, err
	}
	obj, err := env.rt.New(f.v.ref, refs...)
	if err != nil {
		return Object{}, env.hostError(err)
	}
	return Object{env.wrap(obj)}, nil
}

// External is an opaque host value carrying a Go payload. See Box, Rc and Arc.
type External struct{ v Value }

func (e External) Value() Value { return e.v }
func (External) Kind() Kind     { return KindExternal }

func (e External) record() *externalRecord {
	obj, ok := e.v.ref.(*goja.Object)
	if !ok {
		return nil
	}
	rec, _ := obj.Export().(*externalRecord)
	return rec
}

// Ownership returns the ownership mode the payload crossed with.
func (e External) Ownership() Ownership {
	if rec := e.record(); rec != nil {
		return rec.mode
	}
	return 0
}

// TypeName returns the Go type name of the payload.
func (e External) TypeName() string {
	if rec := e.record(); rec != nil {
		return rec.typ.String()
	}
	return ""
}

func (env *Env) toRefs(args []any) ([]goja.Value, error) {
	refs := make([]goja.Value, len(args))
	for i, arg := range args {
		v, err := env.ToValue(arg)
		if err != nil {
			return nil, err
		}
		refs[i] = v.Ref()
	}
	return refs, nil
}
