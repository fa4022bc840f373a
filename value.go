package jsbridge

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/dop251/goja"
)

// Kind is the runtime type of a host value.
type Kind int

const (
	KindUndefined Kind = iota + 1
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindSymbol
	KindBigInt
	KindObject
	KindArray
	KindFunction
	KindExternal
)

var kindNames = map[Kind]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindSymbol:    "symbol",
	KindBigInt:    "bigint",
	KindObject:    "object",
	KindArray:     "array",
	KindFunction:  "function",
	KindExternal:  "external",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsObject reports whether values of this kind are host objects.
func (k Kind) IsObject() bool {
	return k == KindObject || k == KindArray || k == KindFunction || k == KindExternal
}

var (
	typeBigInt         = reflect.TypeOf((*big.Int)(nil))
	typeExternalRecord = reflect.TypeOf((*externalRecord)(nil))
)

// kindOf inspects the runtime type of a host value.
func kindOf(ref goja.Value) Kind {
	if ref == nil || goja.IsUndefined(ref) {
		return KindUndefined
	}
	if goja.IsNull(ref) {
		return KindNull
	}
	switch r := ref.(type) {
	case *goja.Symbol:
		return KindSymbol
	case *goja.Object:
		if r.ExportType() == typeExternalRecord {
			return KindExternal
		}
		if _, ok := goja.AssertFunction(r); ok {
			return KindFunction
		}
		if r.ClassName() == "Array" {
			return KindArray
		}
		return KindObject
	}
	typ := ref.ExportType()
	if typ == typeBigInt {
		return KindBigInt
	}
	if typ != nil {
		switch typ.Kind() {
		case reflect.Bool:
			return KindBoolean
		case reflect.String:
			return KindString
		case reflect.Int64, reflect.Float64, reflect.Int, reflect.Int32, reflect.Uint32, reflect.Uint64:
			return KindNumber
		}
	}
	return KindObject
}

// Value is an opaque reference to a host value. Copies are cheap and share the host value.
type Value struct {
	env *Env
	ref goja.Value
}

// Env returns the environment the value belongs to.
func (v Value) Env() *Env {
	return v.env
}

// Ref returns the raw host value.
func (v Value) Ref() goja.Value {
	if v.ref == nil {
		return goja.Undefined()
	}
	return v.ref
}

// Kind inspects the runtime type of the value.
func (v Value) Kind() Kind {
	return kindOf(v.ref)
}

func (v Value) IsUndefined() bool { return v.ref == nil || goja.IsUndefined(v.ref) }
func (v Value) IsNull() bool      { return v.ref != nil && goja.IsNull(v.ref) }
func (v Value) IsNullish() bool   { return v.IsUndefined() || v.IsNull() }
func (v Value) IsBool() bool      { return v.Kind() == KindBoolean }
func (v Value) IsNumber() bool    { return v.Kind() == KindNumber }
func (v Value) IsString() bool    { return v.Kind() == KindString }
func (v Value) IsSymbol() bool    { return v.Kind() == KindSymbol }
func (v Value) IsBigInt() bool    { return v.Kind() == KindBigInt }
func (v Value) IsObject() bool    { return v.Kind().IsObject() }
func (v Value) IsArray() bool     { return v.Kind() == KindArray }
func (v Value) IsFunction() bool  { return v.Kind() == KindFunction }
func (v Value) IsExternal() bool  { return v.Kind() == KindExternal }

// IsError reports whether the value is a host Error object.
func (v Value) IsError() bool {
	obj, ok := v.ref.(*goja.Object)
	return ok && obj.ClassName() == "Error"
}

// String returns the string representation of the value.
// This method implements the fmt.Stringer interface.
func (v Value) String() string {
	if v.ref == nil {
		return "undefined"
	}
	return v.ref.String()
}

// ToBool returns the boolean value of the value.
func (v Value) ToBool() bool {
	return v.Ref().ToBoolean()
}

// ToFloat64 returns the numeric value of the value.
func (v Value) ToFloat64() float64 {
	return v.Ref().ToFloat()
}

// ToInt64 returns the integer value of the value.
func (v Value) ToInt64() int64 {
	return v.Ref().ToInteger()
}

// StrictEquals compares two values with the === operator.
func (v Value) StrictEquals(other Value) bool {
	return v.Ref().StrictEquals(other.Ref())
}

// JSONStringify returns the JSON string representation of the value.
func (v Value) JSONStringify() (string, error) {
	obj, ok := v.ref.(*goja.Object)
	if !ok {
		b, err := v.env.rt.ToValue(v.Ref()).ToObject(v.env.rt).MarshalJSON()
		return string(b), err
	}
	b, err := obj.MarshalJSON()
	return string(b), err
}

// Dynamic inspects the value once and returns the typed handle matching its kind.
func (v Value) Dynamic() Dynamic {
	switch v.Kind() {
	case KindUndefined:
		return Undefined{v}
	case KindNull:
		return Null{v}
	case KindBoolean:
		return Boolean{v}
	case KindNumber:
		return Number{v}
	case KindString:
		return String{v}
	case KindSymbol:
		return Symbol{v}
	case KindBigInt:
		return BigInt{v}
	case KindArray:
		return Array{v}
	case KindFunction:
		return Function{v}
	case KindExternal:
		return External{v}
	}
	return Object{v}
}

// ToObject is the checked upcast from any object-like kind to Object.
func (v Value) ToObject() (Object, error) {
	if k := v.Kind(); !k.IsObject() {
		return Object{}, &KindError{Expected: KindObject, Got: k}
	}
	return Object{v}, nil
}

// ToError returns the host error carried by the value, or nil if it is not an Error object.
func (v Value) ToError() error {
	if !v.IsError() {
		return nil
	}
	obj := v.ref.(*goja.Object)
	err := &Error{value: v.ref}

	if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
		err.Name = name.String()
	}
	if message := obj.Get("message"); message != nil && !goja.IsUndefined(message) {
		err.Message = message.String()
	}
	if cause := obj.Get("cause"); cause != nil && !goja.IsUndefined(cause) {
		err.Cause = cause.String()
	}
	if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
		err.Stack = stack.String()
	}
	if code := obj.Get("code"); code != nil && !goja.IsUndefined(code) {
		err.ErrCode = code.String()
	}
	if b, jsonErr := obj.MarshalJSON(); jsonErr == nil {
		err.JSONString = string(b)
	}
	return err
}

// Persist promotes the value to a Reference that may be retained across invocations.
func (v Value) Persist() *Reference {
	return &Reference{value: v, count: 1}
}

// Reference keeps a host value alive beyond the invocation that produced it.
// It must only be used on the loop goroutine.
type Reference struct {
	value Value
	count int
}

// Ref increments the reference count and returns it.
func (r *Reference) Ref() int {
	if r.count > 0 {
		r.count++
	}
	return r.count
}

// Unref decrements the reference count and returns it. At zero the value is dropped.
func (r *Reference) Unref() int {
	if r.count == 0 {
		return 0
	}
	r.count--
	if r.count == 0 {
		r.value = Value{}
	}
	return r.count
}

// Value returns the referenced value, or false once the count dropped to zero.
func (r *Reference) Value() (Value, bool) {
	if r.count == 0 {
		return Value{}, false
	}
	return r.value, true
}
