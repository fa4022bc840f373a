package jsbridge

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Marshaler is the interface implemented by types that can marshal themselves into a JavaScript value.
type Marshaler interface {
	MarshalJS(env *Env) (Value, error)
}

// Unmarshaler is the interface implemented by types that can unmarshal a JavaScript value into themselves.
type Unmarshaler interface {
	UnmarshalJS(env *Env, v Value) error
}

// ErrOutOfRange is returned when a number does not fit the Go numeric type it is unmarshaled into.
var ErrOutOfRange = errors.New("number out of range")

// ErrArrayTooLong is returned when a host Array is longer than Config.MaxArrayLength.
var ErrArrayTooLong = errors.New("array too long")

var (
	typeValue       = reflect.TypeOf(Value{})
	typeDynamic     = reflect.TypeOf((*Dynamic)(nil)).Elem()
	typeGojaValue   = reflect.TypeOf((*goja.Value)(nil)).Elem()
	typeMarshaler   = reflect.TypeOf((*Marshaler)(nil)).Elem()
	typeUnmarshaler = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	typeBytes       = reflect.TypeOf([]byte(nil))
	typeError       = reflect.TypeOf((*error)(nil)).Elem()
)

// Marshal returns the JavaScript value encoding of v.
// It traverses the value v recursively and creates corresponding JavaScript values.
//
// Marshal uses the following type mappings:
//   - nil, nil pointer, nil interface -> null
//   - bool -> boolean
//   - every integer width, float32, float64 -> number
//   - *big.Int -> bigint
//   - string -> string
//   - []byte -> ArrayBuffer
//   - slice/array -> Array, elements written at increasing indices
//   - map -> Object
//   - struct -> Object
//   - registered enum variants -> see RegisterEnum
//   - pointer to a registered class -> class instance
//   - func -> host function dispatching to it
//
// Struct fields are marshaled using their field names unless a tag is present.
// The "js" and "json" tags are supported. Fields with tag "-" are ignored and
// "omitempty" skips zero values. Untagged embedded structs are flattened.
//
// Types implementing the Marshaler interface are marshaled using their MarshalJS method.
func (env *Env) Marshal(v interface{}) (Value, error) {
	if v == nil {
		return env.Null(), nil
	}
	return env.marshal(reflect.ValueOf(v))
}

// Unmarshal converts the JavaScript value and stores the result in the value pointed to by dst.
// If dst is nil or not a pointer, Unmarshal returns an error.
//
// Unmarshal uses the inverse of the encodings that Marshal uses, with the following additional rules:
//   - null/undefined -> Go nil pointer or zero value
//   - number -> any Go numeric type; integers must be integral and in range
//   - Object -> struct fields matched by walking the object's own keys in host order
//
// When unmarshaling into an interface{}, Unmarshal stores one of:
//   - nil for null/undefined
//   - bool for booleans
//   - int64 for integral numbers, float64 otherwise
//   - *big.Int for bigints
//   - string for strings
//   - []byte for ArrayBuffers
//   - []interface{} for arrays
//   - map[string]interface{} for objects
//   - Function and External handles for functions and externals
//
// Types implementing the Unmarshaler interface are unmarshaled using their UnmarshalJS method.
func (env *Env) Unmarshal(v Value, dst interface{}) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("unmarshal target must be a non-nil pointer")
	}
	return env.unmarshal(v, rv.Elem())
}

// marshal recursively marshals a Go value.
func (env *Env) marshal(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return env.Null(), nil
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return env.Null(), nil
		}
		rv = rv.Elem()
	}

	switch rv.Type() {
	case typeValue:
		return env.adopt(rv.Interface().(Value))
	case typeBigInt:
		if rv.IsNil() {
			return env.Null(), nil
		}
		return env.BigInt(rv.Interface().(*big.Int)).Value(), nil
	}
	if rv.Type().Implements(typeGojaValue) {
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return env.Null(), nil
		}
		return env.wrap(rv.Interface().(goja.Value)), nil
	}
	if rv.Type().Implements(typeDynamic) {
		return env.adopt(rv.Interface().(Dynamic).Value())
	}
	if rv.Type().Implements(typeMarshaler) {
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return env.Null(), nil
		}
		return rv.Interface().(Marshaler).MarshalJS(env)
	}
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return env.Null(), nil
		}
		if table, ok := env.classes[rv.Type()]; ok {
			obj, err := table.wrap(env, rv)
			if err != nil {
				return env.Undefined(), err
			}
			return env.wrap(obj), nil
		}
		return env.marshal(rv.Elem())
	}
	if rv.CanAddr() && rv.Addr().Type().Implements(typeMarshaler) {
		return rv.Addr().Interface().(Marshaler).MarshalJS(env)
	}
	if variant := lookupVariant(rv.Type()); variant != nil {
		return env.marshalVariant(variant, rv)
	}
	return env.marshalPlain(rv)
}

// marshalPlain marshals rv by its kind, ignoring enum registrations of its type.
func (env *Env) marshalPlain(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return env.Bool(rv.Bool()).Value(), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return env.Int(rv.Int()).Value(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return env.Number(float64(u)).Value(), nil
		}
		return env.Int(int64(u)).Value(), nil

	case reflect.Float32, reflect.Float64:
		return env.Number(rv.Float()).Value(), nil

	case reflect.String:
		return env.String(rv.String()).Value(), nil

	case reflect.Slice:
		if rv.IsNil() {
			return env.Null(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return env.ArrayBuffer(rv.Bytes()).Value(), nil
		}
		return env.marshalSequence(rv)

	case reflect.Array:
		return env.marshalSequence(rv)

	case reflect.Map:
		if rv.IsNil() {
			return env.Null(), nil
		}
		return env.marshalMap(rv)

	case reflect.Struct:
		return env.marshalStruct(rv)

	case reflect.Func:
		if rv.IsNil() {
			return env.Null(), nil
		}
		fn, err := env.Function("", Func(rv.Interface()))
		if err != nil {
			return env.Undefined(), err
		}
		return fn.Value(), nil

	default:
		return env.Undefined(), fmt.Errorf("unsupported type: %v", rv.Type())
	}
}

// adopt checks that a value created elsewhere belongs to this environment.
func (env *Env) adopt(v Value) (Value, error) {
	if v.env != nil && v.env != env {
		return env.Undefined(), errors.New("jsbridge: value belongs to another env")
	}
	return env.wrap(v.ref), nil
}

// marshalSequence marshals Go slices and arrays to JavaScript Array
func (env *Env) marshalSequence(rv reflect.Value) (Value, error) {
	n := rv.Len()
	items := make([]interface{}, n)
	for i := 0; i < n; i++ {
		elem, err := env.marshal(rv.Index(i))
		if err != nil {
			return env.Undefined(), fmt.Errorf("array element %d: %w", i, err)
		}
		items[i] = elem.ref
	}
	return env.wrap(env.rt.NewArray(items...)), nil
}

// marshalMap marshals Go map to JavaScript Object
func (env *Env) marshalMap(rv reflect.Value) (Value, error) {
	obj := env.rt.NewObject()
	iter := rv.MapRange()
	for iter.Next() {
		key, err := mapKeyString(iter.Key())
		if err != nil {
			return env.Undefined(), err
		}
		val, err := env.marshal(iter.Value())
		if err != nil {
			return env.Undefined(), fmt.Errorf("map value for key %s: %w", key, err)
		}
		if err := obj.Set(key, val.ref); err != nil {
			return env.Undefined(), env.hostError(err)
		}
	}
	return env.wrap(obj), nil
}

func mapKeyString(k reflect.Value) (string, error) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	if s, ok := k.Interface().(fmt.Stringer); ok {
		return s.String(), nil
	}
	return "", fmt.Errorf("unsupported map key type: %v", k.Type())
}

// marshalStruct marshals Go struct to JavaScript Object
func (env *Env) marshalStruct(rv reflect.Value) (Value, error) {
	obj := env.rt.NewObject()
	if err := env.marshalFields(obj, rv); err != nil {
		return env.Undefined(), err
	}
	return env.wrap(obj), nil
}

func (env *Env) marshalFields(obj *goja.Object, rv reflect.Value) error {
	for _, f := range cachedFields(rv.Type()) {
		fv, ok := fieldByIndex(rv, f.index)
		if !ok || (f.omitEmpty && fv.IsZero()) {
			continue
		}
		val, err := env.marshal(fv)
		if err != nil {
			return fmt.Errorf("struct field %s: %w", f.goName, err)
		}
		if err := obj.Set(f.name, val.ref); err != nil {
			return env.hostError(err)
		}
	}
	return nil
}

// fieldByIndex is reflect.Value.FieldByIndex without panicking on nil embedded pointers.
func fieldByIndex(rv reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return reflect.Value{}, false
			}
			rv = rv.Elem()
		}
		rv = rv.Field(x)
	}
	return rv, true
}

// unmarshal recursively unmarshals a JavaScript value to Go
func (env *Env) unmarshal(v Value, rv reflect.Value) error {
	if rv.CanAddr() && rv.Addr().Type().Implements(typeUnmarshaler) {
		return rv.Addr().Interface().(Unmarshaler).UnmarshalJS(env, v)
	}

	switch t := rv.Type(); {
	case t == typeValue:
		rv.Set(reflect.ValueOf(v))
		return nil
	case t == typeBigInt:
		if v.IsNullish() {
			rv.Set(reflect.Zero(t))
			return nil
		}
		if v.Kind() != KindBigInt {
			return fmt.Errorf("cannot unmarshal %s into Go %v", v.Kind(), t)
		}
		rv.Set(reflect.ValueOf(BigInt{v}.Int()))
		return nil
	case t == typeDynamic:
		rv.Set(reflect.ValueOf(v.Dynamic()))
		return nil
	case t.Kind() != reflect.Interface && t.Implements(typeDynamic):
		d, err := downcastTo(v, t)
		if err != nil {
			return err
		}
		rv.Set(d)
		return nil
	}

	if rv.Kind() == reflect.Ptr {
		if v.IsNullish() {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		if table, ok := env.classes[rv.Type()]; ok {
			inst, err := table.unwrap(env, v)
			if err != nil {
				return err
			}
			rv.Set(inst)
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return env.unmarshal(v, rv.Elem())
	}

	if variant := lookupVariant(rv.Type()); variant != nil {
		return env.unmarshalVariant(variant, v, rv)
	}

	if rv.Kind() == reflect.Interface {
		if enum := lookupEnum(rv.Type()); enum != nil {
			return env.unmarshalEnum(enum, v, rv)
		}
		if rv.NumMethod() > 0 {
			return fmt.Errorf("unsupported interface type: %v", rv.Type())
		}
		val, err := env.unmarshalInterface(v)
		if err != nil {
			return err
		}
		if val == nil {
			rv.Set(reflect.Zero(rv.Type()))
		} else {
			rv.Set(reflect.ValueOf(val))
		}
		return nil
	}

	return env.unmarshalPlain(v, rv)
}

// unmarshalPlain unmarshals into rv by its kind, ignoring enum registrations.
func (env *Env) unmarshalPlain(v Value, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Bool:
		if !v.IsBool() {
			return fmt.Errorf("cannot unmarshal %s into Go bool", v.Kind())
		}
		rv.SetBool(v.ToBool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := toInt64(v)
		if err != nil {
			return err
		}
		if rv.OverflowInt(i) {
			return fmt.Errorf("%w: %d does not fit Go %v", ErrOutOfRange, i, rv.Type())
		}
		rv.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := toUint64(v)
		if err != nil {
			return err
		}
		if rv.OverflowUint(u) {
			return fmt.Errorf("%w: %d does not fit Go %v", ErrOutOfRange, u, rv.Type())
		}
		rv.SetUint(u)

	case reflect.Float32, reflect.Float64:
		if !v.IsNumber() {
			return fmt.Errorf("cannot unmarshal %s into Go float", v.Kind())
		}
		f := v.ToFloat64()
		if !math.IsInf(f, 0) && !math.IsNaN(f) && rv.OverflowFloat(f) {
			return fmt.Errorf("%w: %v does not fit Go %v", ErrOutOfRange, f, rv.Type())
		}
		rv.SetFloat(f)

	case reflect.String:
		if !v.IsString() {
			return fmt.Errorf("cannot unmarshal %s into Go string", v.Kind())
		}
		rv.SetString(v.String())

	case reflect.Slice:
		return env.unmarshalSlice(v, rv)

	case reflect.Array:
		return env.unmarshalArray(v, rv)

	case reflect.Map:
		return env.unmarshalMap(v, rv)

	case reflect.Struct:
		return env.unmarshalStruct(v, rv)

	default:
		return fmt.Errorf("unsupported type: %v", rv.Type())
	}

	return nil
}

const (
	minInt64Float = -9223372036854775808.0
	maxInt64Float = 9223372036854775808.0 // exclusive
	maxUint64     = 18446744073709551616.0 // exclusive
)

func toInt64(v Value) (int64, error) {
	switch v.Kind() {
	case KindNumber:
		if i, ok := v.ref.Export().(int64); ok {
			return i, nil
		}
		f := v.ToFloat64()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("cannot unmarshal non-integral number %v into Go integer", f)
		}
		if f < minInt64Float || f >= maxInt64Float {
			return 0, fmt.Errorf("%w: %v", ErrOutOfRange, f)
		}
		return int64(f), nil
	case KindBigInt:
		i := BigInt{v}.Int()
		if !i.IsInt64() {
			return 0, fmt.Errorf("%w: bigint %s", ErrOutOfRange, i)
		}
		return i.Int64(), nil
	}
	return 0, fmt.Errorf("cannot unmarshal %s into Go integer", v.Kind())
}

func toUint64(v Value) (uint64, error) {
	switch v.Kind() {
	case KindNumber:
		if i, ok := v.ref.Export().(int64); ok && i >= 0 {
			return uint64(i), nil
		}
		f := v.ToFloat64()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("cannot unmarshal non-integral number %v into Go integer", f)
		}
		if f < 0 || f >= maxUint64 {
			return 0, fmt.Errorf("%w: %v", ErrOutOfRange, f)
		}
		return uint64(f), nil
	case KindBigInt:
		i := BigInt{v}.Int()
		if !i.IsUint64() {
			return 0, fmt.Errorf("%w: bigint %s", ErrOutOfRange, i)
		}
		return i.Uint64(), nil
	}
	return 0, fmt.Errorf("cannot unmarshal %s into Go unsigned integer", v.Kind())
}

// arrayBufferBytes returns a copy of the bytes of an ArrayBuffer or Uint8Array value.
// The copy is never nil.
func arrayBufferBytes(v Value) ([]byte, bool) {
	obj, ok := v.ref.(*goja.Object)
	if !ok {
		return nil, false
	}
	var src []byte
	switch x := obj.Export().(type) {
	case goja.ArrayBuffer:
		src = x.Bytes()
	case []byte:
		src = x
	default:
		return nil, false
	}
	b := make([]byte, len(src))
	copy(b, src)
	return b, true
}

// arrayLength returns the length of arr, bounded by Config.MaxArrayLength.
func (env *Env) arrayLength(arr Array) (int, error) {
	limit := env.config.MaxArrayLength
	if limit <= 0 {
		limit = DefaultMaxArrayLength
	}
	n := arr.Len()
	if n > int64(limit) {
		return 0, fmt.Errorf("%w: length %d exceeds %d", ErrArrayTooLong, n, limit)
	}
	return int(n), nil
}

// unmarshalSlice unmarshals JavaScript Array to Go slice
func (env *Env) unmarshalSlice(v Value, rv reflect.Value) error {
	if v.IsNullish() {
		rv.Set(reflect.Zero(rv.Type()))
		return nil
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		if b, ok := arrayBufferBytes(v); ok {
			rv.SetBytes(b)
			return nil
		}
	}
	if !v.IsArray() {
		return fmt.Errorf("expected array, got %s", v.Kind())
	}

	arr := Array{v}
	n, err := env.arrayLength(arr)
	if err != nil {
		return err
	}
	slice := reflect.MakeSlice(rv.Type(), 0, 0)
	for i := 0; i < n; i++ {
		elem := reflect.New(rv.Type().Elem()).Elem()
		if err := env.unmarshal(arr.at(int64(i)), elem); err != nil {
			return fmt.Errorf("array element %d: %w", i, err)
		}
		slice = reflect.Append(slice, elem)
	}
	rv.Set(slice)
	return nil
}

// unmarshalArray unmarshals JavaScript Array to Go array. The lengths must match.
func (env *Env) unmarshalArray(v Value, rv reflect.Value) error {
	if !v.IsArray() {
		return fmt.Errorf("expected array, got %s", v.Kind())
	}
	arr := Array{v}
	if n := arr.Len(); n != int64(rv.Len()) {
		return fmt.Errorf("expected array of length %d, got %d", rv.Len(), n)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := env.unmarshal(arr.at(int64(i)), rv.Index(i)); err != nil {
			return fmt.Errorf("array element %d: %w", i, err)
		}
	}
	return nil
}

// unmarshalMap unmarshals JavaScript Object to Go map
func (env *Env) unmarshalMap(v Value, rv reflect.Value) error {
	if v.IsNullish() {
		rv.Set(reflect.Zero(rv.Type()))
		return nil
	}
	if !v.IsObject() {
		return fmt.Errorf("expected object, got %s", v.Kind())
	}
	if rv.IsNil() {
		rv.Set(reflect.MakeMap(rv.Type()))
	}

	obj := Object{v}
	keyType := rv.Type().Key()
	valueType := rv.Type().Elem()

	for _, prop := range obj.Keys() {
		keyVal := reflect.New(keyType).Elem()
		switch keyType.Kind() {
		case reflect.String:
			keyVal.SetString(prop)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			i, err := strconv.ParseInt(prop, 10, 64)
			if err != nil || keyVal.OverflowInt(i) {
				return fmt.Errorf("map key %q is not a valid %v", prop, keyType)
			}
			keyVal.SetInt(i)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u, err := strconv.ParseUint(prop, 10, 64)
			if err != nil || keyVal.OverflowUint(u) {
				return fmt.Errorf("map key %q is not a valid %v", prop, keyType)
			}
			keyVal.SetUint(u)
		default:
			return fmt.Errorf("unsupported map key type: %v", keyType)
		}

		valueVal := reflect.New(valueType).Elem()
		if err := env.unmarshal(obj.Get(prop), valueVal); err != nil {
			return fmt.Errorf("map value for key %s: %w", prop, err)
		}
		rv.SetMapIndex(keyVal, valueVal)
	}
	return nil
}

// unmarshalStruct walks the own keys of a JavaScript Object and sets the matching struct fields.
// Keys without a matching field are ignored.
func (env *Env) unmarshalStruct(v Value, rv reflect.Value) error {
	if !v.IsObject() {
		return fmt.Errorf("expected object, got %s", v.Kind())
	}
	fields := cachedFields(rv.Type())
	obj := Object{v}
	for _, key := range obj.Keys() {
		f := fields.byName(key)
		if f == nil {
			continue
		}
		fv, err := fieldForSet(rv, f.index)
		if err != nil {
			return err
		}
		if err := env.unmarshal(obj.Get(key), fv); err != nil {
			return fmt.Errorf("struct field %s: %w", f.goName, err)
		}
	}
	return nil
}

// fieldForSet walks index, allocating nil embedded pointers.
func fieldForSet(rv reflect.Value, index []int) (reflect.Value, error) {
	for i, x := range index {
		if i > 0 && rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				if !rv.CanSet() {
					return reflect.Value{}, fmt.Errorf("cannot set embedded pointer to unexported struct %v", rv.Type().Elem())
				}
				rv.Set(reflect.New(rv.Type().Elem()))
			}
			rv = rv.Elem()
		}
		rv = rv.Field(x)
	}
	return rv, nil
}

// unmarshalInterface unmarshals JavaScript value to interface{}
func (env *Env) unmarshalInterface(v Value) (interface{}, error) {
	switch d := v.Dynamic().(type) {
	case Undefined, Null:
		return nil, nil
	case Boolean:
		return d.Bool(), nil
	case String:
		return d.String(), nil
	case Number:
		if d.IsInteger() {
			f := d.Float64()
			if f >= minInt64Float && f < maxInt64Float {
				return int64(f), nil
			}
		}
		return d.Float64(), nil
	case BigInt:
		return d.Int(), nil
	case Function:
		return d, nil
	case External:
		return d, nil
	case Array:
		n, err := env.arrayLength(d)
		if err != nil {
			return nil, err
		}
		slice := make([]interface{}, 0)
		for i := 0; i < n; i++ {
			val, err := env.unmarshalInterface(d.at(int64(i)))
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			slice = append(slice, val)
		}
		return slice, nil
	case Object:
		if b, ok := arrayBufferBytes(v); ok {
			return b, nil
		}
		result := make(map[string]interface{})
		for _, prop := range d.Keys() {
			val, err := env.unmarshalInterface(d.Get(prop))
			if err != nil {
				return nil, fmt.Errorf("map value for key %s: %w", prop, err)
			}
			result[prop] = val
		}
		return result, nil
	}
	return nil, fmt.Errorf("cannot unmarshal %s into Go interface{}", v.Kind())
}

// fieldInfo describes how a struct field crosses the boundary.
type fieldInfo struct {
	name      string
	goName    string
	index     []int
	omitEmpty bool
}

type structFields []fieldInfo

func (fs structFields) byName(name string) *fieldInfo {
	for i := range fs {
		if fs[i].name == name {
			return &fs[i]
		}
	}
	return nil
}

var fieldCache sync.Map // map[reflect.Type]structFields

func cachedFields(t reflect.Type) structFields {
	if f, ok := fieldCache.Load(t); ok {
		return f.(structFields)
	}
	f, _ := fieldCache.LoadOrStore(t, typeFields(t, nil))
	return f.(structFields)
}

func typeFields(t reflect.Type, parent []int) structFields {
	var fields structFields
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, opts, skip := parseFieldTag(sf)
		if skip {
			continue
		}
		index := append(append([]int(nil), parent...), i)

		if sf.Anonymous && !hasTag(sf) {
			ft := sf.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				fields = append(fields, typeFields(ft, index)...)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		fields = append(fields, fieldInfo{
			name:      name,
			goName:    sf.Name,
			index:     index,
			omitEmpty: strings.Contains(opts, "omitempty"),
		})
	}
	return fields
}

func hasTag(sf reflect.StructField) bool {
	return sf.Tag.Get("js") != "" || sf.Tag.Get("json") != ""
}

// parseFieldTag returns the property name and options of a struct field.
// The "js" tag takes precedence over the "json" tag.
func parseFieldTag(sf reflect.StructField) (name, opts string, skip bool) {
	tag := sf.Tag.Get("js")
	if tag == "" {
		tag = sf.Tag.Get("json")
	}
	if tag == "-" {
		return "", "", true
	}
	name, opts, _ = strings.Cut(tag, ",")
	if name == "" {
		name = sf.Name
	}
	return name, opts, false
}
