package jsbridge

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

type variantShape int

const (
	unitShape variantShape = iota
	newtypeShape
	tupleShape
	structShape
)

func (s variantShape) String() string {
	switch s {
	case unitShape:
		return "unit variant"
	case newtypeShape:
		return "newtype variant"
	case tupleShape:
		return "tuple variant"
	}
	return "struct variant"
}

// Variant describes one variant of an enum registered with RegisterEnum.
type Variant struct {
	name  string
	typ   reflect.Type
	shape variantShape
}

// UnitVariant declares a variant without payload. It crosses the boundary as its name.
func UnitVariant[V any](name string) Variant {
	return Variant{name: name, typ: reflect.TypeFor[V](), shape: unitShape}
}

// NewtypeVariant declares a variant carrying one value. It crosses the boundary as {name: payload}.
// The payload is the single field of V when V is a struct with one exported field, V itself otherwise.
func NewtypeVariant[V any](name string) Variant {
	return Variant{name: name, typ: reflect.TypeFor[V](), shape: newtypeShape}
}

// TupleVariant declares a variant whose exported struct fields form a tuple.
// It crosses the boundary as {name: [field0, field1, ...]}.
func TupleVariant[V any](name string) Variant {
	return Variant{name: name, typ: reflect.TypeFor[V](), shape: tupleShape}
}

// StructVariant declares a variant whose struct fields are named. It crosses the boundary as {name: {...}}.
func StructVariant[V any](name string) Variant {
	return Variant{name: name, typ: reflect.TypeFor[V](), shape: structShape}
}

type enumInfo struct {
	iface  reflect.Type
	byName map[string]*variantInfo
}

type variantInfo struct {
	Variant
	enum  *enumInfo
	ptr   bool  // only *V implements the enum interface
	index []int // payload fields for newtype and tuple variants
}

var enumRegistry = struct {
	sync.RWMutex
	enums    map[reflect.Type]*enumInfo
	variants map[reflect.Type]*variantInfo
}{
	enums:    make(map[reflect.Type]*enumInfo),
	variants: make(map[reflect.Type]*variantInfo),
}

// RegisterEnum registers the variants of the enum modeled by the interface type E.
// Values of the variant types are then marshaled with the single-key convention,
// and Go values of type E are unmarshaled by variant name:
//
//	type Color interface{ isColor() }
//	type Red struct{}
//	type Named string
//	type RGB struct{ R, G, B uint8 }
//
//	jsbridge.RegisterEnum[Color](
//		jsbridge.UnitVariant[Red]("Red"),        // "Red"
//		jsbridge.NewtypeVariant[Named]("Named"), // {"Named": "red"}
//		jsbridge.TupleVariant[RGB]("RGB"),       // {"RGB": [255, 0, 0]}
//	)
//
// Registrations are process-wide and are expected to happen during start-up.
func RegisterEnum[E any](variants ...Variant) error {
	iface := reflect.TypeFor[E]()
	if iface.Kind() != reflect.Interface {
		return fmt.Errorf("jsbridge: enum type %v must be an interface", iface)
	}
	if len(variants) == 0 {
		return fmt.Errorf("jsbridge: enum %v has no variants", iface)
	}

	enum := &enumInfo{iface: iface, byName: make(map[string]*variantInfo, len(variants))}
	infos := make([]*variantInfo, 0, len(variants))
	for _, v := range variants {
		info, err := newVariantInfo(enum, v)
		if err != nil {
			return err
		}
		if _, dup := enum.byName[v.name]; dup {
			return fmt.Errorf("jsbridge: enum %v declares variant %q twice", iface, v.name)
		}
		enum.byName[v.name] = info
		infos = append(infos, info)
	}

	enumRegistry.Lock()
	defer enumRegistry.Unlock()
	if _, ok := enumRegistry.enums[iface]; ok {
		return fmt.Errorf("jsbridge: enum %v is already registered", iface)
	}
	for _, info := range infos {
		if prev, ok := enumRegistry.variants[info.typ]; ok {
			return fmt.Errorf("jsbridge: %v is already a variant of %v", info.typ, prev.enum.iface)
		}
	}
	enumRegistry.enums[iface] = enum
	for _, info := range infos {
		enumRegistry.variants[info.typ] = info
	}
	return nil
}

// MustRegisterEnum is like RegisterEnum but panics on error.
func MustRegisterEnum[E any](variants ...Variant) {
	if err := RegisterEnum[E](variants...); err != nil {
		panic(err)
	}
}

func newVariantInfo(enum *enumInfo, v Variant) (*variantInfo, error) {
	if v.name == "" {
		return nil, errors.New("jsbridge: variant name must not be empty")
	}
	info := &variantInfo{Variant: v, enum: enum}
	switch {
	case v.typ.Implements(enum.iface):
	case reflect.PointerTo(v.typ).Implements(enum.iface):
		info.ptr = true
	default:
		return nil, fmt.Errorf("jsbridge: variant %v does not implement %v", v.typ, enum.iface)
	}

	switch v.shape {
	case newtypeShape:
		if v.typ.Kind() == reflect.Struct {
			if idx := exportedFields(v.typ); len(idx) == 1 {
				info.index = idx
			}
		}
	case tupleShape:
		if v.typ.Kind() != reflect.Struct {
			return nil, fmt.Errorf("jsbridge: tuple variant %v must be a struct", v.typ)
		}
		info.index = exportedFields(v.typ)
	case structShape:
		if v.typ.Kind() != reflect.Struct {
			return nil, fmt.Errorf("jsbridge: struct variant %v must be a struct", v.typ)
		}
	}
	return info, nil
}

func exportedFields(t reflect.Type) []int {
	var idx []int
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			idx = append(idx, i)
		}
	}
	return idx
}

func lookupEnum(t reflect.Type) *enumInfo {
	enumRegistry.RLock()
	defer enumRegistry.RUnlock()
	return enumRegistry.enums[t]
}

func lookupVariant(t reflect.Type) *variantInfo {
	enumRegistry.RLock()
	defer enumRegistry.RUnlock()
	return enumRegistry.variants[t]
}

func (env *Env) marshalVariant(info *variantInfo, rv reflect.Value) (Value, error) {
	var payload Value
	var err error
	switch info.shape {
	case unitShape:
		return env.String(info.name).Value(), nil
	case newtypeShape:
		if info.index != nil {
			payload, err = env.marshal(rv.Field(info.index[0]))
		} else {
			payload, err = env.marshalPlain(rv)
		}
	case tupleShape:
		items := make([]interface{}, len(info.index))
		for i, x := range info.index {
			item, ferr := env.marshal(rv.Field(x))
			if ferr != nil {
				return env.Undefined(), fmt.Errorf("variant %s element %d: %w", info.name, i, ferr)
			}
			items[i] = item.ref
		}
		payload = env.wrap(env.rt.NewArray(items...))
	case structShape:
		payload, err = env.marshalStruct(rv)
	}
	if err != nil {
		return env.Undefined(), fmt.Errorf("variant %s: %w", info.name, err)
	}

	obj := env.rt.NewObject()
	if err := obj.Set(info.name, payload.ref); err != nil {
		return env.Undefined(), env.hostError(err)
	}
	return env.wrap(obj), nil
}

// unmarshalEnum selects the variant by name: a string names a unit variant, an object must
// have exactly one own key naming the variant, its value being the payload.
func (env *Env) unmarshalEnum(enum *enumInfo, v Value, rv reflect.Value) error {
	var name string
	var payload Value
	hasPayload := false

	switch d := v.Dynamic().(type) {
	case String:
		name = d.String()
	case Object:
		keys := d.Keys()
		if len(keys) != 1 {
			return fmt.Errorf("enum %v: object with %d properties, expected 1", enum.iface, len(keys))
		}
		name, payload, hasPayload = keys[0], d.Get(keys[0]), true
	case Null, Undefined:
		rv.Set(reflect.Zero(rv.Type()))
		return nil
	default:
		return fmt.Errorf("enum %v: cannot unmarshal %s", enum.iface, v.Kind())
	}

	info, ok := enum.byName[name]
	if !ok {
		return fmt.Errorf("enum %v: unknown variant %q", enum.iface, name)
	}

	nv := reflect.New(info.typ).Elem()
	switch info.shape {
	case unitShape:
		if hasPayload && !payload.IsNullish() {
			return fmt.Errorf("enum %v: unit variant %s does not take a payload", enum.iface, name)
		}
	case newtypeShape, tupleShape, structShape:
		if !hasPayload {
			return fmt.Errorf("enum %v: %s %s expects a payload", enum.iface, info.shape, name)
		}
		if err := env.unmarshalVariantPayload(info, payload, nv); err != nil {
			return fmt.Errorf("enum %v: variant %s: %w", enum.iface, name, err)
		}
	}

	if info.ptr {
		p := reflect.New(info.typ)
		p.Elem().Set(nv)
		nv = p
	}
	rv.Set(nv)
	return nil
}

func (env *Env) unmarshalVariantPayload(info *variantInfo, payload Value, nv reflect.Value) error {
	switch info.shape {
	case newtypeShape:
		if info.index != nil {
			return env.unmarshal(payload, nv.Field(info.index[0]))
		}
		return env.unmarshalPlain(payload, nv)
	case tupleShape:
		arr, err := Downcast[Array](payload)
		if err != nil {
			return err
		}
		if n := arr.Len(); n != int64(len(info.index)) {
			return fmt.Errorf("expected %d elements, got %d", len(info.index), n)
		}
		for i, x := range info.index {
			if err := env.unmarshal(arr.at(int64(i)), nv.Field(x)); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	}
	return env.unmarshalStruct(payload, nv)
}

// unmarshalVariant decodes the envelope of one specific variant of its enum.
func (env *Env) unmarshalVariant(info *variantInfo, v Value, rv reflect.Value) error {
	decoded := reflect.New(info.enum.iface).Elem()
	if err := env.unmarshalEnum(info.enum, v, decoded); err != nil {
		return err
	}
	if decoded.IsNil() {
		rv.Set(reflect.Zero(rv.Type()))
		return nil
	}
	got := decoded.Elem()
	if info.ptr {
		got = got.Elem()
	}
	if got.Type() != info.typ {
		return fmt.Errorf("enum %v: expected variant %s, got %v", info.enum.iface, info.name, got.Type())
	}
	rv.Set(got)
	return nil
}
