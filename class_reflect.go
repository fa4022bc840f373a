package jsbridge

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// =============================================================================
// REFLECTION-BASED AUTO BINDING
// =============================================================================

// ReflectOptions configures BindClass.
type ReflectOptions struct {
	// MethodPrefix filters methods by prefix (empty = all methods)
	MethodPrefix string

	// IgnoredMethods lists Go method names to skip
	IgnoredMethods []string

	// IgnoredFields lists Go field names to skip
	IgnoredFields []string

	// NameMapper maps Go method names to host names (default: unchanged)
	NameMapper func(string) string
}

// ReflectOption configures ReflectOptions.
type ReflectOption func(*ReflectOptions)

// WithMethodPrefix binds only the methods whose name starts with prefix.
func WithMethodPrefix(prefix string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.MethodPrefix = prefix
	}
}

// WithIgnoredMethods skips the named methods.
func WithIgnoredMethods(methods ...string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.IgnoredMethods = append(opts.IgnoredMethods, methods...)
	}
}

// WithIgnoredFields skips the named fields.
func WithIgnoredFields(fields ...string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.IgnoredFields = append(opts.IgnoredFields, fields...)
	}
}

// WithNameMapper sets the mapping from Go method names to host method names.
func WithNameMapper(fn func(string) string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.NameMapper = fn
	}
}

// LowerFirst is a NameMapper turning Go method names into camel case: "Add" -> "add".
func LowerFirst(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// BindClass builds a class for the struct type T using reflection.
//
//   - exported methods of *T become instance methods
//   - exported fields become accessors named after their js or json tag
//   - the constructor takes either one object of named fields, or the fields in declaration order
//
// Example usage:
//
//	class, err := jsbridge.BindClass[Point](env, "Point", jsbridge.WithNameMapper(jsbridge.LowerFirst))
//	if err != nil { return err }
//	env.Globals().Set("Point", class.Constructor())
func BindClass[T any](env *Env, name string, options ...ReflectOption) (*Class[T], error) {
	builder, err := BindClassBuilder[T](name, options...)
	if err != nil {
		return nil, err
	}
	return builder.Build(env)
}

// BindClassBuilder creates the ClassBuilder BindClass builds, for further customization.
func BindClassBuilder[T any](name string, options ...ReflectOption) (*ClassBuilder[T], error) {
	opts := &ReflectOptions{}
	for _, option := range options {
		option(opts)
	}

	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %v must be a struct type", typ)
	}
	if name == "" {
		name = typ.Name()
	}
	if name == "" {
		return nil, errors.New("cannot determine class name from anonymous type")
	}

	builder := NewClass[T](name)
	builder.Constructor(&reflectConstructor{typ: typ})
	addReflectionProperties(builder, typ, opts)
	addReflectionMethods(builder, typ, opts)
	return builder, nil
}

// reflectConstructor initializes a new *T from the constructor arguments: a single plain
// object sets fields by name, anything else sets exported fields in order.
type reflectConstructor struct {
	typ reflect.Type
}

func (c *reflectConstructor) Prepare(args *Arguments) (Invocation, error) {
	inst := reflect.New(c.typ)
	if args.Len() == 1 && args.args[0] != nil && kindOf(args.args[0]) == KindObject {
		v, _ := args.Next()
		if err := args.env.unmarshalStruct(v, inst.Elem()); err != nil {
			return nil, deserializationError(0, err)
		}
	} else {
		for _, f := range cachedFields(c.typ) {
			if args.Remaining() == 0 {
				break
			}
			fv, err := fieldForSet(inst.Elem(), f.index)
			if err != nil {
				return nil, deserializationError(args.Position(), err)
			}
			if err := args.bind(fv); err != nil {
				return nil, err
			}
		}
	}
	return func() (interface{}, error) { return inst.Interface(), nil }, nil
}

// fieldAccessor reads or writes one field of the receiving instance.
type fieldAccessor struct {
	name  string
	index []int
	set   bool
}

func (f *fieldAccessor) Prepare(args *Arguments) (Invocation, error) {
	if !args.instance.IsValid() {
		return nil, &DispatchError{Reason: WrongThis, Name: f.name}
	}
	inst := args.instance.Elem()
	if !f.set {
		return func() (interface{}, error) {
			fv, ok := fieldByIndex(inst, f.index)
			if !ok {
				return nil, nil
			}
			return fv.Interface(), nil
		}, nil
	}

	fv, err := fieldForSet(inst, f.index)
	if err != nil {
		return nil, err
	}
	nv := reflect.New(fv.Type()).Elem()
	if err := args.bind(nv); err != nil {
		return nil, err
	}
	return func() (interface{}, error) {
		fv.Set(nv)
		return nil, nil
	}, nil
}

// addReflectionProperties adds an accessor per exported field.
func addReflectionProperties[T any](builder *ClassBuilder[T], typ reflect.Type, opts *ReflectOptions) {
	for _, f := range cachedFields(typ) {
		if slices.Contains(opts.IgnoredFields, f.goName) {
			continue
		}
		builder.accessors = append(builder.accessors, AccessorEntry{
			Name:   f.name,
			Getter: &fieldAccessor{name: builder.name + "." + f.name, index: f.index},
			Setter: &fieldAccessor{name: builder.name + "." + f.name, index: f.index, set: true},
		})
	}
}

// addReflectionMethods adds the exported methods of *T. The receiver binds the instance.
func addReflectionMethods[T any](builder *ClassBuilder[T], typ reflect.Type, opts *ReflectOptions) {
	ptrTyp := reflect.PointerTo(typ)
	for i := 0; i < ptrTyp.NumMethod(); i++ {
		method := ptrTyp.Method(i)
		if opts.MethodPrefix != "" && !strings.HasPrefix(method.Name, opts.MethodPrefix) {
			continue
		}
		if slices.Contains(opts.IgnoredMethods, method.Name) || isSpecialMethod(method.Name) {
			continue
		}
		name := method.Name
		if opts.NameMapper != nil {
			name = opts.NameMapper(name)
		}
		builder.Method(name, method.Func.Interface())
	}
}

// isSpecialMethod reports methods of well-known interfaces that are not bound.
func isSpecialMethod(name string) bool {
	switch name {
	case "String", "Error", "GoString", "Format", "Finalize", "MarshalJS", "UnmarshalJS", "BindArguments":
		return true
	}
	return false
}
