package jsbridge

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja"
)

// Arguments is the cursor over the arguments of one host invocation. Every binding step
// advances it; reading past the end yields a MissingArgument error.
// An Arguments must not be shared across goroutines or invocations.
type Arguments struct {
	env  *Env
	args []goja.Value
	this Value
	pos  int
	n    int

	// elems is read lazily instead of args when the cursor is scoped to an Array.
	elems *Array

	// undo holds the side effects of binding, reverted when the candidate is rejected.
	// Cursors scoped to an Array share the log of their parent.
	undo *[]func()

	// instance is the class instance a method is invoked on. It binds once, without advancing.
	instance     reflect.Value
	instanceUsed bool
}

func newArguments(env *Env, this goja.Value, args []goja.Value) *Arguments {
	return &Arguments{env: env, args: args, n: len(args), this: env.wrap(this), undo: new([]func())}
}

// NewArguments creates a cursor over args, for binding host values outside of a dispatch.
func (env *Env) NewArguments(this Value, args ...Value) *Arguments {
	refs := make([]goja.Value, len(args))
	for i, arg := range args {
		refs[i] = arg.Ref()
	}
	return newArguments(env, this.Ref(), refs)
}

// Env returns the environment of the invocation.
func (a *Arguments) Env() *Env { return a.env }

// This returns the receiver of the invocation.
func (a *Arguments) This() Value { return a.this }

// Len returns the number of arguments.
func (a *Arguments) Len() int { return a.n }

// Position returns the index of the next argument. After a failed binding it is the index
// of the argument that failed, except for a slice whose elements did not bind: the Array
// argument stays consumed and the error carries the element position.
func (a *Arguments) Position() int { return a.pos }

// Remaining returns the number of arguments not consumed yet.
func (a *Arguments) Remaining() int {
	if a.pos >= a.n {
		return 0
	}
	return a.n - a.pos
}

// Next consumes the next argument. Reading past the end does not advance the cursor.
func (a *Arguments) Next() (Value, error) {
	pos := a.pos
	if pos >= a.n {
		return a.env.Undefined(), missingArgument(pos)
	}
	a.pos++
	if a.elems != nil {
		return a.elems.at(int64(pos)), nil
	}
	return a.env.wrap(a.args[pos]), nil
}

// sub returns a cursor over the first n elements of arr, sharing the receiver.
// Elements are read when they are consumed.
func (a *Arguments) sub(arr Array, n int) *Arguments {
	return &Arguments{env: a.env, elems: &arr, n: n, this: a.this, undo: a.undo}
}

// onReject registers fn to revert a binding side effect if the candidate is not invoked.
func (a *Arguments) onReject(fn func()) {
	if a.undo != nil {
		*a.undo = append(*a.undo, fn)
	}
}

// reject reverts the binding side effects, most recent first.
func (a *Arguments) reject() {
	if a.undo == nil {
		return
	}
	log := *a.undo
	*a.undo = nil
	for i := len(log) - 1; i >= 0; i-- {
		log[i]()
	}
}

// FromArguments is implemented by types that bind themselves from the argument cursor.
// Implementations consume as many arguments as they need.
type FromArguments interface {
	BindArguments(a *Arguments) error
}

// This is the receiver of the invocation. Binding it does not consume an argument.
type This struct {
	Value
}

var (
	typeEnvPtr        = reflect.TypeOf((*Env)(nil))
	typeThis          = reflect.TypeOf(This{})
	typeArgumentsPtr  = reflect.TypeOf((*Arguments)(nil))
	typeFromArguments = reflect.TypeOf((*FromArguments)(nil)).Elem()
)

// Bind binds the next argument(s) of the cursor to a T:
//
//   - *Env, This and *Arguments bind without consuming an argument
//   - types implementing FromArguments bind themselves (Optional, Tuple2, Tuple3, Box, Rc, Arc)
//   - Value consumes any argument, typed handles check the argument kind
//   - slices other than []byte consume one Array and bind its elements through a fresh cursor
//   - bool, string and numeric types require the matching kind and fit the Go type
//   - pointers to registered classes unwrap the instance
//   - everything else is unmarshaled from one argument
func Bind[T any](a *Arguments) (T, error) {
	var out T
	err := a.bind(reflect.ValueOf(&out).Elem())
	return out, err
}

// BindValue binds a single host value to a T, as if it were the only argument.
func BindValue[T any](v Value) (T, error) {
	return Bind[T](v.env.NewArguments(v.env.Undefined(), v))
}

func (a *Arguments) bind(rv reflect.Value) error {
	t := rv.Type()
	switch {
	case t == typeEnvPtr:
		rv.Set(reflect.ValueOf(a.env))
		return nil
	case t == typeThis:
		rv.Set(reflect.ValueOf(This{a.this}))
		return nil
	case t == typeArgumentsPtr:
		rv.Set(reflect.ValueOf(a))
		return nil
	case a.instance.IsValid() && !a.instanceUsed && t == a.instance.Type():
		rv.Set(a.instance)
		a.instanceUsed = true
		return nil
	case t.Kind() == reflect.Ptr && t.Implements(typeFromArguments):
		p := reflect.New(t.Elem())
		if err := p.Interface().(FromArguments).BindArguments(a); err != nil {
			return err
		}
		rv.Set(p)
		return nil
	case reflect.PointerTo(t).Implements(typeFromArguments):
		return rv.Addr().Interface().(FromArguments).BindArguments(a)
	}

	pos := a.pos
	v, err := a.Next()
	if err != nil {
		return err
	}

	if t.Kind() == reflect.Slice && t != typeBytes && !reflect.PointerTo(t).Implements(typeUnmarshaler) {
		return a.bindSlice(rv, v, pos)
	}
	if err := a.bindValue(rv, v, pos); err != nil {
		a.pos = pos
		return err
	}
	return nil
}

// bindSlice binds the elements of one Array argument through a fresh cursor. Element positions
// in errors are local to the array. The slice grows as elements bind, so a sparse array claiming
// a large length fails on its first bad element.
func (a *Arguments) bindSlice(rv reflect.Value, v Value, pos int) error {
	arr, ok := v.Dynamic().(Array)
	if !ok {
		a.pos = pos
		return wrongType(fmt.Sprintf("array of %v", rv.Type().Elem()), v.Kind(), pos)
	}
	n, err := a.env.arrayLength(arr)
	if err != nil {
		return deserializationError(pos, err)
	}
	sub := a.sub(arr, n)
	slice := reflect.MakeSlice(rv.Type(), 0, 0)
	for i := 0; i < n; i++ {
		elem := reflect.New(rv.Type().Elem()).Elem()
		if err := sub.bind(elem); err != nil {
			return err
		}
		slice = reflect.Append(slice, elem)
	}
	rv.Set(slice)
	return nil
}

// bindValue binds one consumed argument.
func (a *Arguments) bindValue(rv reflect.Value, v Value, pos int) error {
	t := rv.Type()

	switch {
	case t == typeValue:
		rv.Set(reflect.ValueOf(v))
		return nil
	case t == typeDynamic:
		rv.Set(reflect.ValueOf(v.Dynamic()))
		return nil
	case t.Kind() != reflect.Interface && t.Implements(typeDynamic):
		d, err := downcastTo(v, t)
		if err != nil {
			return wrongType(reflect.Zero(t).Interface().(Dynamic).Kind().String(), v.Kind(), pos)
		}
		rv.Set(d)
		return nil
	}

	if t.Kind() == reflect.Ptr {
		if table, ok := a.env.classes[t]; ok {
			inst, err := table.unwrap(a.env, v)
			if err != nil {
				bindErr := wrongType(table.name, v.Kind(), pos)
				bindErr.Err = err
				return bindErr
			}
			rv.Set(inst)
			return nil
		}
	}

	if !reflect.PointerTo(t).Implements(typeUnmarshaler) && lookupVariant(t) == nil {
		if expected, ok := primitiveKind(t.Kind()); ok && v.Kind() != expected {
			if !(expected == KindNumber && v.Kind() == KindBigInt && isInteger(t.Kind())) {
				return wrongType(t.String(), v.Kind(), pos)
			}
		}
	}

	if err := a.env.unmarshal(v, rv); err != nil {
		return deserializationError(pos, err)
	}
	return nil
}

func primitiveKind(k reflect.Kind) (Kind, bool) {
	switch k {
	case reflect.Bool:
		return KindBoolean, true
	case reflect.String:
		return KindString, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return KindNumber, true
	}
	return 0, false
}

func isInteger(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Uintptr
}

// Optional binds a T if an argument is left. Only a missing argument makes it absent:
// a present argument of the wrong type is still an error.
type Optional[T any] struct {
	Val   T
	Valid bool
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Val: v, Valid: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Val, o.Valid
}

// OrElse returns the value, or def when absent.
func (o Optional[T]) OrElse(def T) T {
	if o.Valid {
		return o.Val
	}
	return def
}

func (o *Optional[T]) BindArguments(a *Arguments) error {
	v, err := Bind[T](a)
	if err != nil {
		if IsMissing(err) {
			*o = Optional[T]{}
			return nil
		}
		return err
	}
	*o = Optional[T]{Val: v, Valid: true}
	return nil
}

// MarshalJS converts an absent Optional to undefined.
func (o Optional[T]) MarshalJS(env *Env) (Value, error) {
	if !o.Valid {
		return env.Undefined(), nil
	}
	return env.ToValue(o.Val)
}

// UnmarshalJS treats null and undefined as absent.
func (o *Optional[T]) UnmarshalJS(env *Env, v Value) error {
	if v.IsNullish() {
		*o = Optional[T]{}
		return nil
	}
	var val T
	if err := env.unmarshal(v, reflect.ValueOf(&val).Elem()); err != nil {
		return err
	}
	*o = Optional[T]{Val: val, Valid: true}
	return nil
}

// Tuple2 binds two consecutive arguments, left to right. It crosses the boundary as a two-element Array.
type Tuple2[A, B any] struct {
	First  A
	Second B
}

func (t *Tuple2[A, B]) BindArguments(a *Arguments) error {
	var err error
	if t.First, err = Bind[A](a); err != nil {
		return err
	}
	t.Second, err = Bind[B](a)
	return err
}

func (t Tuple2[A, B]) MarshalJS(env *Env) (Value, error) {
	return env.tupleValue(t.First, t.Second)
}

func (t *Tuple2[A, B]) UnmarshalJS(env *Env, v Value) error {
	return env.unmarshalTuple(v, &t.First, &t.Second)
}

// Tuple3 binds three consecutive arguments, left to right. It crosses the boundary as a three-element Array.
type Tuple3[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

func (t *Tuple3[A, B, C]) BindArguments(a *Arguments) error {
	var err error
	if t.First, err = Bind[A](a); err != nil {
		return err
	}
	if t.Second, err = Bind[B](a); err != nil {
		return err
	}
	t.Third, err = Bind[C](a)
	return err
}

func (t Tuple3[A, B, C]) MarshalJS(env *Env) (Value, error) {
	return env.tupleValue(t.First, t.Second, t.Third)
}

func (t *Tuple3[A, B, C]) UnmarshalJS(env *Env, v Value) error {
	return env.unmarshalTuple(v, &t.First, &t.Second, &t.Third)
}

func (env *Env) tupleValue(items ...interface{}) (Value, error) {
	refs, err := env.toRefs(items)
	if err != nil {
		return env.Undefined(), err
	}
	elems := make([]interface{}, len(refs))
	for i, ref := range refs {
		elems[i] = ref
	}
	return env.wrap(env.rt.NewArray(elems...)), nil
}

func (env *Env) unmarshalTuple(v Value, dst ...interface{}) error {
	arr, ok := v.Dynamic().(Array)
	if !ok {
		return fmt.Errorf("expected array, got %s", v.Kind())
	}
	if n := arr.Len(); n != int64(len(dst)) {
		return fmt.Errorf("expected array of length %d, got %d", len(dst), n)
	}
	for i, d := range dst {
		if err := env.unmarshal(arr.at(int64(i)), reflect.ValueOf(d).Elem()); err != nil {
			return fmt.Errorf("tuple element %d: %w", i, err)
		}
	}
	return nil
}
