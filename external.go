package jsbridge

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Ownership is the mode a Go payload crosses the boundary with.
type Ownership int

const (
	// Exclusive payloads are moved: exactly one owner at a time.
	Exclusive Ownership = iota + 1
	// SharedLocal payloads are reference counted without synchronization, on the loop goroutine only.
	SharedLocal
	// SharedAtomic payloads are reference counted atomically and may be cloned from any goroutine.
	SharedAtomic
)

func (o Ownership) String() string {
	switch o {
	case Exclusive:
		return "Box"
	case SharedLocal:
		return "Rc"
	case SharedAtomic:
		return "Arc"
	}
	return fmt.Sprintf("Ownership(%d)", int(o))
}

// Finalizer is implemented by payloads and class instances that release resources
// when their last owner goes away.
type Finalizer interface {
	Finalize()
}

func finalize(v interface{}) {
	if f, ok := v.(Finalizer); ok {
		f.Finalize()
	}
}

// externalRecord is the native side of an External value. Its fields are unexported so the
// host sees an opaque object.
type externalRecord struct {
	typ  reflect.Type
	mode Ownership

	mu        sync.Mutex
	exclusive interface{}           // *T until taken
	shared    interface{ release() } // the record's own Rc or Arc clone

	released atomic.Bool
}

// take moves the exclusive payload out of the record. It returns nil once taken.
func (rec *externalRecord) take() interface{} {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	p := rec.exclusive
	rec.exclusive = nil
	return p
}

// restore puts back a payload taken by a binding whose candidate was rejected.
// A record released in the meantime finalizes it instead.
func (rec *externalRecord) restore(p interface{}) {
	rec.mu.Lock()
	if !rec.released.Load() && rec.exclusive == nil {
		rec.exclusive = p
		p = nil
	}
	rec.mu.Unlock()
	if p != nil {
		finalize(p)
	}
}

// release drops what the record still owns. Only the first call has an effect.
func (rec *externalRecord) release() {
	if !rec.released.CompareAndSwap(false, true) {
		return
	}
	if p := rec.take(); p != nil {
		finalize(p)
	}
	if rec.shared != nil {
		rec.shared.release()
	}
}

// newExternal creates the host External for rec and registers the finalizer releasing it.
func (env *Env) newExternal(rec *externalRecord) Value {
	obj := env.rt.ToValue(rec).(*goja.Object)
	log := env.logger
	env.addFinalizer(obj, func() {
		log.Debug("releasing external", zap.Stringer("type", rec.typ), zap.Stringer("mode", rec.mode))
		rec.release()
	})
	return env.wrap(obj)
}

// externalOf checks that v is an External holding a want payload with the given ownership mode.
func externalOf(v Value, want reflect.Type, mode Ownership) (*externalRecord, error) {
	ext, err := Downcast[External](v)
	if err != nil {
		return nil, err
	}
	rec := ext.record()
	if rec.typ != want || rec.mode != mode {
		err := &ExternalTypeError{Want: want, WantMode: mode, Got: rec.typ, GotMode: rec.mode}
		if v.env != nil && v.env.config.PanicOnExternalMismatch {
			panic(err)
		}
		return nil, err
	}
	return rec, nil
}

// bindExternal binds the next argument to an External holding want.
func bindExternal(a *Arguments, want reflect.Type, mode Ownership) (*externalRecord, error) {
	pos := a.pos
	v, err := a.Next()
	if err != nil {
		return nil, err
	}
	rec, err := externalOf(v, want, mode)
	if err != nil {
		a.pos = pos
		var kindErr *KindError
		if errors.As(err, &kindErr) {
			return nil, wrongType(mode.String()+"<"+want.String()+">", kindErr.Got, pos)
		}
		bindErr := wrongType(mode.String()+"<"+want.String()+">", KindExternal, pos)
		bindErr.Err = err
		return nil, bindErr
	}
	return rec, nil
}

// Box holds an exclusively owned payload. Converting a Box to a host value moves the payload
// into the External and leaves the Box empty, so one payload is never owned by two host values.
type Box[T any] struct {
	payload *T
}

// NewBox returns a Box owning v.
func NewBox[T any](v *T) *Box[T] {
	return &Box[T]{payload: v}
}

// Get returns the payload, or false once it has been moved out.
func (b *Box[T]) Get() (*T, bool) {
	return b.payload, b.payload != nil
}

// Take moves the payload out of the box.
func (b *Box[T]) Take() (*T, bool) {
	p := b.payload
	b.payload = nil
	return p, p != nil
}

// MarshalJS moves the payload into a new External.
func (b *Box[T]) MarshalJS(env *Env) (Value, error) {
	p, ok := b.Take()
	if !ok {
		return env.Undefined(), ErrAlreadyTaken
	}
	return env.newExternal(&externalRecord{
		typ:       reflect.TypeFor[T](),
		mode:      Exclusive,
		exclusive: p,
	}), nil
}

// BindArguments takes the payload out of the next argument, which must be an External Box of T.
// If the candidate being bound is rejected, the payload goes back into the External.
func (b *Box[T]) BindArguments(a *Arguments) error {
	pos := a.pos
	rec, err := bindExternal(a, reflect.TypeFor[T](), Exclusive)
	if err != nil {
		return err
	}
	p := rec.take()
	if p == nil {
		a.pos = pos
		return deserializationError(pos, ErrAlreadyTaken)
	}
	b.payload = p.(*T)
	a.onReject(func() {
		b.payload = nil
		rec.restore(p)
	})
	return nil
}

// TakeExclusive moves the payload out of an External created from a Box of T.
// It returns false when the payload has already been taken.
func TakeExclusive[T any](v Value) (*T, bool, error) {
	rec, err := externalOf(v, reflect.TypeFor[T](), Exclusive)
	if err != nil {
		return nil, false, err
	}
	p := rec.take()
	if p == nil {
		return nil, false, nil
	}
	return p.(*T), true, nil
}

// Rc is a reference-counted handle to a shared payload. The count is not synchronized:
// every handle of one payload must be used on the loop goroutine.
type Rc[T any] struct {
	cell     *rcCell[T]
	released bool
}

type rcCell[T any] struct {
	value *T
	count int
}

// NewRc returns the first handle to v.
func NewRc[T any](v *T) *Rc[T] {
	return &Rc[T]{cell: &rcCell[T]{value: v, count: 1}}
}

// Get returns the payload, or nil if this handle was released.
func (r *Rc[T]) Get() *T {
	if r.released {
		return nil
	}
	return r.cell.value
}

// Count returns the number of live handles.
func (r *Rc[T]) Count() int {
	return r.cell.count
}

// Clone returns a new handle to the payload. Cloning a released handle panics.
func (r *Rc[T]) Clone() *Rc[T] {
	if r.released {
		panic(ErrReleased)
	}
	r.cell.count++
	return &Rc[T]{cell: r.cell}
}

// Release drops this handle. The payload is finalized when the last handle is released.
func (r *Rc[T]) Release() error {
	if r.released {
		return ErrReleased
	}
	r.released = true
	r.cell.count--
	if r.cell.count == 0 {
		finalize(r.cell.value)
		r.cell.value = nil
	}
	return nil
}

func (r *Rc[T]) release() { _ = r.Release() }

// MarshalJS creates an External owning a clone of the handle.
func (r *Rc[T]) MarshalJS(env *Env) (Value, error) {
	if r.released {
		return env.Undefined(), ErrReleased
	}
	return env.newExternal(&externalRecord{
		typ:    reflect.TypeFor[T](),
		mode:   SharedLocal,
		shared: r.Clone(),
	}), nil
}

// BindArguments clones the handle held by the next argument, which must be an External Rc of T.
// The clone is released if the candidate being bound is rejected.
func (r *Rc[T]) BindArguments(a *Arguments) error {
	rec, err := bindExternal(a, reflect.TypeFor[T](), SharedLocal)
	if err != nil {
		return err
	}
	*r = *rec.shared.(*Rc[T]).Clone()
	a.onReject(r.release)
	return nil
}

// CloneShared returns a new handle to the payload of an External created from an Rc of T.
func CloneShared[T any](v Value) (*Rc[T], error) {
	rec, err := externalOf(v, reflect.TypeFor[T](), SharedLocal)
	if err != nil {
		return nil, err
	}
	return rec.shared.(*Rc[T]).Clone(), nil
}

// Arc is like Rc with an atomic count: handles may be cloned and released on any goroutine.
type Arc[T any] struct {
	cell     *arcCell[T]
	released atomic.Bool
}

type arcCell[T any] struct {
	value *T
	count atomic.Int64
}

// NewArc returns the first handle to v.
func NewArc[T any](v *T) *Arc[T] {
	cell := &arcCell[T]{value: v}
	cell.count.Store(1)
	return &Arc[T]{cell: cell}
}

// Get returns the payload, or nil if this handle was released.
func (r *Arc[T]) Get() *T {
	if r.released.Load() {
		return nil
	}
	return r.cell.value
}

// Count returns the number of live handles.
func (r *Arc[T]) Count() int64 {
	return r.cell.count.Load()
}

// Clone returns a new handle to the payload. Cloning a released handle panics.
func (r *Arc[T]) Clone() *Arc[T] {
	if r.released.Load() {
		panic(ErrReleased)
	}
	r.cell.count.Add(1)
	return &Arc[T]{cell: r.cell}
}

// Release drops this handle. The payload is finalized when the last handle is released.
func (r *Arc[T]) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	if r.cell.count.Add(-1) == 0 {
		finalize(r.cell.value)
	}
	return nil
}

func (r *Arc[T]) release() { _ = r.Release() }

// MarshalJS creates an External owning a clone of the handle.
func (r *Arc[T]) MarshalJS(env *Env) (Value, error) {
	if r.released.Load() {
		return env.Undefined(), ErrReleased
	}
	return env.newExternal(&externalRecord{
		typ:    reflect.TypeFor[T](),
		mode:   SharedAtomic,
		shared: r.Clone(),
	}), nil
}

// BindArguments clones the handle held by the next argument, which must be an External Arc of T.
func (r *Arc[T]) BindArguments(a *Arguments) error {
	rec, err := bindExternal(a, reflect.TypeFor[T](), SharedAtomic)
	if err != nil {
		return err
	}
	clone := rec.shared.(*Arc[T]).Clone()
	r.cell = clone.cell
	r.released.Store(false)
	a.onReject(r.release)
	return nil
}

// CloneAtomic returns a new handle to the payload of an External created from an Arc of T.
func CloneAtomic[T any](v Value) (*Arc[T], error) {
	rec, err := externalOf(v, reflect.TypeFor[T](), SharedAtomic)
	if err != nil {
		return nil, err
	}
	return rec.shared.(*Arc[T]).Clone(), nil
}
