package jsbridge

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// ThreadsafeFunction lets any goroutine call a host function. Calls are queued on the loop
// of the function's Env and run there in order.
//
// Every handle, including clones, must be released exactly once. While at least one handle
// is alive, Env.Run keeps waiting for calls.
type ThreadsafeFunction struct {
	shared   *tsfnShared
	released atomic.Bool
}

type tsfnShared struct {
	env   *Env
	fn    Function
	name  string
	count atomic.Int64
}

// Threadsafe creates the first thread-safe handle of f. It must be called on the loop goroutine.
func (f Function) Threadsafe() (*ThreadsafeFunction, error) {
	env := f.v.env
	if env == nil || env.closed {
		return nil, ErrEnvClosed
	}
	if !f.v.IsFunction() {
		return nil, &KindError{Expected: KindFunction, Got: f.v.Kind()}
	}
	shared := &tsfnShared{env: env, fn: f, name: f.Name()}
	shared.count.Store(1)
	env.loop.Ref()
	return &ThreadsafeFunction{shared: shared}, nil
}

// Clone returns a new handle to the same function. It is safe to call from any goroutine.
func (t *ThreadsafeFunction) Clone() (*ThreadsafeFunction, error) {
	if t.released.Load() {
		return nil, ErrReleased
	}
	t.shared.count.Add(1)
	return &ThreadsafeFunction{shared: t.shared}, nil
}

// Release drops this handle. Releasing the last handle lets Env.Run return.
func (t *ThreadsafeFunction) Release() error {
	if !t.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	if t.shared.count.Add(-1) == 0 {
		t.shared.env.loop.Unref()
	}
	return nil
}

// Count returns the number of live handles.
func (t *ThreadsafeFunction) Count() int64 {
	return t.shared.count.Load()
}

// Call queues a call and returns without waiting for it. The arguments are converted on the
// loop goroutine; an exception thrown by the function is logged.
func (t *ThreadsafeFunction) Call(args ...interface{}) error {
	if t.released.Load() {
		return ErrReleased
	}
	s := t.shared
	return s.env.loop.ScheduleJob(func() {
		if _, err := s.fn.Call(s.env.Undefined(), args...); err != nil {
			s.env.logger.Warn("thread-safe call failed", zap.String("function", s.name), zap.Error(err))
		}
	})
}

// CallBlocking queues a call and waits for its result, converted as by Env.Unmarshal into
// an interface{}. It must not be called on the loop goroutine.
func (t *ThreadsafeFunction) CallBlocking(args ...interface{}) (interface{}, error) {
	var out interface{}
	err := t.callBlocking(args, func(v Value) error {
		return v.env.Unmarshal(v, &out)
	})
	return out, err
}

// CallBlockingInto queues a call, waits for it and unmarshals the result into dst.
// It must not be called on the loop goroutine.
func (t *ThreadsafeFunction) CallBlockingInto(dst interface{}, args ...interface{}) error {
	return t.callBlocking(args, func(v Value) error {
		return v.env.Unmarshal(v, dst)
	})
}

func (t *ThreadsafeFunction) callBlocking(args []interface{}, decode func(Value) error) error {
	if t.released.Load() {
		return ErrReleased
	}
	s := t.shared
	done := make(chan error, 1)
	err := s.env.loop.ScheduleJob(func() {
		v, err := s.fn.Call(s.env.Undefined(), args...)
		if err == nil {
			err = decode(v)
		}
		done <- err
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-s.env.loop.Done():
		return ErrLoopClosed
	}
}
