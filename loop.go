package jsbridge

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrLoopClosed is returned when a job is scheduled on a stopped loop.
var ErrLoopClosed = errors.New("jsbridge: loop is closed")

// Job is a unit of work executed on the loop goroutine.
type Job func()

// Loop serializes work onto the goroutine that owns an Env.
// Any goroutine may schedule jobs; only the goroutine calling Run executes them.
// A positive reference count keeps Run alive even when the queue is empty.
type Loop struct {
	jobs     chan Job
	done     chan struct{}
	stopOnce sync.Once
	refs     atomic.Int64

	cleanupMu sync.Mutex
	cleanups  []func()
}

// NewLoop creates a loop whose queue holds up to size pending jobs.
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 1
	}
	return &Loop{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

// ScheduleJob enqueues a job. It blocks while the queue is full.
func (l *Loop) ScheduleJob(j Job) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}
	select {
	case l.jobs <- j:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// IsLoopPending reports whether jobs are waiting to run.
func (l *Loop) IsLoopPending() bool {
	return len(l.jobs) > 0
}

// Ref increments the keep-alive count.
func (l *Loop) Ref() {
	l.refs.Add(1)
}

// Unref decrements the keep-alive count and wakes Run when it reaches zero.
func (l *Loop) Unref() {
	if l.refs.Add(-1) <= 0 {
		select {
		case l.jobs <- nil:
		default:
			// queue is full, Run will wake up anyway
		}
	}
}

// Refs returns the keep-alive count.
func (l *Loop) Refs() int64 {
	return l.refs.Load()
}

// Done is closed when the loop is stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// addCleanup queues fn to run on the loop goroutine. It is called by the runtime cleanup goroutine.
func (l *Loop) addCleanup(fn func()) {
	l.cleanupMu.Lock()
	l.cleanups = append(l.cleanups, fn)
	l.cleanupMu.Unlock()
	select {
	case l.jobs <- nil:
	default:
	}
}

func (l *Loop) runCleanups() {
	l.cleanupMu.Lock()
	queue := l.cleanups
	l.cleanups = nil
	l.cleanupMu.Unlock()
	for _, fn := range queue {
		fn()
	}
}

// Run executes jobs until the loop holds no reference and no pending job, or until it is stopped.
func (l *Loop) Run() error {
	l.runCleanups()
	for {
		if l.refs.Load() <= 0 && len(l.jobs) == 0 {
			return nil
		}
		select {
		case job := <-l.jobs:
			if job != nil {
				job()
			}
			l.runCleanups()
		case <-l.done:
			return ErrLoopClosed
		}
	}
}

// RunPending executes the jobs already queued without waiting for new ones.
func (l *Loop) RunPending() {
	for {
		select {
		case job := <-l.jobs:
			if job != nil {
				job()
			}
			l.runCleanups()
		default:
			return
		}
	}
}

// Stop stops the loop. Pending jobs are dropped.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	return nil
}
