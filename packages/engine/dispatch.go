package engine

import "sync/atomic"

// Executor runs completion callbacks. The default executor runs each callback
// on its own goroutine; callers needing delivery on a particular loop supply
// their own.
type Executor func(fn func())

func defaultExecutor(fn func()) {
	go fn()
}

// Completion receives the terminal result of a task. A canceled task delivers
// (task, nil, ErrCanceled); otherwise exactly one of resp and err is set.
type Completion func(task *Task, resp *Response, err error)

// dispatcher guarantees exactly-once terminal delivery. The callback is moved
// out under an atomic swap before it fires, so a second fire finds nothing to
// call and traps instead of silently dropping the bug.
type dispatcher struct {
	exec Executor
	cb   atomic.Pointer[Completion]
}

func newDispatcher(exec Executor, cb Completion) *dispatcher {
	if exec == nil {
		exec = defaultExecutor
	}
	d := &dispatcher{exec: exec}
	d.cb.Store(&cb)
	return d
}

func (d *dispatcher) fire(task *Task, resp *Response, err error) {
	cb := d.cb.Swap(nil)
	if cb == nil {
		panic("httptask: terminal result delivered twice for one task")
	}
	d.exec(func() {
		(*cb)(task, resp, err)
	})
}

// oneShot wraps a decision continuation so a duplicate invocation from an
// external collaborator panics instead of leaving the task wedged.
func oneShot(what string, fn func(bool)) func(bool) {
	var done atomic.Bool
	return func(ok bool) {
		if !done.CompareAndSwap(false, true) {
			panic("httptask: " + what + " decision delivered twice for one attempt")
		}
		fn(ok)
	}
}
