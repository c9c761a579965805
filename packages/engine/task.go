package engine

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/httptask/packages/taskstate"
	"github.com/abdul-hamid-achik/httptask/packages/transport"
)

// Task is the caller's handle to one logical request, spanning however many
// transport attempts the retry decisions produce. It is created by
// Client.Execute and becomes inert once the completion callback has fired.
type Task struct {
	id     string
	client *Client
	req    *Request
	box    *taskstate.Box
	disp   *dispatcher

	// ctx is canceled when the task is canceled; it bounds the waits that
	// happen between attempts (pending-part resolution, rate limiting,
	// retry delays).
	ctx       context.Context
	ctxCancel context.CancelFunc

	// Everything below is confined to the task's serial attempt flow: only
	// one attempt is in flight at a time and decision continuations chain
	// one after another. The mutex covers the handoff points between the
	// caller's goroutine and transport callbacks.
	mu           sync.Mutex
	handle       transport.Handle
	bodySource   transport.BodySource
	attempt      int // generic retry counter; reset to 0 by an auth retry
	authRetried  bool
	authToken    any
	attemptStart time.Time
	status       int
	header       http.Header
	buf          bytes.Buffer // accumulated response bytes, current attempt
	start        time.Time

	// canceledDelivered dedupes the two legitimate sources of a Canceled
	// delivery: Cancel itself (no attempt in flight) and the transport
	// completing a canceled attempt. Non-canceled deliveries stay guarded
	// by the dispatcher's one-shot trap.
	canceledDelivered atomic.Bool
}

// ID is a unique identifier for the task, usable for logging and history.
func (t *Task) ID() string { return t.id }

// Request returns the request this task executes.
func (t *Task) Request() *Request { return t.req }

// State returns the task's current lifecycle state.
func (t *Task) State() taskstate.State { return t.box.State() }

// Attempt returns the generic retry counter: 0 for the first attempt,
// incremented per generic retry, reset to 0 by an auth-triggered retry.
func (t *Task) Attempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempt
}

// AuthRetried reports whether the at-most-once auth retry has been used.
func (t *Task) AuthRetried() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authRetried
}

// Cancel requests cancellation. It is idempotent and asynchronous: the
// terminal Canceled delivery happens once the in-flight attempt or pending
// decision observes it.
func (t *Task) Cancel() {
	won, _ := t.box.Cancel()
	t.ctxCancel()
	if won {
		t.mu.Lock()
		h := t.handle
		t.mu.Unlock()
		if h != nil {
			// The transport completes the attempt with a cancellation
			// error; delivery happens on that path.
			h.Cancel()
		} else {
			// No attempt in flight: nothing will ever complete, deliver
			// directly.
			t.deliverCanceled()
		}
	}
	// If the transition lost (Processing, or already terminal) the recorded
	// intent is honored when the current decision or parse step finishes.
}

func (t *Task) deliverCanceled() {
	if t.canceledDelivered.CompareAndSwap(false, true) {
		t.disp.fire(t, nil, ErrCanceled)
	}
}

func newTask(c *Client, req *Request, completion Completion) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		id:        uuid.NewString(),
		client:    c,
		req:       req,
		box:       taskstate.NewBox(taskstate.Running),
		disp:      newDispatcher(c.executor, completion),
		ctx:       ctx,
		ctxCancel: cancel,
		start:     time.Now(),
	}
}

// transport delegate; all three methods are serialized by the transport.

type taskDelegate struct {
	t *Task
}

func (d taskDelegate) OnResponse(status int, header http.Header) {
	d.t.mu.Lock()
	d.t.status = status
	d.t.header = header
	d.t.mu.Unlock()
}

func (d taskDelegate) OnData(chunk []byte) {
	d.t.mu.Lock()
	d.t.buf.Write(chunk)
	d.t.mu.Unlock()
}

func (d taskDelegate) OnComplete(err error) {
	d.t.client.handleOutcome(d.t, err)
}
