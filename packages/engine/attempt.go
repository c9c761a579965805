package engine

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/httptask/packages/taskstate"
)

// startAttempt sends the next transport attempt for t. It runs on the task's
// serial flow: the Execute goroutine for attempt 0, a decision continuation
// for retries.
func (c *Client) startAttempt(t *Task) {
	if t.box.State() == taskstate.Canceled {
		t.deliverCanceled()
		return
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(t.ctx); err != nil {
			t.deliverCanceled()
			return
		}
	}

	t.mu.Lock()
	t.buf.Reset()
	t.status = 0
	t.header = nil
	t.handle = nil
	t.attemptStart = time.Now()
	source := t.bodySource
	attempt := t.attempt
	t.mu.Unlock()

	wire := c.buildWire(t)
	c.debugf("attempt start", "task", t.id, "method", wire.Method, "url", wire.URL, "attempt", attempt)

	handle, err := c.transport.Send(wire, source, taskDelegate{t})
	if err != nil {
		// Construction failures (bad URL, unopenable body) are terminal;
		// nothing went on the wire and nothing will call back.
		c.deliverError(t, err)
		return
	}

	t.mu.Lock()
	t.handle = handle
	t.mu.Unlock()

	// A cancel that arrived while Send was in progress found no handle to
	// cancel; propagate it now.
	if t.box.State() == taskstate.Canceled {
		handle.Cancel()
	}
}

// handleOutcome is the single entry point for a finished attempt. It re-arms
// the state machine into Processing and walks the decision order: canceled,
// authorization failure, generic retry, terminal delivery.
func (c *Client) handleOutcome(t *Task, err error) {
	t.mu.Lock()
	status := t.status
	header := t.header
	bodyBytes := append([]byte(nil), t.buf.Bytes()...)
	duration := time.Since(t.attemptStart)
	attempt := t.attempt
	t.handle = nil
	t.mu.Unlock()

	if c.recorder != nil {
		c.recorder.RecordAttempt(t.req.Method, t.req.URL, status, err, duration.Milliseconds())
	}

	ok, old := t.box.Transition(taskstate.Processing)
	if !ok {
		// Cancel won while the attempt was running; the produced result is
		// suppressed.
		if old == taskstate.Canceled {
			t.deliverCanceled()
		}
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// The transport observed a cancellation the state machine has
			// not absorbed yet.
			t.box.Transition(taskstate.Running)
			t.box.Cancel()
			t.deliverCanceled()
			return
		}
		c.debugf("attempt failed", "task", t.id, "attempt", attempt, "err", err)
		c.decideRetry(t, &TransportError{Err: err, NothingSent: nothingSent(err)}, attempt)
		return
	}

	resp := &Response{
		StatusCode: status,
		Headers:    header,
		Body:       bodyBytes,
		Duration:   duration,
	}
	c.debugf("attempt done", "task", t.id, "attempt", attempt, "status", status)

	if status == http.StatusUnauthorized {
		c.decideUnauthorized(t, resp, attempt)
		return
	}

	if resp.IsRedirect() && t.req.Parse != nil {
		c.finish(t, nil, &ProtocolError{
			Kind:       UnexpectedRedirect,
			StatusCode: status,
			Location:   resp.Header("Location"),
		})
		return
	}

	if !resp.IsSuccess() {
		c.decideRetry(t, &FailedResponseError{StatusCode: status, Body: bodyBytes}, attempt)
		return
	}

	if !contentTypeMatches(t.req.ExpectedContentTypes, resp.ContentType()) {
		c.finish(t, nil, &ProtocolError{
			Kind:        UnexpectedContentType,
			StatusCode:  status,
			ContentType: resp.ContentType(),
		})
		return
	}

	if t.req.Parse != nil {
		if status == http.StatusNoContent {
			c.finish(t, nil, &ProtocolError{Kind: UnexpectedNoContent, StatusCode: status})
			return
		}
		parsed, perr := t.req.Parse(resp)
		if perr != nil {
			c.finish(t, nil, perr)
			return
		}
		resp.Parsed = parsed
	}

	c.finish(t, resp, nil)
}

// decideUnauthorized implements the re-authentication step. The auth retry
// fires at most once per task; a second consecutive 401 after it is
// permanent.
func (c *Client) decideUnauthorized(t *Task, resp *Response, attempt int) {
	a := c.authFor(t.req)
	authErr := &AuthorizationError{Response: resp, Body: resp.Body, Auth: a}

	handler, capable := a.(UnauthorizedHandler)
	if !capable {
		c.decideRetry(t, authErr, attempt)
		return
	}

	t.mu.Lock()
	alreadyRetried := t.authRetried
	token := t.authToken
	t.mu.Unlock()

	if alreadyRetried {
		c.finish(t, nil, authErr)
		return
	}
	if !t.req.Idempotent() && !c.policyRetriesNonIdempotent() {
		c.decideRetry(t, authErr, attempt)
		return
	}

	cont := oneShot("auth", func(shouldRetry bool) {
		if !shouldRetry {
			c.finish(t, nil, authErr)
			return
		}
		t.mu.Lock()
		t.authRetried = true
		t.attempt = 0
		t.mu.Unlock()
		if c.recorder != nil {
			c.recorder.RecordRetry(true)
		}
		c.debugf("auth retry", "task", t.id)
		c.rearm(t)
	})
	go handler.HandleUnauthorized(resp, resp.Body, t, token, cont)
}

// decideRetry implements the generic retry step.
func (c *Client) decideRetry(t *Task, failure error, attempt int) {
	if c.retryPolicy == nil || !c.retryEligible(t, failure) {
		c.finish(t, nil, failure)
		return
	}

	cont := oneShot("retry", func(shouldRetry bool) {
		if !shouldRetry {
			c.finish(t, nil, failure)
			return
		}
		t.mu.Lock()
		t.attempt++
		t.mu.Unlock()
		if c.recorder != nil {
			c.recorder.RecordRetry(false)
		}
		c.debugf("generic retry", "task", t.id, "attempt", t.Attempt())
		c.rearm(t)
	})
	go c.retryPolicy.Decide(t, failure, attempt, cont)
}

// retryEligible applies the idempotence gate: a request that may already
// have reached the server is only replayed when it is idempotent, the
// failure guarantees nothing was sent, or the policy opts out.
func (c *Client) retryEligible(t *Task, failure error) bool {
	if t.req.Idempotent() {
		return true
	}
	var terr *TransportError
	if errors.As(failure, &terr) && terr.NothingSent {
		return true
	}
	return c.policyRetriesNonIdempotent()
}

// nonIdempotentRetrier is implemented by policies that explicitly accept
// replaying non-idempotent requests.
type nonIdempotentRetrier interface {
	RetriesNonIdempotent() bool
}

func (c *Client) policyRetriesNonIdempotent() bool {
	p, ok := c.retryPolicy.(nonIdempotentRetrier)
	return ok && p.RetriesNonIdempotent()
}

// rearm moves Processing back to Running for another attempt. Cancellation
// always wins against an in-flight retry decision: the recorded intent is
// honored before anything new goes on the wire.
func (c *Client) rearm(t *Task) {
	ok, old := t.box.Transition(taskstate.Running)
	if !ok {
		if old == taskstate.Canceled {
			t.deliverCanceled()
		}
		return
	}
	if t.box.CancelRequested() {
		t.box.Cancel()
		t.deliverCanceled()
		return
	}
	go c.startAttempt(t)
}

// deliverError terminates the task with err from either the Running or
// Processing state.
func (c *Client) deliverError(t *Task, err error) {
	if ok, old := t.box.Transition(taskstate.Processing); !ok {
		if old == taskstate.Canceled {
			t.deliverCanceled()
		}
		return
	}
	c.finish(t, nil, err)
}

// finish performs the terminal transition and dispatches. A cancellation
// that arrived while the result was being produced wins: the result is
// suppressed and Canceled is delivered instead.
func (c *Client) finish(t *Task, resp *Response, err error) {
	if t.box.CancelRequested() {
		t.box.Transition(taskstate.Running)
		t.box.Cancel()
		t.deliverCanceled()
		return
	}
	ok, old := t.box.Transition(taskstate.Completed)
	if !ok {
		if old == taskstate.Canceled {
			t.deliverCanceled()
		}
		return
	}
	t.disp.fire(t, resp, err)
}
