package retry

import (
	"errors"
	"math/rand"
	"time"

	"github.com/abdul-hamid-achik/httptask/packages/engine"
)

const (
	// DefaultBaseDelay is the first backoff interval
	DefaultBaseDelay = 500 * time.Millisecond
	// DefaultMaxDelay caps the backoff interval
	DefaultMaxDelay = 30 * time.Second
)

// Func adapts a function to the engine.RetryPolicy interface.
type Func func(task *engine.Task, err error, attempt int, retry func(bool))

func (f Func) Decide(task *engine.Task, err error, attempt int, retry func(bool)) {
	f(task, err, attempt, retry)
}

// Times retries up to n extra attempts with no delay, for any failure the
// engine considers eligible.
func Times(n int) engine.RetryPolicy {
	return Func(func(task *engine.Task, err error, attempt int, retry func(bool)) {
		retry(attempt < n)
	})
}

// Backoff retries up to n extra attempts, waiting base<<attempt plus up to
// 10% jitter before each yes, capped at DefaultMaxDelay. The wait happens on
// a timer, not by blocking the caller.
func Backoff(n int, base time.Duration) engine.RetryPolicy {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return Func(func(task *engine.Task, err error, attempt int, retry func(bool)) {
		if attempt >= n {
			retry(false)
			return
		}
		delay := base << uint(attempt)
		if delay > DefaultMaxDelay {
			delay = DefaultMaxDelay
		}
		delay += time.Duration(rand.Int63n(int64(delay)/10 + 1))
		time.AfterFunc(delay, func() {
			retry(true)
		})
	})
}

// Delays retries once per entry, waiting the entry's duration before each
// attempt. A zero duration retries immediately.
func Delays(delays ...time.Duration) engine.RetryPolicy {
	return Func(func(task *engine.Task, err error, attempt int, retry func(bool)) {
		if attempt >= len(delays) {
			retry(false)
			return
		}
		d := delays[attempt]
		if d <= 0 {
			retry(true)
			return
		}
		time.AfterFunc(d, func() {
			retry(true)
		})
	})
}

// TransientOnly wraps a policy so it only retries transport failures and
// 5xx responses; everything else is declined without consulting the inner
// policy.
func TransientOnly(inner engine.RetryPolicy) engine.RetryPolicy {
	return Func(func(task *engine.Task, err error, attempt int, retry func(bool)) {
		if !Transient(err) {
			retry(false)
			return
		}
		inner.Decide(task, err, attempt, retry)
	})
}

// Transient reports whether err is worth retrying at all: a transport
// failure or a server-side (5xx) response.
func Transient(err error) bool {
	var terr *engine.TransportError
	if errors.As(err, &terr) {
		return true
	}
	var ferr *engine.FailedResponseError
	if errors.As(err, &ferr) {
		return ferr.StatusCode >= 500
	}
	return false
}

// NonIdempotent wraps a policy to opt out of the engine's idempotence gate,
// for callers that know their non-idempotent requests are safe to replay.
type NonIdempotent struct {
	Inner engine.RetryPolicy
}

func (p NonIdempotent) Decide(task *engine.Task, err error, attempt int, retry func(bool)) {
	p.Inner.Decide(task, err, attempt, retry)
}

// RetriesNonIdempotent marks the policy for the engine's gate.
func (p NonIdempotent) RetriesNonIdempotent() bool { return true }
