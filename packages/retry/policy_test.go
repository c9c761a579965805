package retry

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/httptask/packages/engine"
)

// decide runs a policy synchronously and reports its verdict, waiting out any
// timer the policy arms.
func decide(t *testing.T, p engine.RetryPolicy, err error, attempt int) bool {
	t.Helper()
	ch := make(chan bool, 1)
	p.Decide(nil, err, attempt, func(ok bool) { ch <- ok })
	select {
	case ok := <-ch:
		return ok
	case <-time.After(5 * time.Second):
		t.Fatal("policy never decided")
		return false
	}
}

func TestTimes(t *testing.T) {
	p := Times(2)
	assert.True(t, decide(t, p, errors.New("boom"), 0))
	assert.True(t, decide(t, p, errors.New("boom"), 1))
	assert.False(t, decide(t, p, errors.New("boom"), 2))
}

func TestBackoff_WaitsBeforeRetrying(t *testing.T) {
	p := Backoff(3, 50*time.Millisecond)

	start := time.Now()
	require.True(t, decide(t, p, errors.New("boom"), 1))
	// Second retry waits base<<1 at minimum.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	assert.False(t, decide(t, p, errors.New("boom"), 3))
}

func TestDelays(t *testing.T) {
	p := Delays(0, 30*time.Millisecond)

	start := time.Now()
	assert.True(t, decide(t, p, errors.New("boom"), 0))
	assert.Less(t, time.Since(start), 25*time.Millisecond, "zero delay decides immediately")

	start = time.Now()
	assert.True(t, decide(t, p, errors.New("boom"), 1))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	assert.False(t, decide(t, p, errors.New("boom"), 2))
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport failure", &engine.TransportError{Err: io.ErrUnexpectedEOF}, true},
		{"server error", &engine.FailedResponseError{StatusCode: 503}, true},
		{"client error", &engine.FailedResponseError{StatusCode: 404}, false},
		{"authorization", &engine.AuthorizationError{}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transient(tt.err))
		})
	}
}

func TestTransientOnly_DeclinesWithoutConsultingInner(t *testing.T) {
	inner := Func(func(task *engine.Task, err error, attempt int, retry func(bool)) {
		t.Fatal("inner policy consulted for a non-transient failure")
	})
	p := TransientOnly(inner)
	assert.False(t, decide(t, p, &engine.FailedResponseError{StatusCode: 400}, 0))
}

func TestTransientOnly_DelegatesTransient(t *testing.T) {
	p := TransientOnly(Times(1))
	assert.True(t, decide(t, p, &engine.FailedResponseError{StatusCode: 502}, 0))
	assert.False(t, decide(t, p, &engine.FailedResponseError{StatusCode: 502}, 1))
}

func TestNonIdempotent_MarksAndDelegates(t *testing.T) {
	p := NonIdempotent{Inner: Times(1)}
	assert.True(t, p.RetriesNonIdempotent())
	assert.True(t, decide(t, p, errors.New("boom"), 0))
	assert.False(t, decide(t, p, errors.New("boom"), 1))
}
