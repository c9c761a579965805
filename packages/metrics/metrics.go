// Package metrics collects attempt-level latency and outcome metrics for a
// client. It implements the engine's Recorder interface; install it with
// engine.WithRecorder.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Metrics aggregates attempt outcomes across all tasks of one client.
type Metrics struct {
	mu sync.Mutex

	totalAttempts  atomic.Int64
	failedAttempts atomic.Int64
	genericRetries atomic.Int64
	authRetries    atomic.Int64

	// Latency histogram in milliseconds.
	histogram *hdrhistogram.Histogram
}

// Snapshot is a point-in-time view of the collected metrics.
type Snapshot struct {
	TotalAttempts  int64
	FailedAttempts int64
	GenericRetries int64
	AuthRetries    int64
	P50            time.Duration
	P95            time.Duration
	P99            time.Duration
	Max            time.Duration
}

// New returns an empty collector. The histogram covers 1ms to 10min with 3
// significant digits.
func New() *Metrics {
	return &Metrics{
		histogram: hdrhistogram.New(1, 600_000, 3),
	}
}

// RecordAttempt records one finished transport attempt.
func (m *Metrics) RecordAttempt(method, url string, status int, err error, durationMs int64) {
	m.totalAttempts.Add(1)
	if err != nil || status >= 400 {
		m.failedAttempts.Add(1)
	}

	if durationMs < 1 {
		durationMs = 1
	}
	if durationMs > 600_000 {
		durationMs = 600_000
	}

	m.mu.Lock()
	_ = m.histogram.RecordValue(durationMs)
	m.mu.Unlock()
}

// RecordRetry records a retry decision that armed another attempt.
func (m *Metrics) RecordRetry(auth bool) {
	if auth {
		m.authRetries.Add(1)
	} else {
		m.genericRetries.Add(1)
	}
}

// Snapshot returns the current aggregates.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		TotalAttempts:  m.totalAttempts.Load(),
		FailedAttempts: m.failedAttempts.Load(),
		GenericRetries: m.genericRetries.Load(),
		AuthRetries:    m.authRetries.Load(),
		P50:            time.Duration(m.histogram.ValueAtQuantile(50)) * time.Millisecond,
		P95:            time.Duration(m.histogram.ValueAtQuantile(95)) * time.Millisecond,
		P99:            time.Duration(m.histogram.ValueAtQuantile(99)) * time.Millisecond,
		Max:            time.Duration(m.histogram.Max()) * time.Millisecond,
	}
}
