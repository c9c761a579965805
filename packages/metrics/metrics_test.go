package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountsOutcomes(t *testing.T) {
	m := New()

	m.RecordAttempt("GET", "http://api.test/x", 200, nil, 12)
	m.RecordAttempt("GET", "http://api.test/x", 503, nil, 40)
	m.RecordAttempt("POST", "http://api.test/y", 0, errors.New("boom"), 5)

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.TotalAttempts)
	assert.EqualValues(t, 2, snap.FailedAttempts)
}

func TestMetrics_CountsRetriesByKind(t *testing.T) {
	m := New()

	m.RecordRetry(false)
	m.RecordRetry(false)
	m.RecordRetry(true)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.GenericRetries)
	assert.EqualValues(t, 1, snap.AuthRetries)
}

func TestMetrics_LatencyQuantiles(t *testing.T) {
	m := New()
	for i := 1; i <= 100; i++ {
		m.RecordAttempt("GET", "http://api.test/x", 200, nil, int64(i))
	}

	snap := m.Snapshot()
	assert.InDelta(t, 50, snap.P50.Milliseconds(), 2)
	assert.InDelta(t, 95, snap.P95.Milliseconds(), 2)
	assert.Equal(t, 100*time.Millisecond, snap.Max)
}

func TestMetrics_ClampsOutOfRangeDurations(t *testing.T) {
	m := New()
	m.RecordAttempt("GET", "http://api.test/x", 200, nil, 0)
	m.RecordAttempt("GET", "http://api.test/x", 200, nil, 2_000_000)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.TotalAttempts)
	assert.LessOrEqual(t, snap.Max, 601*time.Second)
}
