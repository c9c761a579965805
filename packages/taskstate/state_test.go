package taskstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition_AllowedEdges(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		ok   bool
	}{
		{"running to processing", Running, Processing, true},
		{"running to canceled", Running, Canceled, true},
		{"running to completed", Running, Completed, false},
		{"processing to completed", Processing, Completed, true},
		{"processing to running", Processing, Running, true},
		{"processing to canceled", Processing, Canceled, false},
		{"canceled to running", Canceled, Running, false},
		{"canceled to completed", Canceled, Completed, false},
		{"completed to running", Completed, Running, false},
		{"completed to canceled", Completed, Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBox(tt.from)
			ok, old := b.Transition(tt.to)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.from, old)
			if tt.ok {
				assert.Equal(t, tt.to, b.State())
			} else {
				assert.Equal(t, tt.from, b.State())
			}
		})
	}
}

func TestTransition_SameStateSucceeds(t *testing.T) {
	b := NewBox(Running)
	ok, old := b.Transition(Running)
	assert.True(t, ok)
	assert.Equal(t, Running, old)
}

func TestTransition_ReportsTruePriorState(t *testing.T) {
	b := NewBox(Running)
	b.Cancel()

	ok, old := b.Transition(Completed)
	assert.False(t, ok)
	assert.Equal(t, Canceled, old)
}

func TestCancel_Idempotent(t *testing.T) {
	b := NewBox(Running)

	ok, old := b.Cancel()
	assert.True(t, ok)
	assert.Equal(t, Running, old)

	ok, old = b.Cancel()
	assert.True(t, ok, "second cancel reports target state reached")
	assert.Equal(t, Canceled, old)
	assert.Equal(t, Canceled, b.State())
}

func TestCancel_IntentObservableWhenProcessing(t *testing.T) {
	b := NewBox(Running)
	b.Transition(Processing)

	ok, old := b.Cancel()
	assert.False(t, ok, "cancel loses against processing")
	assert.Equal(t, Processing, old)
	assert.True(t, b.CancelRequested())
	assert.Equal(t, Processing, b.State())
}

func TestTerminal(t *testing.T) {
	assert.False(t, Running.Terminal())
	assert.False(t, Processing.Terminal())
	assert.True(t, Canceled.Terminal())
	assert.True(t, Completed.Terminal())
}

func TestTransition_ConcurrentCancelVsProcessing(t *testing.T) {
	// A cancel from the caller races the transport callback moving into
	// Processing. Exactly one side wins the CAS every time.
	for i := 0; i < 200; i++ {
		b := NewBox(Running)

		var wg sync.WaitGroup
		var cancelWon, processWon bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			cancelWon, _ = b.Cancel()
		}()
		go func() {
			defer wg.Done()
			processWon, _ = b.Transition(Processing)
		}()
		wg.Wait()

		assert.NotEqual(t, cancelWon, processWon, "exactly one transition wins")
		if cancelWon {
			assert.Equal(t, Canceled, b.State())
		} else {
			assert.Equal(t, Processing, b.State())
			assert.True(t, b.CancelRequested())
		}
	}
}
