package taskstate

import "sync/atomic"

// State is the lifecycle state of a task.
type State int32

const (
	// Running means a transport attempt is in flight. Can transition into
	// Processing and Canceled.
	Running State = iota
	// Processing means the response is being handled. Transitioning back into
	// Running occurs when the attempt fails and is retried.
	Processing
	// Canceled is terminal.
	Canceled
	// Completed is terminal.
	Completed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Processing:
		return "processing"
	case Canceled:
		return "canceled"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == Canceled || s == Completed
}

// Box holds the state of one task and arbitrates concurrent transitions.
// The zero value starts in Running.
type Box struct {
	state           atomic.Int32
	cancelRequested atomic.Bool
}

// NewBox returns a Box in the given initial state.
func NewBox(initial State) *Box {
	b := &Box{}
	b.state.Store(int32(initial))
	return b
}

// State returns the current state.
func (b *Box) State() State {
	return State(b.state.Load())
}

// Transition attempts to move the box into target. It returns whether the
// box is now in the target state (whether or not this call moved it there)
// and the state it was in before the call. A request for a disallowed edge
// leaves the state untouched; the caller distinguishes "already canceled"
// from "already completed" through old.
func (b *Box) Transition(target State) (ok bool, old State) {
	for {
		old = State(b.state.Load())
		if old == target {
			return true, old
		}
		if !allowed(old, target) {
			return false, old
		}
		if b.state.CompareAndSwap(int32(old), int32(target)) {
			return true, old
		}
	}
}

// Cancel requests cancellation. It records the intent unconditionally, then
// attempts the Canceled transition. The intent stays observable even when the
// transition loses to a concurrent Processing attempt, so the completion path
// can resolve the race deterministically.
func (b *Box) Cancel() (ok bool, old State) {
	b.cancelRequested.Store(true)
	return b.Transition(Canceled)
}

// CancelRequested reports whether Cancel has ever been called.
func (b *Box) CancelRequested() bool {
	return b.cancelRequested.Load()
}

func allowed(from, to State) bool {
	switch from {
	case Running:
		return to == Processing || to == Canceled
	case Processing:
		return to == Completed || to == Running
	default:
		return false
	}
}
