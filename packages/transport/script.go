package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Step is one scripted attempt outcome.
type Step struct {
	Status int
	Header http.Header
	Body   []byte
	Err    error // delivered instead of a response when non-nil
	Delay  time.Duration
}

// Script is an in-memory Transport that replays a fixed sequence of steps,
// one per Send, and records every wire request it receives. It exists for
// deterministic engine tests; a Send beyond the scripted steps fails.
type Script struct {
	mu    sync.Mutex
	steps []Step
	sent  []*Wire
	// DrainBody pulls the body source to completion before answering, the
	// way a real transport would.
	DrainBody bool
	drained   [][]byte
}

// NewScript returns a Script that will answer successive Sends with steps in
// order.
func NewScript(steps ...Step) *Script {
	return &Script{steps: steps}
}

// Sent returns the wire requests received so far.
func (s *Script) Sent() []*Wire {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Wire, len(s.sent))
	copy(out, s.sent)
	return out
}

// Drained returns the body bytes pulled for each Send with DrainBody set.
func (s *Script) Drained() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.drained))
	copy(out, s.drained)
	return out
}

type scriptHandle struct {
	cancel context.CancelFunc
}

func (h *scriptHandle) Cancel() { h.cancel() }

func (s *Script) Send(w *Wire, body BodySource, d Delegate) (Handle, error) {
	s.mu.Lock()
	if len(s.sent) >= len(s.steps) {
		s.mu.Unlock()
		return nil, fmt.Errorf("script exhausted after %d sends", len(s.steps))
	}
	step := s.steps[len(s.sent)]
	s.sent = append(s.sent, w.Clone())
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	var done atomic.Bool

	go func() {
		defer cancel()
		if s.DrainBody && body != nil {
			r, err := body.Open()
			if err != nil {
				if done.CompareAndSwap(false, true) {
					d.OnComplete(err)
				}
				return
			}
			buf, _ := io.ReadAll(r)
			s.mu.Lock()
			s.drained = append(s.drained, buf)
			s.mu.Unlock()
		}

		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-ctx.Done():
			}
		}
		if !done.CompareAndSwap(false, true) {
			return
		}
		if ctx.Err() != nil {
			d.OnComplete(context.Canceled)
			return
		}
		if step.Err != nil {
			d.OnComplete(step.Err)
			return
		}
		header := step.Header
		if header == nil {
			header = http.Header{}
		}
		d.OnResponse(step.Status, header)
		if len(step.Body) > 0 {
			d.OnData(step.Body)
		}
		d.OnComplete(nil)
	}()

	return &scriptHandle{cancel: cancel}, nil
}
