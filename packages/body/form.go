package body

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

type entry struct {
	part    Part
	pending *PendingPart
}

// Form is an ordered collection of multipart sections. Query-parameter values
// added through AddValue become leading text/plain parts; AddPart and
// AddPending append in call order after them.
type Form struct {
	boundary string
	values   []entry
	entries  []entry
}

// NewForm returns a Form with a generated unique boundary token.
func NewForm() *Form {
	return &Form{boundary: "httptask-boundary-" + uuid.NewString()}
}

// NewFormWithBoundary returns a Form using a caller-supplied boundary. The
// caller is responsible for its uniqueness against the part contents.
func NewFormWithBoundary(boundary string) *Form {
	return &Form{boundary: boundary}
}

// Boundary returns the boundary token.
func (f *Form) Boundary() string {
	return f.boundary
}

// ContentType returns the value for the Content-Type request header.
func (f *Form) ContentType() string {
	return fmt.Sprintf("multipart/form-data; boundary=%s", f.boundary)
}

// AddValue appends a query-parameter pair. It is emitted as a text/plain part
// ahead of all parts added with AddPart or AddPending.
func (f *Form) AddValue(name, value string) *Form {
	f.values = append(f.values, entry{part: NewTextPart(name, value)})
	return f
}

// AddPart appends a part.
func (f *Form) AddPart(p Part) *Form {
	f.entries = append(f.entries, entry{part: p})
	return f
}

// AddPending appends a deferred part set.
func (f *Form) AddPending(p *PendingPart) *Form {
	f.entries = append(f.entries, entry{pending: p})
	return f
}

// Empty reports whether the form holds no values and no parts.
func (f *Form) Empty() bool {
	return len(f.values) == 0 && len(f.entries) == 0
}

// Resolve evaluates every pending part that has not fired yet and waits for
// all of them. It must complete before the stream is first read: deciding
// leading separators requires knowing what parts remain, so the encoder only
// works from fully resolved entries. Callbacks run concurrently, each on its
// own goroutine.
func (f *Form) Resolve(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range f.entries {
		if e.pending == nil || e.pending.Resolved() {
			continue
		}
		wg.Add(1)
		go func(p *PendingPart) {
			defer wg.Done()
			p.Resolve(ctx)
		}(e.pending)
	}
	wg.Wait()
}

// parts flattens the form into the final ordered part list. A resolved
// pending entry contributing zero parts disappears here.
func (f *Form) parts() ([]Part, error) {
	out := make([]Part, 0, len(f.values)+len(f.entries))
	for _, e := range f.values {
		out = append(out, e.part)
	}
	for _, e := range f.entries {
		if e.pending != nil {
			if !e.pending.Resolved() {
				return nil, fmt.Errorf("form has an unresolved pending part; call Resolve first")
			}
			out = append(out, e.pending.parts...)
			continue
		}
		out = append(out, e.part)
	}
	return out, nil
}

// Open returns a fresh Encoder over the resolved parts. Each call restarts
// the stream from the beginning, which is how retried attempts re-send the
// body without re-running pending callbacks.
func (f *Form) Open() (io.Reader, error) {
	parts, err := f.parts()
	if err != nil {
		return nil, err
	}
	return newEncoder(f.boundary, parts), nil
}
