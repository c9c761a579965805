package transport

import (
	"io"
	"net/http"
)

// Wire is a fully prepared request: final URL, method, and headers, with all
// auth and defaults already applied.
type Wire struct {
	Method string
	URL    string
	Header http.Header
}

// Clone returns a deep copy so a retry can re-apply headers without mutating
// the attempt that already went out.
func (w *Wire) Clone() *Wire {
	return &Wire{
		Method: w.Method,
		URL:    w.URL,
		Header: w.Header.Clone(),
	}
}

// BodySource produces the request body as a fresh pull-based stream. Open is
// called once per attempt, so a retried request re-sends identical bytes
// without the caller buffering them.
type BodySource interface {
	Open() (io.Reader, error)
}

// Delegate receives the outcome of one attempt. OnResponse and OnData fire
// zero or more times before OnComplete, which fires exactly once; a canceled
// attempt completes with an error matching context.Canceled. All calls for
// one attempt are serialized.
type Delegate interface {
	OnResponse(status int, header http.Header)
	OnData(chunk []byte)
	OnComplete(err error)
}

// Handle controls an in-flight attempt.
type Handle interface {
	// Cancel requests mid-flight cancellation. It is a request, not a
	// guarantee: the attempt still completes through the delegate.
	Cancel()
}

// Transport sends a wire request and reports the outcome to the delegate.
type Transport interface {
	Send(w *Wire, body BodySource, d Delegate) (Handle, error)
}
