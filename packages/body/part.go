package body

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// DefaultTextContentType is used for text and query-parameter parts.
	DefaultTextContentType = "text/plain; charset=utf-8"
	// DefaultFileContentType is used for data parts with no explicit type.
	DefaultFileContentType = "application/octet-stream"
)

// Part is one named multipart section.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Content     []byte
}

// NewTextPart returns a text/plain part holding the UTF-8 bytes of value.
func NewTextPart(name, value string) Part {
	return Part{
		Name:        name,
		ContentType: DefaultTextContentType,
		Content:     []byte(value),
	}
}

// NewFilePart returns a file part. An empty contentType defaults to
// application/octet-stream.
func NewFilePart(name, filename, contentType string, content []byte) Part {
	if contentType == "" {
		contentType = DefaultFileContentType
	}
	return Part{
		Name:        name,
		Filename:    filename,
		ContentType: contentType,
		Content:     content,
	}
}

// PendingPart defers part production to a user callback. The callback fires
// exactly once for the lifetime of the owning request, no matter how many
// times the body is re-encoded for retries; after that the result is served
// from memory.
type PendingPart struct {
	once     sync.Once
	eval     func(ctx context.Context) []Part
	parts    []Part
	resolved atomic.Bool
}

// NewPendingPart returns a PendingPart that obtains its parts from eval. The
// callback may block; it runs on an arbitrary goroutine during Form.Resolve.
func NewPendingPart(eval func(ctx context.Context) []Part) *PendingPart {
	return &PendingPart{eval: eval}
}

// Resolve invokes the callback if it has not fired yet and returns the
// memoized parts. Safe for concurrent use.
func (p *PendingPart) Resolve(ctx context.Context) []Part {
	p.once.Do(func() {
		p.parts = p.eval(ctx)
		p.eval = nil
		p.resolved.Store(true)
	})
	return p.parts
}

// Resolved reports whether the callback has fired.
func (p *PendingPart) Resolved() bool {
	return p.resolved.Load()
}

// escapeQuoted percent-escapes the three characters that cannot appear inside
// a quoted Content-Disposition parameter. Everything else passes through.
func escapeQuoted(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	r := strings.NewReplacer("\r", "%0D", "\n", "%0A", `"`, "%22")
	return r.Replace(s)
}
