package body

import (
	"fmt"
	"io"
	"strings"
)

type encState int

const (
	stateInitial encState = iota
	stateHeader
	stateContent
	stateTerminator
	stateEOF
)

// Encoder produces the multipart byte stream for a fixed, fully resolved
// part list. It never buffers more than one part header at a time; content
// bytes are copied straight from the parts through a cursor, so a read
// boundary can fall anywhere.
type Encoder struct {
	boundary string
	parts    []Part

	state encState
	idx   int    // current part
	chunk []byte // header or terminator being drained
	off   int    // cursor into chunk or current part content
}

func newEncoder(boundary string, parts []Part) *Encoder {
	return &Encoder{boundary: boundary, parts: parts}
}

// Read fills p with the next stream bytes. It returns (0, io.EOF) once the
// terminator has been drained, and keeps returning that forever after; no
// byte is ever emitted twice.
func (e *Encoder) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		switch e.state {
		case stateInitial:
			if len(e.parts) == 0 {
				// No parts at all: the body is empty, not a bare terminator.
				e.state = stateEOF
				continue
			}
			e.chunk = e.header(0, true)
			e.off = 0
			e.state = stateHeader

		case stateHeader:
			c := copy(p[n:], e.chunk[e.off:])
			n += c
			e.off += c
			if e.off == len(e.chunk) {
				e.off = 0
				e.state = stateContent
			}

		case stateContent:
			content := e.parts[e.idx].Content
			c := copy(p[n:], content[e.off:])
			n += c
			e.off += c
			if e.off == len(content) {
				e.idx++
				e.off = 0
				if e.idx < len(e.parts) {
					e.chunk = e.header(e.idx, false)
					e.state = stateHeader
				} else {
					e.chunk = []byte("\r\n--" + e.boundary + "--\r\n")
					e.state = stateTerminator
				}
			}

		case stateTerminator:
			c := copy(p[n:], e.chunk[e.off:])
			n += c
			e.off += c
			if e.off == len(e.chunk) {
				e.state = stateEOF
			}

		case stateEOF:
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
	}
	return n, nil
}

// header builds the boundary line and headers for part i. The CRLF that
// terminates the previous part's content doubles as the separator, so it is
// omitted only before the very first part.
func (e *Encoder) header(i int, first bool) []byte {
	part := e.parts[i]
	var b strings.Builder
	if !first {
		b.WriteString("\r\n")
	}
	b.WriteString("--")
	b.WriteString(e.boundary)
	b.WriteString("\r\n")
	b.WriteString(`Content-Disposition: form-data; name="`)
	b.WriteString(escapeQuoted(part.Name))
	b.WriteString(`"`)
	if part.Filename != "" {
		b.WriteString(`; filename="`)
		b.WriteString(escapeQuoted(part.Filename))
		b.WriteString(`"`)
	}
	b.WriteString("\r\n")
	if part.ContentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", part.ContentType)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
