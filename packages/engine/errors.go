package engine

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrCanceled is delivered as the terminal result of a canceled task. It is
// never paired with a response.
var ErrCanceled = errors.New("task canceled")

// TransportError wraps a network failure reported by the transport adapter.
type TransportError struct {
	Err error
	// NothingSent reports that the failure happened before any request bytes
	// reached the server, which makes a replay safe even for non-idempotent
	// methods.
	NothingSent bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FailedResponseError reports a response whose status code indicates failure.
type FailedResponseError struct {
	StatusCode int
	Body       []byte
}

func (e *FailedResponseError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// AuthorizationError reports a 401 Unauthorized response. Auth is the
// mechanism that produced the rejected credentials, if any.
type AuthorizationError struct {
	Response *Response
	Body     []byte
	Auth     Auth
}

func (e *AuthorizationError) Error() string {
	return "request was not authorized"
}

// ProtocolErrorKind classifies protocol-level failures.
type ProtocolErrorKind int

const (
	// UnexpectedRedirect means a redirect was returned for a request whose
	// parse step disallows them.
	UnexpectedRedirect ProtocolErrorKind = iota
	// UnexpectedContentType means the response Content-Type did not match
	// what the request declared acceptable.
	UnexpectedContentType
	// UnexpectedNoContent means a 204 was returned where an entity was
	// expected.
	UnexpectedNoContent
)

// ProtocolError reports a response the request contract does not allow.
type ProtocolError struct {
	Kind        ProtocolErrorKind
	StatusCode  int
	ContentType string
	Location    string
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case UnexpectedRedirect:
		return fmt.Sprintf("unexpected redirect (%d) to %s", e.StatusCode, e.Location)
	case UnexpectedContentType:
		return fmt.Sprintf("unexpected response content type %q", e.ContentType)
	case UnexpectedNoContent:
		return "unexpected 204 No Content"
	default:
		return "protocol error"
	}
}

// nothingSent reports whether err indicates a failure that happened before
// any request bytes could have reached the server.
func nothingSent(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
