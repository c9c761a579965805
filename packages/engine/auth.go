package engine

// Auth supplies credentials for a request. Implementations live in
// packages/auth; the engine only consumes the interfaces.
type Auth interface {
	// Headers returns the headers carrying the credentials for one attempt.
	// It is called at send time for every attempt, so a mechanism that
	// refreshed its credentials between attempts is picked up automatically.
	Headers(req *Request) map[string]string
}

// TokenAuth is an Auth that can identify which credentials a given attempt
// used. The token is opaque to the engine: it is captured at send time and
// handed back on a 401 so the mechanism can tell whether that attempt
// already carried refreshed credentials.
type TokenAuth interface {
	Auth
	Token(req *Request) any
}

// UnauthorizedHandler is an Auth that can react to a 401. The handler runs
// on an arbitrary goroutine and reports its decision through retry, which
// must be called exactly once: true re-sends the request with freshly applied
// credentials, false makes the authorization failure terminal. Calling retry
// twice is a fatal integration error.
type UnauthorizedHandler interface {
	Auth
	HandleUnauthorized(resp *Response, body []byte, task *Task, token any, retry func(bool))
}

// RetryPolicy decides whether a failed attempt should be retried. Decide runs
// on an arbitrary goroutine; it reports through retry, which must be called
// exactly once per attempt (a duplicate call panics). The policy may delay as
// long as it likes before deciding, which is how backoff is expressed.
type RetryPolicy interface {
	Decide(task *Task, err error, attempt int, retry func(bool))
}
