package engine

import (
	"net/url"

	"github.com/abdul-hamid-achik/httptask/packages/body"
)

// Body describes the request payload. Exactly one variant applies to a
// request; a nil Body means no payload.
type Body interface {
	isBody()
}

// RawBody is an opaque byte payload with an explicit content type.
type RawBody struct {
	ContentType string
	Data        []byte
}

// FormBody is an application/x-www-form-urlencoded payload.
type FormBody struct {
	Values url.Values
}

// JSONBody is a value encoded as application/json at send time.
type JSONBody struct {
	Value any
}

// MultipartBody streams a multipart/form-data payload through the form's
// pull-based encoder.
type MultipartBody struct {
	Form *body.Form
}

func (RawBody) isBody()       {}
func (FormBody) isBody()      {}
func (JSONBody) isBody()      {}
func (MultipartBody) isBody() {}

// ParseFunc is an optional processing step applied to a successful response
// while the task is in the Processing state. Its result is stored on
// Response.Parsed; an error makes the task fail.
type ParseFunc func(resp *Response) (any, error)

// Request is a prepared request. Build one with NewRequest and the fluent
// setters, then hand it to Client.Execute; the engine never mutates it after
// that, so a Request may be executed multiple times.
type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string]string
	Body        Body
	Auth        Auth // overrides the client default when non-nil
	Parse       ParseFunc

	// ExpectedContentTypes restricts the acceptable response Content-Type.
	// Empty means anything is accepted.
	ExpectedContentTypes []string

	// SuppressDefaultAuth prevents the client's default auth from applying.
	// Auth mechanisms that issue their own requests set this to avoid
	// refresh loops.
	SuppressDefaultAuth bool

	// idempotent overrides the method-derived idempotence classification.
	idempotent *bool
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:      method,
		URL:         requestURL,
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetQueryParam(key, value string) *Request {
	r.QueryParams[key] = value
	return r
}

func (r *Request) SetAuth(a Auth) *Request {
	r.Auth = a
	return r
}

func (r *Request) SetRawBody(contentType string, data []byte) *Request {
	r.Body = RawBody{ContentType: contentType, Data: data}
	return r
}

func (r *Request) SetFormBody(values url.Values) *Request {
	r.Body = FormBody{Values: values}
	return r
}

func (r *Request) SetJSONBody(v any) *Request {
	r.Body = JSONBody{Value: v}
	return r
}

func (r *Request) SetMultipartBody(f *body.Form) *Request {
	r.Body = MultipartBody{Form: f}
	return r
}

func (r *Request) SetParse(fn ParseFunc) *Request {
	r.Parse = fn
	return r
}

func (r *Request) SetExpectedContentTypes(types ...string) *Request {
	r.ExpectedContentTypes = types
	return r
}

// SetIdempotent overrides the method-based idempotence classification, which
// gates retries of requests that may already have reached the server.
func (r *Request) SetIdempotent(idempotent bool) *Request {
	r.idempotent = &idempotent
	return r
}

// WithoutDefaultAuth marks the request to skip the client's default auth.
func (r *Request) WithoutDefaultAuth() *Request {
	r.SuppressDefaultAuth = true
	return r
}

// Idempotent reports whether the request is safe to replay. Without an
// explicit override only methods defined as idempotent without side effects
// qualify.
func (r *Request) Idempotent() bool {
	if r.idempotent != nil {
		return *r.idempotent
	}
	switch r.Method {
	case "GET", "HEAD", "OPTIONS", "TRACE":
		return true
	default:
		return false
	}
}

// BuildURL returns the request URL with query parameters applied.
func (r *Request) BuildURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
