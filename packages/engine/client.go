package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/httptask/packages/transport"
)

// Recorder observes attempt outcomes. packages/metrics provides the standard
// implementation; a nil recorder disables observation.
type Recorder interface {
	RecordAttempt(method, url string, status int, err error, durationMs int64)
	RecordRetry(auth bool)
}

// Client executes requests. A single Client is safe for concurrent use;
// tasks run fully independently of each other.
type Client struct {
	transport      transport.Transport
	defaultAuth    Auth
	retryPolicy    RetryPolicy
	defaultHeaders map[string]string
	userAgent      string
	limiter        *rate.Limiter
	recorder       Recorder
	logger         *log.Logger
	executor       Executor
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		defaultHeaders: make(map[string]string),
		userAgent:      "httptask",
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		c.transport = transport.NewNet()
	}

	return c
}

// WithTransport replaces the default net/http transport adapter.
func WithTransport(t transport.Transport) ClientOption {
	return func(c *Client) {
		c.transport = t
	}
}

// WithAuth sets the default auth mechanism applied to every request that
// does not carry its own and is not marked SuppressDefaultAuth.
func WithAuth(a Auth) ClientOption {
	return func(c *Client) {
		c.defaultAuth = a
	}
}

// WithRetryPolicy sets the policy consulted after a failed attempt.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retryPolicy = p
	}
}

func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.defaultHeaders[key] = value
	}
}

// WithDefaultHeaders sets multiple default headers for all requests
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRateLimit gates attempt starts with a token bucket of rps tokens per
// second and the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRecorder installs an attempt/retry observer.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithLogger enables debug logging. The client is silent without one.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithExecutor sets the execution context completion callbacks are delivered
// on. The default runs each callback on its own goroutine.
func WithExecutor(e Executor) ClientOption {
	return func(c *Client) {
		c.executor = e
	}
}

// Execute starts req as a new task. Attempt 0 begins immediately on a
// background goroutine; completion fires exactly once with the terminal
// result.
func (c *Client) Execute(req *Request, completion Completion) *Task {
	t := newTask(c, req, completion)

	go func() {
		source, err := c.prepareBody(t)
		if err != nil {
			c.deliverError(t, err)
			return
		}
		t.mu.Lock()
		t.bodySource = source
		t.mu.Unlock()
		c.startAttempt(t)
	}()

	return t
}

// prepareBody builds the re-openable body source. For multipart bodies this
// is where the engine waits on every pending part: the stream may not be
// opened until the full part list is known.
func (c *Client) prepareBody(t *Task) (transport.BodySource, error) {
	switch b := t.req.Body.(type) {
	case nil:
		return nil, nil
	case RawBody:
		return bytesSource{contentType: b.ContentType, data: b.Data}, nil
	case FormBody:
		return bytesSource{
			contentType: "application/x-www-form-urlencoded",
			data:        []byte(b.Values.Encode()),
		}, nil
	case JSONBody:
		data, err := json.Marshal(b.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding JSON body: %w", err)
		}
		return bytesSource{contentType: "application/json", data: data}, nil
	case MultipartBody:
		b.Form.Resolve(t.ctx)
		return formSource{form: b.Form}, nil
	default:
		return nil, fmt.Errorf("unsupported body type %T", b)
	}
}

// buildWire prepares the wire request for one attempt, applying default
// headers, the body content type, and the auth mechanism's headers. Auth is
// re-applied per attempt so refreshed credentials take effect on retries.
func (c *Client) buildWire(t *Task) *transport.Wire {
	req := t.req
	header := http.Header{}

	if c.userAgent != "" {
		header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.defaultHeaders {
		header.Set(k, v)
	}
	for k, v := range req.Headers {
		header.Set(k, v)
	}

	if ct := bodyContentType(t.bodySource); ct != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", ct)
	}

	if a := c.authFor(req); a != nil {
		for k, v := range a.Headers(req) {
			header.Set(k, v)
		}
		if ta, ok := a.(TokenAuth); ok {
			token := ta.Token(req)
			t.mu.Lock()
			t.authToken = token
			t.mu.Unlock()
		}
	}

	return &transport.Wire{
		Method: req.Method,
		URL:    req.BuildURL(),
		Header: header,
	}
}

// authFor returns the mechanism in effect for req, honoring the suppression
// flag that auth-issued requests carry.
func (c *Client) authFor(req *Request) Auth {
	if req.Auth != nil {
		return req.Auth
	}
	if req.SuppressDefaultAuth {
		return nil
	}
	return c.defaultAuth
}

func (c *Client) debugf(msg string, keyvals ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keyvals...)
	}
}

// bytesSource re-opens a fixed byte slice per attempt.
type bytesSource struct {
	contentType string
	data        []byte
}

func (s bytesSource) Open() (io.Reader, error) {
	return bytes.NewReader(s.data), nil
}

// formSource re-opens the multipart encoder per attempt; pending parts stay
// memoized inside the form.
type formSource struct {
	form interface {
		Open() (io.Reader, error)
		ContentType() string
	}
}

func (s formSource) Open() (io.Reader, error) {
	return s.form.Open()
}

func bodyContentType(s transport.BodySource) string {
	switch src := s.(type) {
	case bytesSource:
		return src.contentType
	case formSource:
		return src.form.ContentType()
	case nil:
		return ""
	default:
		return ""
	}
}

// contentTypeMatches reports whether got satisfies one of the accepted
// patterns; parameters after ";" are ignored.
func contentTypeMatches(accepted []string, got string) bool {
	if len(accepted) == 0 {
		return true
	}
	if i := strings.IndexByte(got, ';'); i >= 0 {
		got = got[:i]
	}
	got = strings.TrimSpace(got)
	for _, want := range accepted {
		if strings.EqualFold(want, got) {
			return true
		}
	}
	return false
}
