package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	neturl "net/url"
	"time"
)

const (
	// DefaultTimeout is the default per-attempt timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second

	// chunkSize is the read granularity for streaming response bodies to the
	// delegate.
	chunkSize = 32 * 1024
)

// Net is the production Transport backed by net/http.
type Net struct {
	httpClient     *http.Client
	timeout        time.Duration
	followRedirect bool
	maxRedirects   int
	validateSSL    bool
	proxyURL       string
}

type NetOption func(*Net)

func NewNet(opts ...NetOption) *Net {
	n := &Net{
		timeout:        DefaultTimeout,
		followRedirect: true,
		maxRedirects:   DefaultMaxRedirects,
		validateSSL:    true,
	}

	for _, opt := range opts {
		opt(n)
	}

	tr := &http.Transport{
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}

	if !n.validateSSL {
		tr.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	if n.proxyURL != "" {
		proxyURL, err := neturl.Parse(n.proxyURL)
		if err == nil {
			tr.Proxy = http.ProxyURL(proxyURL)
		}
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !n.followRedirect {
			return http.ErrUseLastResponse
		}
		if len(via) >= n.maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}

	n.httpClient = &http.Client{
		Transport:     tr,
		Timeout:       n.timeout,
		CheckRedirect: redirectPolicy,
	}

	return n
}

func WithTimeout(d time.Duration) NetOption {
	return func(n *Net) {
		n.timeout = d
	}
}

func WithFollowRedirects(follow bool) NetOption {
	return func(n *Net) {
		n.followRedirect = follow
	}
}

func WithMaxRedirects(max int) NetOption {
	return func(n *Net) {
		n.maxRedirects = max
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) NetOption {
	return func(n *Net) {
		n.validateSSL = validate
	}
}

// WithProxy sets the proxy URL for all requests
func WithProxy(proxyURL string) NetOption {
	return func(n *Net) {
		n.proxyURL = proxyURL
	}
}

type netHandle struct {
	cancel context.CancelFunc
}

func (h *netHandle) Cancel() {
	h.cancel()
}

// Send starts the attempt on its own goroutine and streams the outcome to d.
func (n *Net) Send(w *Wire, body BodySource, d Delegate) (Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var reader io.Reader
	if body != nil {
		r, err := body.Open()
		if err != nil {
			cancel()
			return nil, err
		}
		reader = r
	}

	req, err := http.NewRequestWithContext(ctx, w.Method, w.URL, reader)
	if err != nil {
		cancel()
		return nil, err
	}
	for k, vs := range w.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	go func() {
		defer cancel()
		resp, err := n.httpClient.Do(req)
		if err != nil {
			d.OnComplete(classify(ctx, err))
			return
		}
		defer resp.Body.Close()

		d.OnResponse(resp.StatusCode, resp.Header)

		buf := make([]byte, chunkSize)
		for {
			c, err := resp.Body.Read(buf)
			if c > 0 {
				d.OnData(buf[:c])
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					d.OnComplete(nil)
				} else {
					d.OnComplete(classify(ctx, err))
				}
				return
			}
		}
	}()

	return &netHandle{cancel: cancel}, nil
}

// classify maps a transport failure that raced a cancellation onto
// context.Canceled so the engine sees one canonical cancellation error.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
		return context.Canceled
	}
	return err
}
