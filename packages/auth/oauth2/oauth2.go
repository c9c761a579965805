// Package oauth2 provides a refreshable OAuth2 client-credentials mechanism
// for the request engine, built on golang.org/x/oauth2.
package oauth2

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/abdul-hamid-achik/httptask/packages/engine"
)

// expirySkew is subtracted from token expiry to absorb clock drift.
const expirySkew = 30 * time.Second

// ClientCredentials authenticates requests with a bearer token obtained
// through the OAuth2 client-credentials grant. Tokens are cached until they
// expire; a 401 triggers at most one forced refresh per task, coordinated
// through the engine's opaque attempt token.
type ClientCredentials struct {
	cfg *clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

// NewClientCredentials configures the mechanism. Token requests go through
// x/oauth2's own HTTP stack, not the engine, so they cannot recurse into
// default auth.
func NewClientCredentials(tokenURL, clientID, clientSecret string, scopes ...string) *ClientCredentials {
	return &ClientCredentials{
		cfg: &clientcredentials.Config{
			TokenURL:     tokenURL,
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
		},
	}
}

// Headers returns the Authorization header for one attempt, fetching a token
// on first use or after expiry. A fetch failure yields no header; the server
// rejection then surfaces through the normal 401 path.
func (c *ClientCredentials) Headers(req *engine.Request) map[string]string {
	tok, err := c.current()
	if err != nil {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + tok.AccessToken}
}

// Token reports which access token the attempt is about to use. The engine
// hands it back on a 401 so HandleUnauthorized can tell a stale attempt from
// a genuinely rejected fresh token.
func (c *ClientCredentials) Token(req *engine.Request) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return ""
	}
	return c.token.AccessToken
}

// HandleUnauthorized reacts to a 401. If the failing attempt used a token
// that has since been replaced, the fresh one is already cached and the
// attempt is simply replayed. Otherwise the rejected token is discarded and
// a new one fetched; the retry decision follows the fetch outcome.
func (c *ClientCredentials) HandleUnauthorized(resp *engine.Response, body []byte, task *engine.Task, token any, retry func(bool)) {
	used, _ := token.(string)

	c.mu.Lock()
	current := ""
	if c.token != nil {
		current = c.token.AccessToken
	}
	if used != "" && used != current {
		c.mu.Unlock()
		retry(true)
		return
	}
	c.token = nil
	c.mu.Unlock()

	_, err := c.refresh()
	retry(err == nil)
}

func (c *ClientCredentials) current() (*oauth2.Token, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != nil && (tok.Expiry.IsZero() || time.Now().Add(expirySkew).Before(tok.Expiry)) {
		return tok, nil
	}
	return c.refresh()
}

func (c *ClientCredentials) refresh() (*oauth2.Token, error) {
	tok, err := c.cfg.Token(context.Background())
	if err != nil {
		return nil, fmt.Errorf("fetching token: %w", err)
	}
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return tok, nil
}

var (
	_ engine.TokenAuth           = (*ClientCredentials)(nil)
	_ engine.UnauthorizedHandler = (*ClientCredentials)(nil)
)
