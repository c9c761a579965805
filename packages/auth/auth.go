package auth

import (
	"encoding/base64"

	"github.com/abdul-hamid-achik/httptask/packages/engine"
)

// Basic sends an Authorization: Basic header.
type Basic struct {
	Username string
	Password string
}

func (b Basic) Headers(req *engine.Request) map[string]string {
	creds := base64.StdEncoding.EncodeToString([]byte(b.Username + ":" + b.Password))
	return map[string]string{"Authorization": "Basic " + creds}
}

// Bearer sends a static Authorization: Bearer token.
type Bearer struct {
	Token string
}

func (b Bearer) Headers(req *engine.Request) map[string]string {
	return map[string]string{"Authorization": "Bearer " + b.Token}
}

// APIKey sends a fixed key in a custom header.
type APIKey struct {
	Header string
	Value  string
}

func (a APIKey) Headers(req *engine.Request) map[string]string {
	return map[string]string{a.Header: a.Value}
}

var (
	_ engine.Auth = Basic{}
	_ engine.Auth = Bearer{}
	_ engine.Auth = APIKey{}
)
