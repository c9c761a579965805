package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abdul-hamid-achik/httptask/packages/engine"
)

func TestBasic(t *testing.T) {
	a := Basic{Username: "user", Password: "pass"}
	headers := a.Headers(engine.NewRequest("GET", "http://api.test/x"))
	// base64("user:pass")
	assert.Equal(t, "Basic dXNlcjpwYXNz", headers["Authorization"])
}

func TestBearer(t *testing.T) {
	a := Bearer{Token: "tok-123"}
	headers := a.Headers(engine.NewRequest("GET", "http://api.test/x"))
	assert.Equal(t, "Bearer tok-123", headers["Authorization"])
}

func TestAPIKey(t *testing.T) {
	a := APIKey{Header: "X-API-Key", Value: "secret"}
	headers := a.Headers(engine.NewRequest("GET", "http://api.test/x"))
	assert.Equal(t, map[string]string{"X-API-Key": "secret"}, headers)
}
