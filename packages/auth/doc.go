// Package auth provides authentication mechanisms for the request engine:
// Basic, Bearer, and API-key headers, with OAuth2 client-credentials
// refresh in the oauth2 subpackage. A mechanism that can recover from a 401
// additionally implements engine.UnauthorizedHandler.
package auth
