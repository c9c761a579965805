// Package transport performs the network I/O for one request attempt.
//
// The engine talks to a Transport through a small delegate contract: Send
// starts the attempt and returns a cancelable handle, the delegate receives
// the response head, body chunks, and exactly one completion. Net is the
// production adapter over net/http; Script is an in-memory adapter that
// replays a fixed sequence of outcomes for tests.
package transport
