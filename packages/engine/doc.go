// Package engine executes prepared HTTP requests as tracked, cancelable
// tasks.
//
// A Client turns a Request into a Task and drives it across one or more
// transport attempts. Between attempts it decides whether a failure warrants
// re-authentication (a 401 handled by the request's auth mechanism, at most
// once per task) or a generic retry (delegated to a RetryPolicy), and it
// guarantees the caller's completion callback fires exactly once with the
// final outcome no matter how many attempts were made or how cancellation
// raced them.
package engine
