// Package body synthesizes multipart/form-data request bodies on demand.
//
// Instead of materializing the whole payload, a Form produces an Encoder, a
// pull-based stream that emits the multipart byte layout incrementally as the
// transport drains it. Parts may be deferred: a PendingPart runs a user
// callback exactly once and memoizes the result, so retried requests reuse
// the same bytes without re-invoking the callback.
package body
