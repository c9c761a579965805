// Package retry provides ready-made retry policies for the request engine.
//
// A policy answers one question per failed attempt, asynchronously: try
// again or not. Delay lives inside the policy, so backoff is just a policy
// that waits before answering yes.
package retry
