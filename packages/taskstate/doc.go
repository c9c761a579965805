// Package taskstate tracks the lifecycle of a single request task.
//
// A task moves through Running, Processing, Canceled, and Completed, and the
// transitions are contended: the caller's goroutine may cancel while a
// transport callback is completing. Box arbitrates with a single atomic
// compare-and-swap so exactly one side wins.
package taskstate
