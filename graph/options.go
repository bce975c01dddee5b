package graph

import "time"

// DefaultOptions returns the Options an Engine uses when a caller doesn't
// need to override individual fields. Mirrors the defaults named in §4.1/§5:
// a 10-minute per-node timeout, no wall-clock budget, and a default retry
// policy of 3 attempts with exponential backoff for nodes that don't declare
// their own. That policy has no Retryable predicate, so the engine treats
// every node error as non-retryable unless the caller sets
// DefaultRetryPolicy.Retryable.
//
// Example:
//
//	opts := graph.DefaultOptions()
//	opts.MaxSteps = 40
//	engine := graph.New(reducer, st, emitter, opts)
func DefaultOptions() Options {
	return Options{
		MaxSteps:           0,
		DefaultNodeTimeout: 10 * time.Minute,
		RunWallClockBudget: 0,
		DefaultRetryPolicy: &RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    10 * time.Second,
		},
	}
}
