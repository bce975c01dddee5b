// Package graph provides the core graph execution engine.
package graph

import "errors"

// ErrMaxStepsExceeded indicates that the graph execution reached the maximum
// allowed step count without completing. This prevents infinite loops and
// runaway executions. Engine.Run reports this condition via an EngineError
// with Code "MAX_STEPS_EXCEEDED"; this sentinel is kept for callers that
// prefer errors.Is over Code string comparison.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrInvalidRetryPolicy indicates a RetryPolicy failed validation: MaxAttempts
// must be at least 1, and when both are set MaxDelay must not be smaller than
// BaseDelay.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")
