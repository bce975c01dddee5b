// Package store provides persistence implementations for graph state.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("not found")

// Store provides an append-only audit trail of workflow execution steps.
//
// Each call to Engine.Run persists one StepRecord per visited node, giving
// callers a durable history of which nodes ran, in what order, and what the
// accumulated state looked like after each one. This is primarily a
// debugging and observability aid: the authoritative end-of-run result is
// returned directly from Run, not reconstructed from the store.
//
// Implementations can use:
// - In-memory storage (for testing, see memory.go).
// - Relational databases (MySQL, SQLite).
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// SaveStep persists the state after a node execution step.
	// Each step is identified by runID + step number.
	//
	// Parameters:
	// - runID: Unique identifier for this workflow execution.
	// - step: Sequential step number (starts at 1).
	// - nodeID: ID of the node that produced this state.
	// - state: The current workflow state after merging delta.
	//
	// Returns error if persistence fails.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest retrieves the most recent state for a given run.
	//
	// Parameters:
	// - runID: Unique identifier for the workflow execution.
	//
	// Returns:
	// - state: The most recent persisted state.
	// - step: The step number of the returned state.
	// - error: ErrNotFound if runID doesn't exist, or other persistence errors.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// LoadSteps retrieves the full ordered step history for a run.
	//
	// Used to render a trace of a run after the fact (e.g. for
	// post-incident debugging). Returns an empty slice,
	// not an error, if the run has no recorded steps.
	LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error)
}

// StepRecord represents a single execution step in the workflow history.
// Used internally by Store implementations to track step-by-step progression.
type StepRecord[S any] struct {
	// Step is the sequential step number (1-indexed).
	Step int

	// NodeID identifies which node produced this state.
	NodeID string

	// State is the workflow state after this step completed.
	State S
}
