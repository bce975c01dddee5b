package agent

// Reducer merges a node's delta into the previous State, matching the
// per-field contracts of §3.1.
//
// Merge rules, field by field:
//   - Scalars (UserRequest, IterationCount, MaxIterations, StepCount,
//     MaxSteps, Flags, SQLQuery, QueryType, SynthesizedContext, CanAnswer,
//     FinalAnswer, LastErrorKind, IsFinalAnswerPossibleWithoutTools,
//     RegistryUnreachable): replace-if-nonzero — a delta carrying the zero
//     value means "this node didn't touch the field".
//   - DiscoveredServices: set exactly once. A delta setting
//     ServicesDiscovered=true is only honored if the previous state hadn't
//     already discovered services (§3.1 invariant).
//   - PlannedToolCalls: rewritten wholesale by planning nodes (analyze_request,
//     plan_refined_queries); a non-nil delta replaces, it does not append.
//   - ToolResults: append-only. The delta carries only the newly produced
//     documents for this step.
//   - PreviousSQLQueries: append-only; a delta entry is only appended when
//     non-empty and distinct from the current last entry, preserving the
//     history-monotonicity invariant (§8.1).
//   - RetryCounts: merged key-wise; keys present in the delta overwrite the
//     previous count for that key, other keys are untouched.
//   - Visited: append-only log entry per node execution.
//   - SQLErr: replace-if-non-nil. Nodes that want to clear a prior error
//     (e.g. execute_sql succeeding after a refinement) return a delta with
//     SQLErr pointing at a zero-value SQLError{} sentinel understood by
//     convention as "no error" (nodes write it as &agent.SQLError{}); the
//     reducer stores that sentinel as nil. A nil delta leaves the prior error.
func Reducer(prev, delta State) State {
	next := prev

	if delta.UserRequest != "" {
		next.UserRequest = delta.UserRequest
	}
	if delta.IterationCount != 0 {
		next.IterationCount = delta.IterationCount
	}
	if delta.MaxIterations != 0 {
		next.MaxIterations = delta.MaxIterations
	}
	if delta.StepCount != 0 {
		next.StepCount = delta.StepCount
	}
	if delta.MaxSteps != 0 {
		next.MaxSteps = delta.MaxSteps
	}
	if delta.Flags != (RequestFlags{}) {
		next.Flags = delta.Flags
	}

	if delta.ServicesDiscovered && !prev.ServicesDiscovered {
		next.DiscoveredServices = delta.DiscoveredServices
		next.ServicesDiscovered = true
	}

	if delta.PlannedToolCalls != nil {
		next.PlannedToolCalls = delta.PlannedToolCalls
	}
	if len(delta.ToolResults) > 0 {
		next.ToolResults = append(append([]NormalizedDocument{}, prev.ToolResults...), delta.ToolResults...)
	}

	for _, q := range delta.PreviousSQLQueries {
		if q == "" {
			continue
		}
		if len(next.PreviousSQLQueries) > 0 && next.PreviousSQLQueries[len(next.PreviousSQLQueries)-1] == q {
			continue
		}
		next.PreviousSQLQueries = append(next.PreviousSQLQueries, q)
	}

	if delta.SQLQuery != "" {
		next.SQLQuery = delta.SQLQuery
	}
	if delta.SQLErr != nil {
		if *delta.SQLErr == (SQLError{}) {
			next.SQLErr = nil
		} else {
			next.SQLErr = delta.SQLErr
		}
	}
	if delta.QueryType != "" {
		next.QueryType = delta.QueryType
	}
	if delta.SynthesizedContext != "" {
		next.SynthesizedContext = delta.SynthesizedContext
	}
	if delta.CanAnswer != "" {
		next.CanAnswer = delta.CanAnswer
	}
	if delta.FinalAnswer != "" {
		next.FinalAnswer = delta.FinalAnswer
	}

	if delta.RetryCounts != nil {
		merged := make(map[string]int, len(prev.RetryCounts)+len(delta.RetryCounts))
		for k, v := range prev.RetryCounts {
			merged[k] = v
		}
		for k, v := range delta.RetryCounts {
			merged[k] = v
		}
		next.RetryCounts = merged
	}

	if len(delta.Visited) > 0 {
		next.Visited = append(append([]NodeVisit{}, prev.Visited...), delta.Visited...)
	}

	if delta.LastErrorKind != "" {
		next.LastErrorKind = delta.LastErrorKind
	}
	if delta.IsFinalAnswerPossibleWithoutTools {
		next.IsFinalAnswerPossibleWithoutTools = true
	}
	if delta.RegistryUnreachable {
		next.RegistryUnreachable = true
	}

	return next
}
