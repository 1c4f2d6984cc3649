// ABOUTME: Tracks which executions' traces are expanded to show their steps
// ABOUTME: Executions default to collapsed; state is pinned across recompute

package trace

// ExpansionState remembers per-execution expansion across rebuilds of the
// trace view models. Every execution is collapsed until toggled, and a
// toggle survives recompute until the execution id itself disappears. Not
// safe for concurrent use; callers serialize through their own runtime lock.
type ExpansionState struct {
	expanded map[string]struct{}
}

func NewExpansionState() *ExpansionState {
	return &ExpansionState{expanded: make(map[string]struct{})}
}

// Toggle flips the expansion of one execution and reports the new state.
func (s *ExpansionState) Toggle(executionID string) bool {
	if executionID == "" {
		return false
	}
	if _, ok := s.expanded[executionID]; ok {
		delete(s.expanded, executionID)
		return false
	}
	s.expanded[executionID] = struct{}{}
	return true
}

func (s *ExpansionState) IsExpanded(executionID string) bool {
	_, ok := s.expanded[executionID]
	return ok
}

// Prune drops expansion entries for executions no longer present in the
// rebuilt view models, so a new execution id always starts collapsed.
func (s *ExpansionState) Prune(models []ViewModel) {
	live := make(map[string]struct{}, len(models))
	for _, model := range models {
		live[model.ExecutionID] = struct{}{}
	}
	for id := range s.expanded {
		if _, ok := live[id]; !ok {
			delete(s.expanded, id)
		}
	}
}
