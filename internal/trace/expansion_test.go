// ABOUTME: Tests for per-execution expansion state
// ABOUTME: Covers toggling, default collapse, and pruning against live executions

package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpansionState_DefaultsCollapsed(t *testing.T) {
	state := NewExpansionState()
	assert.False(t, state.IsExpanded("exec-1"))
}

func TestExpansionState_ToggleFlips(t *testing.T) {
	state := NewExpansionState()

	assert.True(t, state.Toggle("exec-1"))
	assert.True(t, state.IsExpanded("exec-1"))

	assert.False(t, state.Toggle("exec-1"))
	assert.False(t, state.IsExpanded("exec-1"))
}

func TestExpansionState_EmptyIDIgnored(t *testing.T) {
	state := NewExpansionState()
	assert.False(t, state.Toggle(""))
	assert.False(t, state.IsExpanded(""))
}

func TestExpansionState_SurvivesRecompute(t *testing.T) {
	state := NewExpansionState()
	state.Toggle("exec-1")

	// Rebuilding view models with the same execution keeps the toggle; a
	// freshly appearing execution starts collapsed.
	state.Prune([]ViewModel{{ExecutionID: "exec-1"}, {ExecutionID: "exec-2"}})

	assert.True(t, state.IsExpanded("exec-1"))
	assert.False(t, state.IsExpanded("exec-2"))
}

func TestExpansionState_PruneDropsDeadExecutions(t *testing.T) {
	state := NewExpansionState()
	state.Toggle("live")
	state.Toggle("gone")

	state.Prune([]ViewModel{{ExecutionID: "live"}})

	assert.True(t, state.IsExpanded("live"))
	assert.False(t, state.IsExpanded("gone"))
}
