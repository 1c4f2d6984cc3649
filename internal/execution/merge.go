// ABOUTME: Dedupe and rank-based merging of execution records by identity
// ABOUTME: Guarantees terminal states never regress when stale reports arrive late

package execution

import (
	"strconv"
	"strings"
)

// stateRank orders execution states for merging. The three terminal states
// share the top rank: once terminal, an execution never moves back, and no
// terminal state outranks another on its own.
var stateRank = map[State]int{
	StateQueued:     0,
	StatePending:    1,
	StateExecuting:  2,
	StateConfirming: 3,
	StateCompleted:  4,
	StateFailed:     4,
	StateCancelled:  4,
}

// IsTerminal reports whether the state is completed, failed, or cancelled.
func IsTerminal(s State) bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Clone returns an independent copy of the execution with a trimmed id.
func Clone(e Execution) Execution {
	c := e
	c.ID = strings.TrimSpace(e.ID)
	if e.TokensIn != nil {
		v := *e.TokensIn
		c.TokensIn = &v
	}
	if e.TokensOut != nil {
		v := *e.TokensOut
		c.TokensOut = &v
	}
	return c
}

// ResolveMergedState picks the state that should survive when two reports for
// the same execution disagree. Higher rank wins. Two distinct terminal
// reports tie on rank; the one updated most recently wins, and on an exact
// timestamp tie the incoming (later-arriving) report wins.
func ResolveMergedState(current, incoming Execution) State {
	cr, ir := stateRank[current.State], stateRank[incoming.State]
	if ir > cr {
		return incoming.State
	}
	if ir < cr {
		return current.State
	}
	if current.State == incoming.State || !IsTerminal(current.State) {
		return incoming.State
	}
	if incoming.UpdatedAt.Before(current.UpdatedAt) {
		return current.State
	}
	return incoming.State
}

// Merge combines a later-arriving report into an already-known one. Incoming
// fields win except where the current record carries information the incoming
// one lacks: identity fields prefer non-empty values, CreatedAt keeps the
// earliest known time, UpdatedAt the latest, and State follows
// ResolveMergedState.
func Merge(current, incoming Execution) Execution {
	merged := incoming
	merged.State = ResolveMergedState(current, incoming)
	merged.WorkspaceID = preferNonEmpty(current.WorkspaceID, incoming.WorkspaceID)
	merged.ConversationID = preferNonEmpty(current.ConversationID, incoming.ConversationID)
	merged.MessageID = preferNonEmpty(current.MessageID, incoming.MessageID)
	merged.ModelID = preferNonEmpty(current.ModelID, incoming.ModelID)
	merged.TraceID = preferNonEmpty(current.TraceID, incoming.TraceID)
	if merged.ModeSnapshot == "" {
		merged.ModeSnapshot = current.ModeSnapshot
	}
	if merged.ModelSnapshot.ModelID == "" {
		merged.ModelSnapshot = current.ModelSnapshot
	}
	if merged.TokensIn == nil {
		merged.TokensIn = current.TokensIn
	}
	if merged.TokensOut == nil {
		merged.TokensOut = current.TokensOut
	}
	if incoming.CreatedAt.IsZero() || (!current.CreatedAt.IsZero() && current.CreatedAt.Before(incoming.CreatedAt)) {
		merged.CreatedAt = current.CreatedAt
	}
	if incoming.UpdatedAt.IsZero() || (!current.UpdatedAt.IsZero() && current.UpdatedAt.After(incoming.UpdatedAt)) {
		merged.UpdatedAt = current.UpdatedAt
	}
	return merged
}

// NormalizeList collapses duplicate execution records to one entry per id.
// Output preserves the first-seen order of distinct ids, not input order.
// Deterministic and side-effect free.
func NormalizeList(executions []Execution) []Execution {
	if len(executions) <= 1 {
		return executions
	}

	byID := make(map[string]Execution, len(executions))
	order := make([]string, 0, len(executions))
	for _, e := range executions {
		normalized := Clone(e)
		existing, ok := byID[normalized.ID]
		if !ok {
			byID[normalized.ID] = normalized
			order = append(order, normalized.ID)
			continue
		}
		byID[normalized.ID] = Merge(existing, normalized)
	}

	out := make([]Execution, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func preferNonEmpty(current, incoming string) string {
	if v := strings.TrimSpace(incoming); v != "" {
		return v
	}
	return current
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
