// ABOUTME: Point-in-time conversation snapshots for rollback support
// ABOUTME: Builds immutable deep-copy captures and finds the one for a message

package snapshot

import (
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/execution"
)

// ExecutionRecord is the reduced execution projection carried by a snapshot.
// It keeps just enough to restore display state after a rollback.
type ExecutionRecord struct {
	ID         string          `json:"id"`
	State      execution.State `json:"state"`
	QueueIndex int             `json:"queue_index"`
	MessageID  string          `json:"message_id"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// InspectorState captures the inspector panel selection at snapshot time.
type InspectorState struct {
	Tab conversation.InspectorTab `json:"tab"`
}

// Snapshot is an immutable point-in-time capture of a conversation's state.
// Snapshots form an append-only log and are never mutated after creation;
// the capture itself is already a deep copy, so readers need not copy again.
type Snapshot struct {
	ID                     string                   `json:"id"`
	ConversationID         string                   `json:"conversation_id"`
	RollbackPointMessageID string                   `json:"rollback_point_message_id"`
	QueueState             conversation.QueueState  `json:"queue_state"`
	WorktreeRef            string                   `json:"worktree_ref"`
	InspectorState         InspectorState           `json:"inspector_state"`
	Messages               []conversation.Message   `json:"messages"`
	ExecutionRecords       []ExecutionRecord        `json:"execution_records"`
	ExecutionIDs           []string                 `json:"execution_ids"`
	CreatedAt              time.Time                `json:"created_at"`
}

// BuildInput bundles the runtime fields a snapshot captures.
type BuildInput struct {
	ConversationID         string
	RollbackPointMessageID string
	Messages               []conversation.Message
	Executions             []execution.Execution
	WorktreeRef            string
	InspectorTab           conversation.InspectorTab
}

// Build captures a snapshot from the given runtime fields, stamped with a
// fresh id and the provided creation time. Executions are normalized before
// projection so duplicate reports never leak into the capture.
func Build(in BuildInput, now time.Time) Snapshot {
	normalized := execution.NormalizeList(in.Executions)

	records := make([]ExecutionRecord, 0, len(normalized))
	ids := make([]string, 0, len(normalized))
	for _, e := range normalized {
		records = append(records, ExecutionRecord{
			ID:         e.ID,
			State:      e.State,
			QueueIndex: e.QueueIndex,
			MessageID:  e.MessageID,
			UpdatedAt:  e.UpdatedAt,
		})
		ids = append(ids, e.ID)
	}

	return Snapshot{
		ID:                     uuid.New().String(),
		ConversationID:         in.ConversationID,
		RollbackPointMessageID: in.RollbackPointMessageID,
		QueueState:             conversation.DeriveQueueState(normalized),
		WorktreeRef:            in.WorktreeRef,
		InspectorState:         InspectorState{Tab: in.InspectorTab},
		Messages:               conversation.CloneMessages(in.Messages),
		ExecutionRecords:       records,
		ExecutionIDs:           ids,
		CreatedAt:              now,
	}
}

// FindForMessage returns the most recently created snapshot whose rollback
// point is the given message, scanning newest to oldest.
func FindForMessage(snapshots []Snapshot, messageID string) (Snapshot, bool) {
	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].RollbackPointMessageID == messageID {
			return snapshots[i], true
		}
	}
	return Snapshot{}, false
}

// RestoreExecutions projects the snapshot's execution records back into full
// execution values. Records that still exist in the current list keep their
// full fields with state, queue index, message id, and update time rewound;
// records with no surviving counterpart are rebuilt as minimal executions.
func RestoreExecutions(snap Snapshot, current []execution.Execution, now time.Time) []execution.Execution {
	existing := make(map[string]execution.Execution, len(current))
	for _, e := range execution.NormalizeList(current) {
		existing[e.ID] = e
	}

	if len(snap.ExecutionRecords) > 0 {
		out := make([]execution.Execution, 0, len(snap.ExecutionRecords))
		for _, rec := range snap.ExecutionRecords {
			if e, ok := existing[rec.ID]; ok {
				e.State = rec.State
				e.QueueIndex = rec.QueueIndex
				e.MessageID = rec.MessageID
				e.UpdatedAt = rec.UpdatedAt
				out = append(out, e)
				continue
			}
			ts := rec.UpdatedAt
			if ts.IsZero() {
				ts = now
			}
			out = append(out, execution.Execution{
				ID:             rec.ID,
				ConversationID: snap.ConversationID,
				MessageID:      rec.MessageID,
				State:          rec.State,
				Mode:           execution.ModeAgent,
				ModeSnapshot:   execution.ModeAgent,
				QueueIndex:     rec.QueueIndex,
				CreatedAt:      ts,
				UpdatedAt:      ts,
			})
		}
		return out
	}

	// Snapshots taken before execution records were captured only carry ids.
	out := make([]execution.Execution, 0, len(snap.ExecutionIDs))
	for _, id := range snap.ExecutionIDs {
		if e, ok := existing[id]; ok {
			out = append(out, e)
		}
	}
	return out
}
