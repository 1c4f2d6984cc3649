// ABOUTME: Per-conversation in-memory state owned by the runtime manager
// ABOUTME: Append-only messages and events, merge-based executions, snapshots

package runtime

import (
	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/dedupe"
	"github.com/2389/coven-console/internal/execution"
	"github.com/2389/coven-console/internal/snapshot"
)

// MaxRuntimeEvents bounds the per-conversation event ring. When the ring is
// full, the oldest event is dropped; the history ledger keeps the full log.
const MaxRuntimeEvents = 1000

// processedKeyCapacity bounds the duplicate-suppression window. Sized well
// past the event ring so redeliveries of anything still displayable are
// always caught.
const processedKeyCapacity = 4096

// Runtime is the full mutable state of one open conversation. All access
// goes through the Manager, which serializes mutation under its lock; the
// fields are never handed out directly, only as a copied View.
type Runtime struct {
	Conversation conversation.Conversation

	Messages   []conversation.Message
	Events     []execution.Event
	Executions []execution.Execution
	Snapshots  []snapshot.Snapshot

	Draft               string
	Mode                execution.Mode
	ModelID             string
	Status              conversation.ConnectionStatus
	InspectorTab        conversation.InspectorTab
	WorktreeRef         string
	SelectedExecutionID string
	Err                 string
	Hydrated            bool
	LastEventID         string

	// processed suppresses duplicate event deliveries; completed ensures at
	// most one terminal message per execution.
	processed *dedupe.KeySet
	completed *dedupe.KeySet
}

func newRuntime(conv conversation.Conversation) *Runtime {
	mode := conv.DefaultMode
	if mode == "" {
		mode = execution.ModeAgent
	}
	return &Runtime{
		Conversation: conv,
		Mode:         mode,
		ModelID:      conv.ModelID,
		Status:       conversation.StatusDisconnected,
		InspectorTab: conversation.InspectorTrace,
		processed:    dedupe.NewKeySet(processedKeyCapacity),
		completed:    dedupe.NewKeySet(processedKeyCapacity),
	}
}

// View is a read-only copy of a runtime's state, safe to hold across
// manager calls. Event payloads are shared but immutable once appended.
type View struct {
	Conversation conversation.Conversation

	Messages   []conversation.Message
	Events     []execution.Event
	Executions []execution.Execution
	Snapshots  []snapshot.Snapshot

	QueueState          conversation.QueueState
	Draft               string
	Mode                execution.Mode
	ModelID             string
	Status              conversation.ConnectionStatus
	InspectorTab        conversation.InspectorTab
	WorktreeRef         string
	SelectedExecutionID string
	Err                 string
	Hydrated            bool
	LastEventID         string
}

func (r *Runtime) view() View {
	events := make([]execution.Event, len(r.Events))
	copy(events, r.Events)
	executions := make([]execution.Execution, len(r.Executions))
	copy(executions, r.Executions)
	snapshots := make([]snapshot.Snapshot, len(r.Snapshots))
	copy(snapshots, r.Snapshots)

	return View{
		Conversation:        r.Conversation,
		Messages:            conversation.CloneMessages(r.Messages),
		Events:              events,
		Executions:          executions,
		Snapshots:           snapshots,
		QueueState:          conversation.DeriveQueueState(r.Executions),
		Draft:               r.Draft,
		Mode:                r.Mode,
		ModelID:             r.ModelID,
		Status:              r.Status,
		InspectorTab:        r.InspectorTab,
		WorktreeRef:         r.WorktreeRef,
		SelectedExecutionID: r.SelectedExecutionID,
		Err:                 r.Err,
		Hydrated:            r.Hydrated,
		LastEventID:         r.LastEventID,
	}
}
