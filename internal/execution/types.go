// ABOUTME: Core data model for executions and their protocol event stream
// ABOUTME: Defines the execution state machine, event types, and wire structs

package execution

import "time"

// State is the lifecycle state of an execution. Executions move forward
// through queued -> pending -> executing (-> confirming) and end in exactly
// one of the three terminal states.
type State string

const (
	StateQueued     State = "queued"
	StatePending    State = "pending"
	StateExecuting  State = "executing"
	StateConfirming State = "confirming"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Mode selects how the agent works on a submission.
type Mode string

const (
	ModeAgent Mode = "agent"
	ModePlan  Mode = "plan"
)

// EventType categorizes a protocol event.
type EventType string

const (
	EventMessageReceived  EventType = "message_received"
	EventExecutionStarted EventType = "execution_started"
	EventThinkingDelta    EventType = "thinking_delta"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
	EventDiffGenerated    EventType = "diff_generated"
	EventExecutionStopped EventType = "execution_stopped"
	EventExecutionDone    EventType = "execution_done"
	EventExecutionError   EventType = "execution_error"
)

// ModelSnapshot freezes the model an execution was created with. The
// conversation's current model may change afterwards; this does not.
type ModelSnapshot struct {
	ModelID string `json:"model_id"`
}

// Execution is one unit of agent work tied to a submitted message.
type Execution struct {
	ID             string        `json:"id"`
	WorkspaceID    string        `json:"workspace_id"`
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id"`
	State          State         `json:"state"`
	Mode           Mode          `json:"mode"`
	ModelID        string        `json:"model_id"`
	ModeSnapshot   Mode          `json:"mode_snapshot"`
	ModelSnapshot  ModelSnapshot `json:"model_snapshot"`
	QueueIndex     int           `json:"queue_index"`
	TraceID        string        `json:"trace_id"`
	TokensIn       *int          `json:"tokens_in,omitempty"`
	TokensOut      *int          `json:"tokens_out,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Event is a raw protocol event. Events are immutable once created; the
// runtime only ever appends them, in arrival order. Sequence is assigned by
// the producer and kept verbatim so out-of-order delivery stays auditable.
type Event struct {
	EventID        string         `json:"event_id"`
	ExecutionID    string         `json:"execution_id"`
	ConversationID string         `json:"conversation_id"`
	TraceID        string         `json:"trace_id"`
	Sequence       int64          `json:"sequence"`
	QueueIndex     int            `json:"queue_index"`
	Type           EventType      `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	Payload        map[string]any `json:"payload"`
}

// DedupKey returns a stable identity for an event, preferring the
// producer-assigned event id and falling back to its coordinates.
func (e Event) DedupKey() string {
	if id := trimmed(e.EventID); id != "" {
		return "id:" + id
	}
	return "fallback:" + e.ConversationID + ":" + e.ExecutionID + ":" + itoa(e.Sequence) + ":" + string(e.Type)
}
