// ABOUTME: Conversation-level data model shared by the runtime, snapshots, and history
// ABOUTME: Defines conversations, messages, connection status, and derived queue state

package conversation

import (
	"time"

	"github.com/2389/coven-console/internal/execution"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConnectionStatus is the state of the live event stream for a conversation.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// QueueState summarizes all executions in a conversation.
type QueueState string

const (
	QueueIdle    QueueState = "idle"
	QueueQueued  QueueState = "queued"
	QueueRunning QueueState = "running"
)

// InspectorTab names the inspector panel a client last had open.
type InspectorTab string

const (
	InspectorDiff  InspectorTab = "diff"
	InspectorTrace InspectorTab = "trace"
)

// Conversation is the identity and user-editable settings of one conversation.
type Conversation struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	DefaultMode execution.Mode `json:"default_mode"`
	ModelID     string         `json:"model_id"`
}

// Message is one entry in a conversation's display order. Messages are
// append-only except for rollback truncation. QueueIndex links a message to
// its execution's submission slot; nil for messages outside the queue.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	QueueIndex     *int      `json:"queue_index,omitempty"`
	CanRollback    bool      `json:"can_rollback"`
	CreatedAt      time.Time `json:"created_at"`
}

// CloneMessages returns an independent copy of a message list.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = m
		if m.QueueIndex != nil {
			qi := *m.QueueIndex
			out[i].QueueIndex = &qi
		}
	}
	return out
}

// DeriveQueueState computes the aggregate queue state. Running takes
// priority over queued: a conversation with one executing and one queued
// execution is running, not queued.
func DeriveQueueState(executions []execution.Execution) QueueState {
	for _, e := range executions {
		if e.State == execution.StatePending || e.State == execution.StateExecuting {
			return QueueRunning
		}
	}
	for _, e := range executions {
		if e.State == execution.StateQueued {
			return QueueQueued
		}
	}
	return QueueIdle
}

// CountActive reports how many executions are actively running: pending,
// executing, or confirming. Queued executions are waiting, not active, so
// they alone never keep the elapsed ticker alive.
func CountActive(executions []execution.Execution) int {
	n := 0
	for _, e := range execution.NormalizeList(executions) {
		switch e.State {
		case execution.StatePending, execution.StateExecuting, execution.StateConfirming:
			n++
		}
	}
	return n
}
