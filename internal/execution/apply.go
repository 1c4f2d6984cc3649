// ABOUTME: Event-driven execution state transitions and lazy placeholder creation
// ABOUTME: Maps lifecycle event types onto the execution state machine

package execution

import "strings"

// stateByEventType maps lifecycle events to the state they imply.
// confirmation_resolved is handled separately because the resulting state
// depends on the decision carried in the payload.
var stateByEventType = map[EventType]State{
	EventExecutionStarted: StateExecuting,
	EventExecutionStopped: StateCancelled,
	EventExecutionDone:    StateCompleted,
	EventExecutionError:   StateFailed,
}

const eventTypeConfirmationRequired EventType = "confirmation_required"
const eventTypeConfirmationResolved EventType = "confirmation_resolved"

// ApplyEvent advances the execution's state for a lifecycle event and stamps
// UpdatedAt from the event. Non-lifecycle events only refresh UpdatedAt.
func ApplyEvent(e *Execution, ev Event) {
	switch ev.Type {
	case eventTypeConfirmationResolved:
		decision := strings.ToLower(strings.TrimSpace(stringField(ev.Payload, "decision")))
		if decision == "deny" {
			e.State = StateCancelled
		} else {
			e.State = StateExecuting
		}
	case eventTypeConfirmationRequired:
		e.State = StateConfirming
	default:
		if next, ok := stateByEventType[ev.Type]; ok {
			e.State = next
		}
	}
	if e.MessageID == "" {
		e.MessageID = stringField(ev.Payload, "message_id")
	}
	e.UpdatedAt = ev.Timestamp
}

// NewFromEvent builds a queued placeholder for an execution the runtime has
// not seen yet, carrying over what the event knows about it.
func NewFromEvent(conversationID string, ev Event) Execution {
	return Execution{
		ID:             ev.ExecutionID,
		ConversationID: conversationID,
		MessageID:      stringField(ev.Payload, "message_id"),
		State:          StateQueued,
		Mode:           ModeAgent,
		ModeSnapshot:   ModeAgent,
		QueueIndex:     ev.QueueIndex,
		TraceID:        ev.TraceID,
		CreatedAt:      ev.Timestamp,
		UpdatedAt:      ev.Timestamp,
	}
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}
