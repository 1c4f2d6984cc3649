// ABOUTME: Adapts raw stream payloads into Events, covering both event dialects
// ABOUTME: Maps run_* producer events onto execution event types by payload shape

package execution

import (
	"strconv"
	"strings"
	"time"
)

var executionEventTypes = map[EventType]struct{}{
	EventMessageReceived:          {},
	EventExecutionStarted:         {},
	EventThinkingDelta:            {},
	EventToolCall:                 {},
	EventToolResult:               {},
	EventDiffGenerated:            {},
	EventExecutionStopped:         {},
	EventExecutionDone:            {},
	EventExecutionError:           {},
	eventTypeConfirmationRequired: {},
	eventTypeConfirmationResolved: {},
}

// runToExecutionType maps lifecycle run events to execution event types.
// run_output_delta and run_approval_needed need payload inspection instead.
var runToExecutionType = map[string]EventType{
	"run_queued":    EventMessageReceived,
	"run_started":   EventExecutionStarted,
	"run_completed": EventExecutionDone,
	"run_failed":    EventExecutionError,
	"run_cancelled": EventExecutionStopped,
}

// FromWirePayload converts a deserialized stream payload into an Event.
// Producers speak two dialects: legacy execution events and the newer run_*
// events keyed by run_id/session_id. Returns false for payloads that carry
// no recognizable event type. Timestamps missing from the wire default to
// now so downstream ordering stays sane.
func FromWirePayload(raw map[string]any, fallbackConversationID string, now time.Time) (Event, bool) {
	if raw == nil {
		return Event{}, false
	}

	rawType := asString(raw["type"])
	if rawType == "" {
		return Event{}, false
	}

	if _, ok := runToExecutionType[rawType]; ok || rawType == "run_output_delta" || rawType == "run_approval_needed" {
		return adaptRunEvent(raw, rawType, fallbackConversationID, now), true
	}

	if _, ok := executionEventTypes[EventType(rawType)]; !ok {
		return Event{}, false
	}

	payload := asRecord(raw["payload"])
	return Event{
		EventID:        asString(raw["event_id"]),
		ExecutionID:    asString(raw["execution_id"]),
		ConversationID: resolveConversationID(asString(raw["conversation_id"]), fallbackConversationID),
		TraceID:        asString(raw["trace_id"]),
		Sequence:       asInt64(raw["sequence"], 0),
		QueueIndex:     int(asInt64(raw["queue_index"], asInt64(payload["queue_index"], 0))),
		Type:           EventType(rawType),
		Timestamp:      asTimestamp(raw["timestamp"], now),
		Payload:        payload,
	}, true
}

// IsResync reports whether the event is a producer request to rebuild state
// from a fresh detail fetch instead of applying the event incrementally.
func IsResync(ev Event) bool {
	if ev.Type != EventThinkingDelta || ev.Payload == nil {
		return false
	}
	required, _ := ev.Payload["resync_required"].(bool)
	reason, _ := ev.Payload["reason"].(string)
	return required && reason == "last_event_id_not_found"
}

// LatestEventIDFromResync extracts the producer's newest event id from a
// resync event, or "" when absent.
func LatestEventIDFromResync(ev Event) string {
	if ev.Payload == nil {
		return ""
	}
	return asString(ev.Payload["latest_event_id"])
}

func adaptRunEvent(raw map[string]any, runType, fallbackConversationID string, now time.Time) Event {
	payload := asRecord(raw["payload"])
	ev := Event{
		EventID:        asString(raw["event_id"]),
		ExecutionID:    asString(raw["run_id"]),
		ConversationID: resolveConversationID(asString(raw["session_id"]), fallbackConversationID),
		TraceID:        asString(raw["trace_id"]),
		Sequence:       asInt64(raw["sequence"], 0),
		QueueIndex:     int(asInt64(raw["queue_index"], asInt64(payload["queue_index"], 0))),
		Timestamp:      asTimestamp(raw["timestamp"], now),
		Payload:        payload,
	}
	if ev.TraceID == "" {
		ev.TraceID = asString(payload["trace_id"])
	}

	switch runType {
	case "run_output_delta":
		ev.Type = typeForOutputDelta(payload)
	case "run_approval_needed":
		ev.Type = EventThinkingDelta
		if asString(payload["stage"]) == "" {
			payload["stage"] = "run_approval_needed"
		}
		if asString(payload["run_state"]) == "" {
			payload["run_state"] = "waiting_approval"
		}
		ev.Payload = payload
	default:
		ev.Type = runToExecutionType[runType]
	}
	return ev
}

// typeForOutputDelta infers the execution event type from an output delta's
// payload shape: diff arrays, tool call/result pairs keyed by call_id or
// name+input/output, and free-form thinking otherwise.
func typeForOutputDelta(payload map[string]any) EventType {
	if _, ok := payload["diff"].([]any); ok {
		return EventDiffGenerated
	}
	if asString(payload["call_id"]) != "" {
		if _, hasOutput := payload["output"]; hasOutput {
			return EventToolResult
		}
		if _, isBool := payload["ok"].(bool); isBool {
			return EventToolResult
		}
		return EventToolCall
	}
	if asString(payload["name"]) != "" {
		if _, hasOutput := payload["output"]; hasOutput {
			return EventToolResult
		}
		if _, hasInput := payload["input"]; hasInput {
			return EventToolCall
		}
	}
	return EventThinkingDelta
}

func resolveConversationID(raw, fallback string) string {
	if raw != "" {
		return raw
	}
	return strings.TrimSpace(fallback)
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asInt64(v any, fallback int64) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func asTimestamp(v any, now time.Time) time.Time {
	raw := asString(v)
	if raw == "" {
		return now
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return now
	}
	return ts
}

func asRecord(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}
