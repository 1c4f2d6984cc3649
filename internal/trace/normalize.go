// ABOUTME: Normalizes raw protocol events into per-execution trace events
// ABOUTME: Classifies stages, redacts payloads, and precomputes display summaries

package trace

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/2389/coven-console/internal/execution"
)

// Stage classifies what a thinking delta represents within an execution.
type Stage string

const (
	StageModelCall        Stage = "model_call"
	StageAssistantOutput  Stage = "assistant_output"
	StageApprovalNeeded   Stage = "run_approval_needed"
	StageApprovalGranted  Stage = "approval_granted"
	StageApprovalDenied   Stage = "approval_denied"
	StageApprovalResolved Stage = "approval_resolved"
	StageTurnLimit        Stage = "turn_limit_reached"
	StageOther            Stage = "other"
)

// renderedEventTypes are the protocol event types that become trace steps.
// Everything else (queue bookkeeping, diffs, terminal markers) is surfaced
// through other parts of the UI.
var renderedEventTypes = map[execution.EventType]struct{}{
	execution.EventExecutionStarted: {},
	execution.EventThinkingDelta:    {},
	execution.EventToolCall:         {},
	execution.EventToolResult:       {},
}

// NormalizedEvent is a raw protocol event projected into display terms:
// payload redacted, summaries precomputed, stage classified. Derived and
// never persisted.
type NormalizedEvent struct {
	ID                string
	ExecutionID       string
	QueueIndex        int
	Sequence          int64
	Timestamp         time.Time
	Type              execution.EventType
	Stage             Stage
	Payload           map[string]any
	RawPayload        string
	ReasoningSentence string
	OperationSummary  string
	ResultSummary     string
	RiskLevel         string
	ToolName          string
	CallID            string
	IsSuccess         *bool
}

// GroupByExecution normalizes the renderable events and groups them by
// execution id, each group sorted by producer sequence and then timestamp.
// Events without an execution id are skipped.
func GroupByExecution(events []execution.Event) map[string][]NormalizedEvent {
	grouped := make(map[string][]NormalizedEvent)

	for i, ev := range events {
		if _, ok := renderedEventTypes[ev.Type]; !ok {
			continue
		}
		executionID := strings.TrimSpace(ev.ExecutionID)
		if executionID == "" {
			continue
		}
		grouped[executionID] = append(grouped[executionID], normalizeEvent(ev, i))
	}

	for executionID, list := range grouped {
		sort.SliceStable(list, func(a, b int) bool {
			if list[a].Sequence != list[b].Sequence {
				return list[a].Sequence < list[b].Sequence
			}
			return list[a].Timestamp.Before(list[b].Timestamp)
		})
		grouped[executionID] = list
	}

	return grouped
}

func normalizeEvent(ev execution.Event, index int) NormalizedEvent {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payload = RedactSensitivePayload(payload)

	stage := StageOther
	if ev.Type == execution.EventThinkingDelta {
		stage = normalizeStage(AsString(payload["stage"]))
	}

	var isSuccess *bool
	if ev.Type == execution.EventToolResult {
		if ok, isBool := payload["ok"].(bool); isBool {
			v := ok
			isSuccess = &v
		}
	}

	operationSummary := ""
	if ev.Type == execution.EventToolCall || stage == StageApprovalNeeded {
		operationSummary = ExtractOperationSummary(payload)
	}

	resultSummary := ""
	if ev.Type == execution.EventToolResult {
		resultSummary = ExtractResultSummary(payload, isSuccess)
	}

	reasoningSentence := ""
	if ev.Type == execution.EventThinkingDelta {
		fallback := AsString(payload["stage"])
		if fallback == "" {
			fallback = labelStageThinking
		}
		reasoningSentence = ExtractReasoningSentence(AsString(payload["delta"]), fallback)
	}

	id := strings.TrimSpace(ev.EventID)
	if id == "" {
		id = fmt.Sprintf("%s-%d-%d", ev.ExecutionID, ev.Sequence, index)
	}

	return NormalizedEvent{
		ID:                id,
		ExecutionID:       ev.ExecutionID,
		QueueIndex:        ev.QueueIndex,
		Sequence:          ev.Sequence,
		Timestamp:         ev.Timestamp,
		Type:              ev.Type,
		Stage:             stage,
		Payload:           payload,
		RawPayload:        ToCompactJSON(payload, maxRawPayloadLength),
		ReasoningSentence: reasoningSentence,
		OperationSummary:  operationSummary,
		ResultSummary:     resultSummary,
		RiskLevel:         strings.ToLower(AsString(payload["risk_level"])),
		ToolName:          AsString(payload["name"]),
		CallID:            AsString(payload["call_id"]),
		IsSuccess:         isSuccess,
	}
}

func normalizeStage(value string) Stage {
	switch Stage(value) {
	case StageModelCall, StageAssistantOutput, StageApprovalNeeded,
		StageApprovalGranted, StageApprovalDenied, StageApprovalResolved,
		StageTurnLimit:
		return Stage(value)
	default:
		return StageOther
	}
}
