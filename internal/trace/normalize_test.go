// ABOUTME: Tests for event normalization, stage classification, and grouping
// ABOUTME: Covers rendered-type filtering, sequence ordering, and payload redaction

package trace

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-console/internal/execution"
)

var traceBase = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func traceEvent(execID string, seq int64, kind execution.EventType, payload map[string]any) execution.Event {
	return execution.Event{
		EventID:        fmt.Sprintf("evt-%s-%s-%d", execID, kind, seq),
		ExecutionID:    execID,
		ConversationID: "conv-1",
		Sequence:       seq,
		Type:           kind,
		Timestamp:      traceBase.Add(time.Duration(seq) * time.Second),
		Payload:        payload,
	}
}

func TestGroupByExecution_SkipsUnrenderedAndUnattributed(t *testing.T) {
	events := []execution.Event{
		traceEvent("exec-1", 1, execution.EventExecutionStarted, nil),
		traceEvent("exec-1", 2, execution.EventExecutionDone, nil),
		traceEvent("exec-1", 3, execution.EventDiffGenerated, map[string]any{"diff": "x"}),
		traceEvent("", 4, execution.EventThinkingDelta, map[string]any{"delta": "orphaned"}),
	}

	grouped := GroupByExecution(events)
	require.Len(t, grouped, 1)
	require.Len(t, grouped["exec-1"], 1)
	assert.Equal(t, execution.EventExecutionStarted, grouped["exec-1"][0].Type)
}

func TestGroupByExecution_SortsBySequenceThenTimestamp(t *testing.T) {
	a := traceEvent("exec-1", 3, execution.EventToolCall, map[string]any{"name": "bash"})
	b := traceEvent("exec-1", 1, execution.EventThinkingDelta, map[string]any{"delta": "first."})
	c := traceEvent("exec-1", 1, execution.EventThinkingDelta, map[string]any{"delta": "also first."})
	c.Timestamp = b.Timestamp.Add(-time.Minute)

	grouped := GroupByExecution([]execution.Event{a, b, c})
	got := grouped["exec-1"]
	require.Len(t, got, 3)
	assert.Equal(t, "also first.", got[0].ReasoningSentence)
	assert.Equal(t, "first.", got[1].ReasoningSentence)
	assert.Equal(t, execution.EventToolCall, got[2].Type)
}

func TestNormalize_ThinkingDeltaStageAndReasoning(t *testing.T) {
	ev := traceEvent("exec-1", 1, execution.EventThinkingDelta, map[string]any{
		"stage": "model_call",
		"delta": "Planning the edit. More detail follows.",
	})

	got := GroupByExecution([]execution.Event{ev})["exec-1"][0]
	assert.Equal(t, StageModelCall, got.Stage)
	assert.Equal(t, "Planning the edit.", got.ReasoningSentence)
}

func TestNormalize_UnknownStageBecomesOther(t *testing.T) {
	ev := traceEvent("exec-1", 1, execution.EventThinkingDelta, map[string]any{
		"stage": "wat",
	})
	got := GroupByExecution([]execution.Event{ev})["exec-1"][0]
	assert.Equal(t, StageOther, got.Stage)
	assert.Equal(t, "wat", got.ReasoningSentence)
}

func TestNormalize_ToolCallExtractsOperationAndRisk(t *testing.T) {
	ev := traceEvent("exec-1", 1, execution.EventToolCall, map[string]any{
		"name":       "bash",
		"call_id":    "call-9",
		"risk_level": "HIGH",
		"input":      map[string]any{"command": "rm -r build"},
	})

	got := GroupByExecution([]execution.Event{ev})["exec-1"][0]
	assert.Equal(t, "bash", got.ToolName)
	assert.Equal(t, "call-9", got.CallID)
	assert.Equal(t, "high", got.RiskLevel)
	assert.Equal(t, "command: rm -r build", got.OperationSummary)
}

func TestNormalize_ToolResultSuccessFlagAndSummary(t *testing.T) {
	ev := traceEvent("exec-1", 2, execution.EventToolResult, map[string]any{
		"name":   "bash",
		"ok":     false,
		"error":  "exit status 1. see logs.",
		"output": "noise",
	})

	got := GroupByExecution([]execution.Event{ev})["exec-1"][0]
	require.NotNil(t, got.IsSuccess)
	assert.False(t, *got.IsSuccess)
	assert.Equal(t, "exit status 1.", got.ResultSummary)
}

func TestNormalize_MissingOkLeavesSuccessUnknown(t *testing.T) {
	ev := traceEvent("exec-1", 2, execution.EventToolResult, map[string]any{"output": "done"})
	got := GroupByExecution([]execution.Event{ev})["exec-1"][0]
	assert.Nil(t, got.IsSuccess)
}

func TestNormalize_RedactsPayloadBeforeSummarizing(t *testing.T) {
	ev := traceEvent("exec-1", 1, execution.EventToolCall, map[string]any{
		"name":  "http",
		"input": map[string]any{"api_key": "sk-live", "url": "https://example.com"},
	})

	got := GroupByExecution([]execution.Event{ev})["exec-1"][0]
	assert.Equal(t, redactedMask, AsRecord(got.Payload["input"])["api_key"])
	assert.Equal(t, "url: https://example.com", got.OperationSummary)
	assert.NotContains(t, got.RawPayload, "sk-live")
}

func TestNormalize_FallbackIDWhenEventIDMissing(t *testing.T) {
	ev := traceEvent("exec-1", 7, execution.EventExecutionStarted, nil)
	ev.EventID = ""

	got := GroupByExecution([]execution.Event{ev})["exec-1"][0]
	assert.Equal(t, "exec-1-7-0", got.ID)
}
