// ABOUTME: Tests for reasoning extraction, operation/result summaries, and redaction
// ABOUTME: Exercises CJK sentence endings, truncation, and nested sensitive keys

package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractReasoningSentence_FirstSentenceOnly(t *testing.T) {
	got := ExtractReasoningSentence("Reading the config file. Then I will patch it.", "thinking")
	assert.Equal(t, "Reading the config file.", got)
}

func TestExtractReasoningSentence_StripsThinkTagsAndControlChars(t *testing.T) {
	got := ExtractReasoningSentence("<think>plan\x01 the fix</think>", "thinking")
	assert.Equal(t, "plan the fix", got)
}

func TestExtractReasoningSentence_CJKEnding(t *testing.T) {
	got := ExtractReasoningSentence("先读取配置文件。然后修改它。", "thinking")
	assert.Equal(t, "先读取配置文件。", got)
}

func TestExtractReasoningSentence_FallbackWhenEmpty(t *testing.T) {
	assert.Equal(t, "thinking", ExtractReasoningSentence("  \x00 ", "thinking"))
}

func TestExtractReasoningSentence_Truncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := ExtractReasoningSentence(long, "thinking")
	assert.Equal(t, maxReasoningLength, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestTruncateText_ShortValueUnchanged(t *testing.T) {
	assert.Equal(t, "hello", TruncateText("  hello  ", 10))
}

func TestTruncateText_CountsRunesNotBytes(t *testing.T) {
	got := TruncateText("一二三四五", 3)
	assert.Equal(t, "一二…", got)
}

func TestExtractOperationSummary_PrefersWellKnownKeysInPriorityOrder(t *testing.T) {
	payload := map[string]any{
		"input": map[string]any{
			"url":     "https://example.com",
			"command": "git status",
		},
	}
	assert.Equal(t, "command: git status", ExtractOperationSummary(payload))
}

func TestExtractOperationSummary_InputBeatsTopLevel(t *testing.T) {
	payload := map[string]any{
		"path":  "/top-level",
		"input": map[string]any{"path": "/from-input"},
	}
	assert.Equal(t, "path: /from-input", ExtractOperationSummary(payload))
}

func TestExtractOperationSummary_FallsBackToFirstScalar(t *testing.T) {
	payload := map[string]any{
		"input": map[string]any{"pattern": "TODO", "recursive": true},
	}
	// Sorted key order makes the pick deterministic.
	assert.Equal(t, "pattern: TODO", ExtractOperationSummary(payload))
}

func TestExtractOperationSummary_IgnoresBookkeepingKeys(t *testing.T) {
	payload := map[string]any{
		"name":    "bash",
		"call_id": "call-7",
		"stage":   "model_call",
	}
	assert.Equal(t, "", ExtractOperationSummary(payload))
}

func TestExtractResultSummary_FailurePrefersError(t *testing.T) {
	payload := map[string]any{
		"error":  "permission denied. retry as root.",
		"output": "partial output",
	}
	got := ExtractResultSummary(payload, boolPtr(false))
	assert.Equal(t, "permission denied.", got)
}

func TestExtractResultSummary_SuccessUsesOutput(t *testing.T) {
	payload := map[string]any{"output": "3 files changed"}
	assert.Equal(t, "3 files changed", ExtractResultSummary(payload, boolPtr(true)))
}

func TestExtractResultSummary_StructuredOutputBecomesJSON(t *testing.T) {
	payload := map[string]any{"output": map[string]any{"count": float64(3)}}
	got := ExtractResultSummary(payload, nil)
	assert.Contains(t, got, "count")
}

func TestExtractResultSummary_EmptyWhenNothingReadable(t *testing.T) {
	assert.Equal(t, "", ExtractResultSummary(map[string]any{}, nil))
}

func TestRedactSensitivePayload_MasksNestedKeys(t *testing.T) {
	payload := map[string]any{
		"command": "curl",
		"headers": map[string]any{
			"Authorization": "Bearer abc123",
			"Accept":        "application/json",
		},
		"api_key": "sk-live",
		"items":   []any{map[string]any{"password": "hunter2", "user": "pam"}},
	}

	redacted := RedactSensitivePayload(payload)

	assert.Equal(t, "curl", redacted["command"])
	headers := redacted["headers"].(map[string]any)
	assert.Equal(t, redactedMask, headers["Authorization"])
	assert.Equal(t, "application/json", headers["Accept"])
	assert.Equal(t, redactedMask, redacted["api_key"])
	item := redacted["items"].([]any)[0].(map[string]any)
	assert.Equal(t, redactedMask, item["password"])
	assert.Equal(t, "pam", item["user"])
}

func TestRedactSensitivePayload_DoesNotMutateInput(t *testing.T) {
	payload := map[string]any{
		"nested": map[string]any{"token": "original"},
	}
	_ = RedactSensitivePayload(payload)
	require.Equal(t, "original", payload["nested"].(map[string]any)["token"])
}

func TestRedactSensitivePayload_NilPayload(t *testing.T) {
	assert.NotNil(t, RedactSensitivePayload(nil))
}

func TestToCompactJSON_CapsLength(t *testing.T) {
	payload := map[string]any{"data": strings.Repeat("x", 3000)}
	got := ToCompactJSON(payload, maxRawPayloadLength)
	assert.LessOrEqual(t, len([]rune(got)), maxRawPayloadLength)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func boolPtr(v bool) *bool { return &v }
