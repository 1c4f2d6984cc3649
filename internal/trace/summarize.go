// ABOUTME: Pure text and payload summarization helpers for trace rendering
// ABOUTME: Sentence extraction, operation/result summaries, and sensitive-key redaction

package trace

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	maxReasoningLength = 88
	maxSummaryLength   = 120
	maxRawPayloadLength = 1500

	// redactedMask replaces any value stored under a sensitive key.
	redactedMask = "***"
)

var (
	controlCharacters   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	thinkTags           = regexp.MustCompile(`(?i)</?think>`)
	sensitiveKeyPattern = regexp.MustCompile(`(?i)(token|secret|password|api[_-]?key|authorization|cookie)`)
	whitespaceRuns      = regexp.MustCompile(`\s+`)
)

// operationCandidateKeys is the display priority when summarizing a tool
// operation from its input payload.
var operationCandidateKeys = []string{"command", "path", "filePath", "url", "q", "query"}

// ignoredScalarKeys are payload keys that never make a useful summary on
// their own.
var ignoredScalarKeys = map[string]struct{}{
	"name":       {},
	"call_id":    {},
	"risk_level": {},
	"source":     {},
	"ok":         {},
	"stage":      {},
	"turn":       {},
	"run_state":  {},
	"action":     {},
	"usage":      {},
}

// sentenceEndings terminate the first sentence of a summary. CJK punctuation
// is included because reasoning text arrives in mixed scripts.
var sentenceEndings = map[rune]struct{}{
	'。': {}, '！': {}, '？': {}, '；': {},
	'.': {}, '!': {}, '?': {}, ';': {}, '\n': {},
}

// AsString returns the trimmed string value, or "" for any other type.
func AsString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// AsRecord returns v as a payload map, or nil when v is not one.
func AsRecord(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// TruncateText trims the value and caps it at maxLength runes, replacing the
// final rune with an ellipsis when truncation happens.
func TruncateText(value string, maxLength int) string {
	normalized := strings.TrimSpace(value)
	if normalized == "" {
		return ""
	}
	runes := []rune(normalized)
	if len(runes) <= maxLength {
		return normalized
	}
	if maxLength <= 1 {
		return "…"
	}
	return string(runes[:maxLength-1]) + "…"
}

// ExtractReasoningSentence strips think-tag wrappers and control characters
// from a reasoning delta and returns its first sentence, truncated for
// display. Returns fallback when nothing sentence-bearing remains.
func ExtractReasoningSentence(delta, fallback string) string {
	cleaned := cleanText(delta)
	if cleaned == "" {
		return fallback
	}
	sentence := firstSentence(cleaned)
	if sentence == "" {
		return fallback
	}
	return TruncateText(sentence, maxReasoningLength)
}

// ExtractOperationSummary picks the most telling scalar out of a tool-call
// payload. The nested input object is preferred over the payload itself, and
// well-known keys win over arbitrary ones. Returns "" when nothing readable
// is present.
func ExtractOperationSummary(payload map[string]any) string {
	input := AsRecord(payload["input"])
	source := payload
	if input != nil {
		source = input
	}

	for _, key := range operationCandidateKeys {
		if value := readableScalar(source[key]); value != "" {
			return TruncateText(key+": "+value, maxSummaryLength)
		}
	}

	if scalar := firstReadableScalar(source); scalar != "" {
		return TruncateText(scalar, maxSummaryLength)
	}

	// The input object had no readable scalar; fall back to the top level.
	if input != nil {
		if scalar := firstReadableScalar(payload); scalar != "" {
			return TruncateText(scalar, maxSummaryLength)
		}
	}
	return ""
}

// ExtractResultSummary summarizes a tool result. Failures prefer the error
// field's first informative sentence; otherwise the output value is
// summarized. Never panics on missing or oddly typed fields.
func ExtractResultSummary(payload map[string]any, isSuccess *bool) string {
	failed := isSuccess != nil && !*isSuccess
	if failed {
		if errText := cleanText(AsString(payload["error"])); errText != "" {
			return TruncateText(firstOr(errText), maxSummaryLength)
		}
	}

	if outputSummary := readableValue(payload["output"]); outputSummary != "" {
		return TruncateText(firstOr(outputSummary), maxSummaryLength)
	}

	if failed {
		fallback := firstReadableScalar(payload)
		return TruncateText(firstOr(fallback), maxSummaryLength)
	}
	return ""
}

// RedactSensitivePayload deep-copies the payload, masking every value whose
// key matches the sensitive-name set at any nesting depth. Non-sensitive
// keys and values of any type pass through untouched. Payloads are assumed
// acyclic and JSON-shaped.
func RedactSensitivePayload(payload map[string]any) map[string]any {
	redacted, _ := redactValue(payload, "").(map[string]any)
	if redacted == nil {
		return map[string]any{}
	}
	return redacted
}

// ToCompactJSON renders a value as indented JSON capped for display.
// Returns "" when the value cannot be marshalled.
func ToCompactJSON(v any, maxLength int) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return TruncateText(string(data), maxLength)
}

func redactValue(v any, keyHint string) any {
	if sensitiveKeyPattern.MatchString(keyHint) {
		return redactedMask
	}
	switch typed := v.(type) {
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item, "")
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = redactValue(item, key)
		}
		return out
	default:
		return v
	}
}

func readableValue(v any) string {
	if scalar := readableScalar(v); scalar != "" {
		return scalar
	}
	switch v.(type) {
	case map[string]any, []any:
		return ToCompactJSON(v, 220)
	}
	return ""
}

func readableScalar(v any) string {
	switch typed := v.(type) {
	case string:
		return cleanText(typed)
	case bool:
		return fmt.Sprintf("%t", typed)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", typed), "0"), ".")
	case int:
		return fmt.Sprintf("%d", typed)
	case int64:
		return fmt.Sprintf("%d", typed)
	}
	return ""
}

// firstReadableScalar scans keys in sorted order so the choice is
// deterministic for a given payload.
func firstReadableScalar(record map[string]any) string {
	keys := make([]string, 0, len(record))
	for key := range record {
		if _, ignored := ignoredScalarKeys[key]; ignored {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if scalar := readableScalar(record[key]); scalar != "" {
			return key + ": " + scalar
		}
	}
	return ""
}

func cleanText(value string) string {
	cleaned := thinkTags.ReplaceAllString(value, " ")
	cleaned = controlCharacters.ReplaceAllString(cleaned, " ")
	cleaned = whitespaceRuns.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func firstSentence(value string) string {
	normalized := strings.TrimSpace(value)
	if normalized == "" {
		return ""
	}
	for i, r := range normalized {
		if _, ok := sentenceEndings[r]; ok {
			return strings.TrimSpace(normalized[:i+len(string(r))])
		}
	}
	return normalized
}

// firstOr returns the first sentence of value, or value itself when it has
// no sentence boundary.
func firstOr(value string) string {
	if s := firstSentence(value); s != "" {
		return s
	}
	return value
}
