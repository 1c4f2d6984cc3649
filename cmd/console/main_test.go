// ABOUTME: Tests for the HTML transcript renderer in the export subcommand
// ABOUTME: Covers id escaping and trace grouping under the originating message

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/execution"
	"github.com/2389/coven-console/internal/runtime"
)

func TestRenderTranscriptHTML_EscapesConversationID(t *testing.T) {
	view := runtime.View{
		Conversation: conversation.Conversation{ID: `conv-<script>alert(1)</script>`},
	}

	out := renderTranscriptHTML(view, language.English)

	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "conv-&lt;script&gt;alert(1)&lt;/script&gt;")
}

func TestRenderTranscriptHTML_GroupsTracesUnderMessages(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	qi := 0

	view := runtime.View{
		Conversation: conversation.Conversation{ID: "conv-1"},
		Messages: []conversation.Message{
			{
				ID:         "msg-1",
				Role:       conversation.RoleUser,
				Content:    "list the files",
				QueueIndex: &qi,
				CreatedAt:  base,
			},
		},
		Executions: []execution.Execution{
			{
				ID:             "exec-1",
				ConversationID: "conv-1",
				MessageID:      "msg-1",
				State:          execution.StateCompleted,
				CreatedAt:      base,
				UpdatedAt:      base.Add(2 * time.Second),
			},
		},
		Events: []execution.Event{
			{
				EventID:        "evt-1",
				ExecutionID:    "exec-1",
				ConversationID: "conv-1",
				Sequence:       1,
				Type:           execution.EventExecutionStarted,
				Timestamp:      base,
			},
		},
	}

	out := renderTranscriptHTML(view, language.English)

	assert.Contains(t, out, "list the files")
	assert.Contains(t, out, `<div class="trace">`)
	assert.Contains(t, out, "<li>")
}

func TestRenderTranscriptHTML_UnlinkedExecutionStaysOutOfTranscript(t *testing.T) {
	view := runtime.View{
		Conversation: conversation.Conversation{ID: "conv-1"},
		Messages: []conversation.Message{
			{ID: "msg-1", Role: conversation.RoleUser, Content: "hello"},
		},
		Executions: []execution.Execution{
			{ID: "exec-orphan", ConversationID: "conv-1", State: execution.StateExecuting},
		},
	}

	out := renderTranscriptHTML(view, language.English)

	assert.NotContains(t, out, `<div class="trace">`)
}
