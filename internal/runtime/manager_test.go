// ABOUTME: Tests for the runtime manager's event folding and user actions
// ABOUTME: Covers dedup, lazy executions, terminal messages, rollback, and teardown

package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/execution"
)

var managerBase = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type stubBackend struct {
	createRequests []CreateExecutionRequest
	createResult   execution.Execution
	createErr      error
	cancelErr      error
	rollbackErr    error
	cancelled      []string
	rollbacks      []string
}

func (b *stubBackend) CreateExecution(_ context.Context, req CreateExecutionRequest) (execution.Execution, error) {
	b.createRequests = append(b.createRequests, req)
	if b.createErr != nil {
		return execution.Execution{}, b.createErr
	}
	result := b.createResult
	if result.ID == "" {
		result = execution.Execution{
			ID:             "exec-created",
			ConversationID: req.ConversationID,
			MessageID:      req.MessageID,
			State:          execution.StateQueued,
			QueueIndex:     req.QueueIndex,
			CreatedAt:      managerBase,
			UpdatedAt:      managerBase,
		}
	}
	return result, nil
}

func (b *stubBackend) CancelExecution(_ context.Context, _, executionID string) error {
	b.cancelled = append(b.cancelled, executionID)
	return b.cancelErr
}

func (b *stubBackend) ResolveConfirmation(_ context.Context, _, _, _ string) error {
	return nil
}

func (b *stubBackend) RollbackConversation(_ context.Context, _, messageID string) error {
	b.rollbacks = append(b.rollbacks, messageID)
	return b.rollbackErr
}

func newTestManager(t *testing.T) (*Manager, *stubBackend) {
	t.Helper()
	backend := &stubBackend{}
	m := NewManager(backend, nil, nil)
	m.Now = func() time.Time { return managerBase }
	t.Cleanup(m.Close)
	return m, backend
}

func testConversation() conversation.Conversation {
	return conversation.Conversation{ID: "conv-1", Name: "test", DefaultMode: execution.ModeAgent, ModelID: "model-a"}
}

func streamEvent(eventID, execID string, seq int64, kind execution.EventType, payload map[string]any) execution.Event {
	return execution.Event{
		EventID:        eventID,
		ExecutionID:    execID,
		ConversationID: "conv-1",
		Sequence:       seq,
		QueueIndex:     0,
		Type:           kind,
		Timestamp:      managerBase.Add(time.Duration(seq) * time.Second),
		Payload:        payload,
	}
}

func TestEnsureRuntime_Idempotent(t *testing.T) {
	m, _ := newTestManager(t)

	first := m.EnsureRuntime(testConversation())
	assert.Equal(t, execution.ModeAgent, first.Mode)
	assert.Equal(t, conversation.StatusDisconnected, first.Status)

	changed := testConversation()
	changed.Name = "renamed"
	second := m.EnsureRuntime(changed)
	assert.Equal(t, "test", second.Conversation.Name, "existing runtime is returned untouched")
}

func TestApplyIncomingEvent_UnknownConversationIsNoOp(t *testing.T) {
	m, _ := newTestManager(t)
	m.ApplyIncomingEvent("conv-missing", streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil))

	_, ok := m.View("conv-missing")
	assert.False(t, ok)
}

func TestApplyIncomingEvent_CreatesPlaceholderAndTransitions(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil))

	view, ok := m.View("conv-1")
	require.True(t, ok)
	require.Len(t, view.Executions, 1)
	assert.Equal(t, "exec-1", view.Executions[0].ID)
	assert.Equal(t, execution.StateExecuting, view.Executions[0].State)
	require.Len(t, view.Events, 1)
	assert.Equal(t, conversation.QueueRunning, view.QueueState)
	assert.Equal(t, "e1", view.LastEventID)
}

func TestApplyIncomingEvent_DuplicateDropped(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	ev := streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil)
	m.ApplyIncomingEvent("conv-1", ev)
	m.ApplyIncomingEvent("conv-1", ev)

	view, _ := m.View("conv-1")
	assert.Len(t, view.Events, 1)
}

func TestApplyIncomingEvent_TerminalAppendsAssistantMessageOnce(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil))
	m.ApplyIncomingEvent("conv-1", streamEvent("e2", "exec-1", 2, execution.EventExecutionDone, map[string]any{"message": "all done"}))
	// A second terminal event for the same execution must not add another
	// message.
	m.ApplyIncomingEvent("conv-1", streamEvent("e3", "exec-1", 3, execution.EventExecutionError, map[string]any{"error": "late"}))

	view, _ := m.View("conv-1")
	require.Len(t, view.Messages, 1)
	assert.Equal(t, conversation.RoleAssistant, view.Messages[0].Role)
	assert.Equal(t, "all done", view.Messages[0].Content)
	assert.Equal(t, execution.StateCompleted, view.Executions[0].State, "terminal state never regresses")
}

func TestApplyIncomingEvent_CompletedWithoutTextAddsNoMessage(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionDone, nil))

	view, _ := m.View("conv-1")
	assert.Empty(t, view.Messages)
}

func TestApplyIncomingEvent_FailureAddsSystemMessage(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionError, nil))

	view, _ := m.View("conv-1")
	require.Len(t, view.Messages, 1)
	assert.Equal(t, conversation.RoleSystem, view.Messages[0].Role)
	assert.Equal(t, "execution failed", view.Messages[0].Content)
}

func TestApplyIncomingEvent_TerminalMessagePlacedByQueueIndex(t *testing.T) {
	m, backend := newTestManager(t)
	m.EnsureRuntime(testConversation())

	// Two submissions; the first completes after the second was queued.
	first, err := m.SubmitMessage(context.Background(), "conv-1", "first question")
	require.NoError(t, err)
	backend.createResult = execution.Execution{
		ID: "exec-second", ConversationID: "conv-1", State: execution.StateQueued,
		QueueIndex: 1, CreatedAt: managerBase, UpdatedAt: managerBase,
	}
	_, err = m.SubmitMessage(context.Background(), "conv-1", "second question")
	require.NoError(t, err)

	done := streamEvent("e-done", first.ID, 5, execution.EventExecutionDone, map[string]any{"message": "first answer"})
	done.QueueIndex = 0
	m.ApplyIncomingEvent("conv-1", done)

	view, _ := m.View("conv-1")
	require.Len(t, view.Messages, 3)
	assert.Equal(t, "first question", view.Messages[0].Content)
	assert.Equal(t, "first answer", view.Messages[1].Content, "completion slots in after its own submission")
	assert.Equal(t, "second question", view.Messages[2].Content)
}

func TestApplyIncomingEvent_EventRingBounded(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	for i := 0; i < MaxRuntimeEvents+10; i++ {
		m.ApplyIncomingEvent("conv-1", streamEvent("", "", int64(i), execution.EventThinkingDelta, map[string]any{
			"delta": "x",
		}))
	}

	view, _ := m.View("conv-1")
	assert.Len(t, view.Events, MaxRuntimeEvents)
	assert.Equal(t, int64(10), view.Events[0].Sequence, "oldest events evicted first")
}

func TestSubmitMessage_AppendsMessageSnapshotAndEvent(t *testing.T) {
	m, backend := newTestManager(t)
	m.EnsureRuntime(testConversation())

	created, err := m.SubmitMessage(context.Background(), "conv-1", "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "exec-created", created.ID)

	view, _ := m.View("conv-1")
	require.Len(t, view.Messages, 1)
	assert.Equal(t, conversation.RoleUser, view.Messages[0].Role)
	assert.Equal(t, "hello", view.Messages[0].Content)
	assert.True(t, view.Messages[0].CanRollback)
	require.NotNil(t, view.Messages[0].QueueIndex)
	assert.Equal(t, 0, *view.Messages[0].QueueIndex)

	require.Len(t, view.Snapshots, 1)
	assert.Equal(t, view.Messages[0].ID, view.Snapshots[0].RollbackPointMessageID)

	require.Len(t, view.Events, 1)
	assert.Equal(t, execution.EventMessageReceived, view.Events[0].Type)

	require.Len(t, view.Executions, 1)
	assert.Equal(t, execution.StateQueued, view.Executions[0].State)
	assert.Equal(t, conversation.QueueQueued, view.QueueState)

	require.Len(t, backend.createRequests, 1)
	assert.Equal(t, "hello", backend.createRequests[0].Content)
	assert.Equal(t, execution.ModeAgent, backend.createRequests[0].Mode)
}

func TestSubmitMessage_UsesDraftWhenContentEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())
	m.SetDraft("conv-1", "from the draft")

	_, err := m.SubmitMessage(context.Background(), "conv-1", "")
	require.NoError(t, err)

	view, _ := m.View("conv-1")
	assert.Equal(t, "from the draft", view.Messages[0].Content)
	assert.Equal(t, "", view.Draft, "submitted draft is cleared")
}

func TestSubmitMessage_EmptyRejected(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	_, err := m.SubmitMessage(context.Background(), "conv-1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSubmitMessage_BackendFailureSurfacesError(t *testing.T) {
	m, backend := newTestManager(t)
	backend.createErr = errors.New("backend down")
	m.EnsureRuntime(testConversation())

	_, err := m.SubmitMessage(context.Background(), "conv-1", "hello")
	require.Error(t, err)

	view, _ := m.View("conv-1")
	assert.Contains(t, view.Err, "backend down")
	// The user message stays; a system message explains the failure.
	require.Len(t, view.Messages, 2)
	assert.Equal(t, conversation.RoleSystem, view.Messages[1].Role)
	assert.Empty(t, view.Executions)
}

func TestSubmitMessage_UnknownConversation(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.SubmitMessage(context.Background(), "conv-missing", "hello")
	assert.ErrorIs(t, err, ErrUnknownConversation)
}

func TestStopExecution_DoesNotForceLocalState(t *testing.T) {
	m, backend := newTestManager(t)
	m.EnsureRuntime(testConversation())
	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil))

	require.NoError(t, m.StopExecution(context.Background(), "conv-1", "exec-1"))
	assert.Equal(t, []string{"exec-1"}, backend.cancelled)

	view, _ := m.View("conv-1")
	assert.Equal(t, execution.StateExecuting, view.Executions[0].State,
		"displayed state waits for the terminal event")

	// The stream confirms the stop.
	m.ApplyIncomingEvent("conv-1", streamEvent("e2", "exec-1", 2, execution.EventExecutionStopped, nil))
	view, _ = m.View("conv-1")
	assert.Equal(t, execution.StateCancelled, view.Executions[0].State)
}

func TestStopExecution_BackendFailure(t *testing.T) {
	m, backend := newTestManager(t)
	backend.cancelErr = errors.New("nope")
	m.EnsureRuntime(testConversation())

	err := m.StopExecution(context.Background(), "conv-1", "exec-1")
	require.Error(t, err)
	view, _ := m.View("conv-1")
	assert.Contains(t, view.Err, "nope")
}

func TestRollback_RestoresSnapshotState(t *testing.T) {
	m, backend := newTestManager(t)
	m.EnsureRuntime(testConversation())

	first, err := m.SubmitMessage(context.Background(), "conv-1", "first")
	require.NoError(t, err)
	m.ApplyIncomingEvent("conv-1", streamEvent("e1", first.ID, 1, execution.EventExecutionDone, map[string]any{"message": "answer one"}))

	backend.createResult = execution.Execution{
		ID: "exec-2", ConversationID: "conv-1", State: execution.StateQueued,
		QueueIndex: 1, CreatedAt: managerBase, UpdatedAt: managerBase,
	}
	_, err = m.SubmitMessage(context.Background(), "conv-1", "second")
	require.NoError(t, err)

	before, _ := m.View("conv-1")
	require.Len(t, before.Messages, 3)
	require.Len(t, before.Snapshots, 2)
	rollbackPoint := before.Messages[0].ID

	require.NoError(t, m.Rollback(context.Background(), "conv-1", rollbackPoint))
	assert.Equal(t, []string{rollbackPoint}, backend.rollbacks)

	after, _ := m.View("conv-1")
	// The snapshot was taken right after the first message was appended.
	require.Len(t, after.Messages, 1)
	assert.Equal(t, "first", after.Messages[0].Content)
	require.Len(t, after.Snapshots, 1, "snapshots after the applied one are dropped")

	types := make([]execution.EventType, 0)
	for _, ev := range after.Events {
		switch ev.Type {
		case eventRollbackRequested, eventSnapshotApplied, eventRollbackCompleted:
			types = append(types, ev.Type)
		}
	}
	assert.Equal(t, []execution.EventType{eventRollbackRequested, eventSnapshotApplied, eventRollbackCompleted}, types)
}

func TestRollback_PrechecksFailFast(t *testing.T) {
	m, backend := newTestManager(t)
	m.EnsureRuntime(testConversation())
	_, err := m.SubmitMessage(context.Background(), "conv-1", "hello")
	require.NoError(t, err)
	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-created", 1, execution.EventExecutionDone, map[string]any{"message": "hi"}))

	view, _ := m.View("conv-1")
	assistant := view.Messages[1]

	assert.ErrorIs(t, m.Rollback(context.Background(), "conv-1", "msg-missing"), ErrUnknownMessage)
	assert.ErrorIs(t, m.Rollback(context.Background(), "conv-1", assistant.ID), ErrNotRollbackPoint)
	assert.ErrorIs(t, m.Rollback(context.Background(), "conv-missing", "x"), ErrUnknownConversation)
	assert.Empty(t, backend.rollbacks, "backend never called when prechecks fail")
}

func TestRollback_BackendFailureLeavesStateIntact(t *testing.T) {
	m, backend := newTestManager(t)
	m.EnsureRuntime(testConversation())
	_, err := m.SubmitMessage(context.Background(), "conv-1", "hello")
	require.NoError(t, err)
	backend.rollbackErr = errors.New("worktree busy")

	before, _ := m.View("conv-1")
	require.Error(t, m.Rollback(context.Background(), "conv-1", before.Messages[0].ID))

	after, _ := m.View("conv-1")
	assert.Contains(t, after.Err, "worktree busy")
	assert.Equal(t, len(before.Snapshots), len(after.Snapshots))
	assert.Equal(t, before.Messages[0].Content, after.Messages[0].Content)
}

func TestHydrateRuntime_ReplacesStateAndRestoresInspector(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	qi := 0
	detail := HydrationDetail{
		Messages: []conversation.Message{{
			ID: "m1", ConversationID: "conv-1", Role: conversation.RoleUser,
			Content: "restored", QueueIndex: &qi, CanRollback: true, CreatedAt: managerBase,
		}},
		Executions: []execution.Execution{{
			ID: "exec-1", ConversationID: "conv-1", State: execution.StateCompleted,
			CreatedAt: managerBase, UpdatedAt: managerBase,
		}},
		Events: []execution.Event{
			streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil),
		},
		LastEventID: "e1",
	}
	m.HydrateRuntime("conv-1", detail)

	view, _ := m.View("conv-1")
	assert.True(t, view.Hydrated)
	assert.Equal(t, "restored", view.Messages[0].Content)
	assert.Equal(t, "e1", view.LastEventID)

	// Events carried by hydration are marked seen.
	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil))
	view, _ = m.View("conv-1")
	assert.Len(t, view.Events, 1)
}

func TestTicker_RunsOnlyWhileExecutionsActive(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil))
	m.mu.Lock()
	_, running := m.tickers["conv-1"]
	m.mu.Unlock()
	assert.True(t, running, "ticker starts with the first active execution")

	m.ApplyIncomingEvent("conv-1", streamEvent("e2", "exec-1", 2, execution.EventExecutionDone, nil))
	m.mu.Lock()
	_, running = m.tickers["conv-1"]
	m.mu.Unlock()
	assert.False(t, running, "ticker stops once nothing is active")
}

func TestTicker_PublishesTickChanges(t *testing.T) {
	m, _ := newTestManager(t)
	m.TickInterval = 5 * time.Millisecond
	m.EnsureRuntime(testConversation())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := m.Notifier().Subscribe(ctx, "conv-1")

	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil))

	deadline := time.After(time.Second)
	for {
		select {
		case change := <-ch:
			if change.Kind == ChangeTick {
				return
			}
		case <-deadline:
			t.Fatal("no tick change observed")
		}
	}
}

func TestRemoveRuntime_StopsTickerAndDropsEntry(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())
	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, nil))

	m.RemoveRuntime("conv-1")

	_, ok := m.View("conv-1")
	assert.False(t, ok)
	m.mu.Lock()
	_, running := m.tickers["conv-1"]
	m.mu.Unlock()
	assert.False(t, running)

	// Late callbacks after teardown are harmless.
	m.ApplyIncomingEvent("conv-1", streamEvent("e2", "exec-1", 2, execution.EventExecutionDone, nil))
	m.SetConnectionStatus("conv-1", conversation.StatusReconnecting)
}

func TestSetConnectionStatusAndError(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	m.SetConnectionStatus("conv-1", conversation.StatusReconnecting)
	m.SetError("conv-1", "stream error")

	view, _ := m.View("conv-1")
	assert.Equal(t, conversation.StatusReconnecting, view.Status)
	assert.Equal(t, "stream error", view.Err)

	m.SetError("conv-1", "")
	view, _ = m.View("conv-1")
	assert.Equal(t, "", view.Err)
}

func TestApplyIncomingEvent_RebuildsConversationFromRecordedStream(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	received := streamEvent("e1", "", 1, execution.EventMessageReceived, map[string]any{
		"message_id": "msg-1",
		"content":    "hello",
	})
	m.ApplyIncomingEvent("conv-1", received)
	m.ApplyIncomingEvent("conv-1", streamEvent("e2", "exec-1", 2, execution.EventExecutionStarted, nil))
	m.ApplyIncomingEvent("conv-1", streamEvent("e3", "exec-1", 3, execution.EventExecutionDone, map[string]any{
		"message": "done",
	}))

	view, _ := m.View("conv-1")
	require.Len(t, view.Messages, 2)
	assert.Equal(t, conversation.RoleUser, view.Messages[0].Role)
	assert.Equal(t, "msg-1", view.Messages[0].ID)
	assert.Equal(t, "hello", view.Messages[0].Content)
	assert.True(t, view.Messages[0].CanRollback)
	assert.Equal(t, conversation.RoleAssistant, view.Messages[1].Role)

	require.Len(t, view.Executions, 1)
	assert.Equal(t, "msg-1", view.Executions[0].MessageID, "placeholder links to the replayed user message")
}

func TestApplyIncomingEvent_MessageReceivedEchoDoesNotDuplicate(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	_, err := m.SubmitMessage(context.Background(), "conv-1", "hello")
	require.NoError(t, err)

	view, _ := m.View("conv-1")
	require.Len(t, view.Messages, 1)
	messageID := view.Messages[0].ID

	// The server echoes the submission with its own event id.
	echo := streamEvent("server-echo", "", 5, execution.EventMessageReceived, map[string]any{
		"message_id": messageID,
		"content":    "hello",
	})
	m.ApplyIncomingEvent("conv-1", echo)

	view, _ = m.View("conv-1")
	assert.Len(t, view.Messages, 1, "echoed message_received must not duplicate the message")
}

func TestApplyIncomingEvent_MessageIDFromEventPayload(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	m.ApplyIncomingEvent("conv-1", streamEvent("e1", "exec-1", 1, execution.EventExecutionStarted, map[string]any{
		"message_id": "msg-7",
	}))

	view, _ := m.View("conv-1")
	require.Len(t, view.Executions, 1)
	assert.Equal(t, "msg-7", view.Executions[0].MessageID)
}

func TestTicker_QueuedAloneDoesNotStartTicker(t *testing.T) {
	m, _ := newTestManager(t)
	m.EnsureRuntime(testConversation())

	_, err := m.SubmitMessage(context.Background(), "conv-1", "hello")
	require.NoError(t, err)

	view, _ := m.View("conv-1")
	require.Len(t, view.Executions, 1)
	require.Equal(t, execution.StateQueued, view.Executions[0].State)

	m.mu.Lock()
	_, running := m.tickers["conv-1"]
	m.mu.Unlock()
	assert.False(t, running, "a queued execution is waiting, not active")
}
