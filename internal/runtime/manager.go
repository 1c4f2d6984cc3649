// ABOUTME: Manager owning one conversation runtime per id behind a single lock
// ABOUTME: Applies stream events, drives user actions, and fans out change signals

package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/execution"
	"github.com/2389/coven-console/internal/snapshot"
)

var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrUnknownMessage      = errors.New("unknown message")
	ErrNotRollbackPoint    = errors.New("message is not a rollback point")
	ErrNoSnapshot          = errors.New("no snapshot for message")
)

// Synthetic lifecycle event types appended by the manager itself.
const (
	eventRollbackRequested execution.EventType = "rollback_requested"
	eventSnapshotApplied   execution.EventType = "snapshot_applied"
	eventRollbackCompleted execution.EventType = "rollback_completed"
)

// Backend is the execution engine collaborator. All calls may fail; failures
// surface on the runtime error field and are never retried automatically.
type Backend interface {
	CreateExecution(ctx context.Context, req CreateExecutionRequest) (execution.Execution, error)
	CancelExecution(ctx context.Context, conversationID, executionID string) error
	ResolveConfirmation(ctx context.Context, conversationID, executionID, decision string) error
	RollbackConversation(ctx context.Context, conversationID, messageID string) error
}

// CreateExecutionRequest carries a message submission to the backend.
type CreateExecutionRequest struct {
	ConversationID string
	MessageID      string
	Content        string
	Mode           execution.Mode
	ModelID        string
	QueueIndex     int
}

// Recorder tees appended events and snapshots into durable storage. Record
// failures are logged and never block the runtime.
type Recorder interface {
	RecordEvent(conversationID string, ev execution.Event) error
	RecordSnapshot(snap snapshot.Snapshot) error
}

// HydrationDetail is a full conversation state fetched out of band, used to
// replace a runtime's lists wholesale.
type HydrationDetail struct {
	Conversation conversation.Conversation
	Messages     []conversation.Message
	Executions   []execution.Execution
	Events       []execution.Event
	Snapshots    []snapshot.Snapshot
	LastEventID  string
}

// Manager is the single source of truth for all open conversations. One
// lock serializes every mutation; views are copied out under the same lock,
// so no intermediate state is ever observable.
type Manager struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime
	tickers  map[string]chan struct{}

	backend  Backend
	recorder Recorder
	notifier *Notifier
	logger   *slog.Logger

	// Now is injectable for deterministic tests.
	Now func() time.Time
	// TickInterval drives elapsed-time change signals while executions are
	// active.
	TickInterval time.Duration
}

// NewManager creates a manager. recorder may be nil to disable the history
// tee; logger nil for default.
func NewManager(backend Backend, recorder Recorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runtimes:     make(map[string]*Runtime),
		tickers:      make(map[string]chan struct{}),
		backend:      backend,
		recorder:     recorder,
		notifier:     NewNotifier(logger),
		logger:       logger.With("component", "runtime"),
		Now:          time.Now,
		TickInterval: time.Second,
	}
}

// Notifier exposes the change fan-out for subscription.
func (m *Manager) Notifier() *Notifier {
	return m.notifier
}

// EnsureRuntime gets or creates the runtime for a conversation. Idempotent:
// an existing runtime is returned untouched, even if conv carries different
// settings.
func (m *Manager) EnsureRuntime(conv conversation.Conversation) View {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.runtimes[conv.ID]
	if !ok {
		rt = newRuntime(conv)
		m.runtimes[conv.ID] = rt
		m.logger.Debug("runtime created", "conversation_id", conv.ID)
	}
	return rt.view()
}

// View returns a copy of the runtime state, or false when no runtime exists.
func (m *Manager) View(conversationID string) (View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.runtimes[conversationID]
	if !ok {
		return View{}, false
	}
	return rt.view(), true
}

// HydrateRuntime replaces the runtime's lists from a detail fetch. Worktree
// ref and inspector tab are restored from the latest snapshot when present.
// Unknown conversation ids are a no-op.
func (m *Manager) HydrateRuntime(conversationID string, detail HydrationDetail) {
	m.mu.Lock()
	rt, ok := m.runtimes[conversationID]
	if !ok {
		m.mu.Unlock()
		return
	}

	if detail.Conversation.ID != "" {
		rt.Conversation = detail.Conversation
		if detail.Conversation.ModelID != "" {
			rt.ModelID = detail.Conversation.ModelID
		}
	}
	rt.Messages = conversation.CloneMessages(detail.Messages)
	rt.Executions = execution.NormalizeList(detail.Executions)
	rt.Events = boundEvents(append([]execution.Event(nil), detail.Events...))
	rt.Snapshots = append([]snapshot.Snapshot(nil), detail.Snapshots...)
	if detail.LastEventID != "" {
		rt.LastEventID = detail.LastEventID
	}
	if last := len(rt.Snapshots) - 1; last >= 0 {
		rt.WorktreeRef = rt.Snapshots[last].WorktreeRef
		if tab := rt.Snapshots[last].InspectorState.Tab; tab != "" {
			rt.InspectorTab = tab
		}
	}
	for _, ev := range rt.Events {
		rt.processed.Mark(ev.DedupKey())
	}
	rt.Hydrated = true
	m.syncTickerLocked(conversationID, rt)
	m.mu.Unlock()

	m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeHydrated})
}

// ApplyIncomingEvent folds one stream event into the runtime: duplicate
// suppression, append to the bounded event ring, lazy execution creation,
// state transition, and terminal-message synthesis. Unknown conversation ids
// are a no-op; a late callback after teardown must not error.
func (m *Manager) ApplyIncomingEvent(conversationID string, ev execution.Event) {
	m.mu.Lock()
	rt, ok := m.runtimes[conversationID]
	if !ok {
		m.mu.Unlock()
		return
	}

	if rt.processed.CheckAndMark(ev.DedupKey()) {
		m.mu.Unlock()
		m.logger.Debug("duplicate event dropped",
			"conversation_id", conversationID,
			"event_id", ev.EventID,
			"type", ev.Type)
		return
	}

	m.appendEventLocked(rt, ev)
	changed := []ChangeKind{ChangeEvents}

	// A message_received from the stream (or a ledger replay) rebuilds the
	// user message, unless submit already appended it under the same id.
	if ev.Type == execution.EventMessageReceived {
		if msg, ok := messageFromEvent(rt.Conversation.ID, ev); ok {
			if _, exists := findMessage(rt.Messages, msg.ID); !exists {
				insertMessageByQueueIndex(rt, msg)
				changed = append(changed, ChangeMessages)
			}
		}
	}

	if ev.ExecutionID != "" {
		target := m.ensureExecutionLocked(rt, ev)
		wasTerminal := execution.IsTerminal(target.State)
		execution.ApplyEvent(target, ev)
		nowTerminal := execution.IsTerminal(target.State)
		rt.Executions = execution.NormalizeList(rt.Executions)
		changed = append(changed, ChangeExecutions)

		if !wasTerminal && nowTerminal && !rt.completed.CheckAndMark(target.ID) {
			if msg, ok := terminalMessage(rt.Conversation.ID, *target, ev, m.Now()); ok {
				insertMessageByQueueIndex(rt, msg)
				changed = append(changed, ChangeMessages)
			}
		}
		m.syncTickerLocked(conversationID, rt)
	}
	m.mu.Unlock()

	for _, kind := range changed {
		m.notifier.Publish(Change{ConversationID: conversationID, Kind: kind})
	}
}

// SubmitMessage appends the user's message, captures a rollback snapshot,
// and asks the backend to create an execution. The queued execution returned
// by the backend is merged in immediately; the live stream reconciles the
// rest. An empty content argument submits the current draft.
func (m *Manager) SubmitMessage(ctx context.Context, conversationID, content string) (execution.Execution, error) {
	m.mu.Lock()
	rt, ok := m.runtimes[conversationID]
	if !ok {
		m.mu.Unlock()
		return execution.Execution{}, ErrUnknownConversation
	}

	text := strings.TrimSpace(content)
	fromDraft := false
	if text == "" {
		text = strings.TrimSpace(rt.Draft)
		fromDraft = true
	}
	if text == "" {
		m.mu.Unlock()
		return execution.Execution{}, ErrEmptyMessage
	}

	now := m.Now()
	queueIndex := nextQueueIndex(rt.Executions)
	msg := conversation.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           conversation.RoleUser,
		Content:        text,
		QueueIndex:     &queueIndex,
		CanRollback:    true,
		CreatedAt:      now,
	}
	rt.Messages = append(rt.Messages, msg)
	if fromDraft {
		rt.Draft = ""
	}
	rt.Err = ""

	snap := snapshot.Build(snapshot.BuildInput{
		ConversationID:         conversationID,
		RollbackPointMessageID: msg.ID,
		Messages:               rt.Messages,
		Executions:             rt.Executions,
		WorktreeRef:            rt.WorktreeRef,
		InspectorTab:           rt.InspectorTab,
	}, now)
	rt.Snapshots = append(rt.Snapshots, snap)
	m.recordSnapshot(snap)

	m.appendEventLocked(rt, execution.Event{
		EventID:        uuid.New().String(),
		ConversationID: conversationID,
		QueueIndex:     queueIndex,
		Type:           execution.EventMessageReceived,
		Timestamp:      now,
		Payload: map[string]any{
			"message_id": msg.ID,
			"content":    text,
		},
	})

	req := CreateExecutionRequest{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		Content:        text,
		Mode:           rt.Mode,
		ModelID:        rt.ModelID,
		QueueIndex:     queueIndex,
	}
	m.mu.Unlock()

	for _, kind := range []ChangeKind{ChangeMessages, ChangeSnapshots, ChangeEvents} {
		m.notifier.Publish(Change{ConversationID: conversationID, Kind: kind})
	}

	created, err := m.backend.CreateExecution(ctx, req)
	if err != nil {
		m.failAction(conversationID, fmt.Sprintf("failed to submit message: %v", err))
		return execution.Execution{}, fmt.Errorf("create execution: %w", err)
	}

	m.mu.Lock()
	if rt, ok := m.runtimes[conversationID]; ok {
		created.MessageID = msg.ID
		rt.Executions = execution.NormalizeList(append(rt.Executions, created))
		m.syncTickerLocked(conversationID, rt)
	}
	m.mu.Unlock()
	m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeExecutions})

	return created, nil
}

// StopExecution asks the backend to cancel. The displayed state is not
// forced terminal locally; the terminal event from the stream confirms the
// stop.
func (m *Manager) StopExecution(ctx context.Context, conversationID, executionID string) error {
	if _, ok := m.View(conversationID); !ok {
		return ErrUnknownConversation
	}
	if err := m.backend.CancelExecution(ctx, conversationID, executionID); err != nil {
		m.failAction(conversationID, fmt.Sprintf("failed to stop execution: %v", err))
		return fmt.Errorf("cancel execution: %w", err)
	}
	return nil
}

// ResolveConfirmation forwards an approval decision to the backend. State
// advances when the confirmation_resolved event arrives.
func (m *Manager) ResolveConfirmation(ctx context.Context, conversationID, executionID, decision string) error {
	if _, ok := m.View(conversationID); !ok {
		return ErrUnknownConversation
	}
	if err := m.backend.ResolveConfirmation(ctx, conversationID, executionID, decision); err != nil {
		m.failAction(conversationID, fmt.Sprintf("failed to resolve confirmation: %v", err))
		return fmt.Errorf("resolve confirmation: %w", err)
	}
	return nil
}

// Rollback rewinds the conversation to the snapshot taken at the given user
// message. The backend is asked first; on success messages, executions,
// worktree ref, and inspector tab are restored in one step and snapshots
// taken after the applied one are dropped.
func (m *Manager) Rollback(ctx context.Context, conversationID, messageID string) error {
	m.mu.Lock()
	rt, ok := m.runtimes[conversationID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownConversation
	}

	msg, found := findMessage(rt.Messages, messageID)
	if !found {
		m.mu.Unlock()
		return ErrUnknownMessage
	}
	if msg.Role != conversation.RoleUser || !msg.CanRollback {
		m.mu.Unlock()
		return ErrNotRollbackPoint
	}
	snap, found := snapshot.FindForMessage(rt.Snapshots, messageID)
	if !found {
		m.mu.Unlock()
		return ErrNoSnapshot
	}

	m.appendEventLocked(rt, m.syntheticEvent(conversationID, eventRollbackRequested, map[string]any{
		"message_id":  messageID,
		"snapshot_id": snap.ID,
	}))
	m.mu.Unlock()
	m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeEvents})

	if err := m.backend.RollbackConversation(ctx, conversationID, messageID); err != nil {
		m.failAction(conversationID, fmt.Sprintf("failed to roll back: %v", err))
		return fmt.Errorf("rollback conversation: %w", err)
	}

	m.mu.Lock()
	rt, ok = m.runtimes[conversationID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	now := m.Now()
	rt.Messages = conversation.CloneMessages(snap.Messages)
	rt.Executions = snapshot.RestoreExecutions(snap, rt.Executions, now)
	rt.Snapshots = dropSnapshotsAfter(rt.Snapshots, snap.ID)
	rt.WorktreeRef = snap.WorktreeRef
	if snap.InspectorState.Tab != "" {
		rt.InspectorTab = snap.InspectorState.Tab
	}
	rt.Err = ""
	m.appendEventLocked(rt, m.syntheticEvent(conversationID, eventSnapshotApplied, map[string]any{
		"snapshot_id": snap.ID,
	}))
	m.appendEventLocked(rt, m.syntheticEvent(conversationID, eventRollbackCompleted, map[string]any{
		"message_id": messageID,
	}))
	m.syncTickerLocked(conversationID, rt)
	m.mu.Unlock()

	m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeRollback})
	return nil
}

// SetConnectionStatus updates the stream connection status. Unknown
// conversation ids are a no-op.
func (m *Manager) SetConnectionStatus(conversationID string, status conversation.ConnectionStatus) {
	m.mu.Lock()
	rt, ok := m.runtimes[conversationID]
	if !ok || rt.Status == status {
		m.mu.Unlock()
		return
	}
	rt.Status = status
	m.mu.Unlock()
	m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeStatus})
}

// SetError surfaces an error message on the runtime; empty clears it.
func (m *Manager) SetError(conversationID, message string) {
	m.mu.Lock()
	rt, ok := m.runtimes[conversationID]
	if !ok {
		m.mu.Unlock()
		return
	}
	rt.Err = message
	m.mu.Unlock()
	m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeError})
}

// SetDraft stores the in-progress message text.
func (m *Manager) SetDraft(conversationID, draft string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.runtimes[conversationID]; ok {
		rt.Draft = draft
	}
}

// SetInspectorTab records which inspector panel is open.
func (m *Manager) SetInspectorTab(conversationID string, tab conversation.InspectorTab) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.runtimes[conversationID]; ok {
		rt.InspectorTab = tab
	}
}

// SelectExecution records which execution the inspector is focused on.
func (m *Manager) SelectExecution(conversationID, executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.runtimes[conversationID]; ok {
		rt.SelectedExecutionID = executionID
	}
}

// LastEventID returns the resume cursor for the conversation's stream.
func (m *Manager) LastEventID(conversationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.runtimes[conversationID]; ok {
		return rt.LastEventID
	}
	return ""
}

// RemoveRuntime tears down a conversation: the ticker stops and the entry
// is deleted. Stream detach is the attacher's job and must happen first.
func (m *Manager) RemoveRuntime(conversationID string) {
	m.mu.Lock()
	if stop, ok := m.tickers[conversationID]; ok {
		close(stop)
		delete(m.tickers, conversationID)
	}
	_, existed := m.runtimes[conversationID]
	delete(m.runtimes, conversationID)
	m.mu.Unlock()

	if existed {
		m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeRemoved})
		m.logger.Debug("runtime removed", "conversation_id", conversationID)
	}
}

// Close tears down all runtimes and the notifier.
func (m *Manager) Close() {
	m.mu.Lock()
	for id, stop := range m.tickers {
		close(stop)
		delete(m.tickers, id)
	}
	m.runtimes = make(map[string]*Runtime)
	m.mu.Unlock()
	m.notifier.Close()
}

// appendEventLocked appends to the bounded event ring, advances the resume
// cursor, and tees into the recorder.
func (m *Manager) appendEventLocked(rt *Runtime, ev execution.Event) {
	rt.Events = boundEvents(append(rt.Events, ev))
	if ev.EventID != "" {
		rt.LastEventID = ev.EventID
	}
	if m.recorder != nil {
		if err := m.recorder.RecordEvent(rt.Conversation.ID, ev); err != nil {
			m.logger.Warn("failed to record event",
				"conversation_id", rt.Conversation.ID,
				"event_id", ev.EventID,
				"error", err)
		}
	}
}

func (m *Manager) recordSnapshot(snap snapshot.Snapshot) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordSnapshot(snap); err != nil {
		m.logger.Warn("failed to record snapshot",
			"conversation_id", snap.ConversationID,
			"snapshot_id", snap.ID,
			"error", err)
	}
}

// ensureExecutionLocked returns a pointer to the event's execution, creating
// a queued placeholder when the id has not been seen yet.
func (m *Manager) ensureExecutionLocked(rt *Runtime, ev execution.Event) *execution.Execution {
	for i := range rt.Executions {
		if rt.Executions[i].ID == ev.ExecutionID {
			return &rt.Executions[i]
		}
	}
	placeholder := execution.NewFromEvent(rt.Conversation.ID, ev)
	if placeholder.MessageID == "" {
		placeholder.MessageID = userMessageIDByQueueIndex(rt.Messages, ev.QueueIndex)
	}
	rt.Executions = append(rt.Executions, placeholder)
	m.logger.Debug("execution created from event",
		"conversation_id", rt.Conversation.ID,
		"execution_id", ev.ExecutionID,
		"type", ev.Type)
	return &rt.Executions[len(rt.Executions)-1]
}

func (m *Manager) syntheticEvent(conversationID string, kind execution.EventType, payload map[string]any) execution.Event {
	return execution.Event{
		EventID:        uuid.New().String(),
		ConversationID: conversationID,
		Type:           kind,
		Timestamp:      m.Now(),
		Payload:        payload,
	}
}

// failAction surfaces a backend action failure as both the runtime error
// and a system message. Safe when the runtime was torn down mid-action.
func (m *Manager) failAction(conversationID, message string) {
	m.mu.Lock()
	rt, ok := m.runtimes[conversationID]
	if !ok {
		m.mu.Unlock()
		return
	}
	rt.Err = message
	rt.Messages = append(rt.Messages, conversation.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           conversation.RoleSystem,
		Content:        message,
		CreatedAt:      m.Now(),
	})
	m.mu.Unlock()

	m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeError})
	m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeMessages})
}

// syncTickerLocked starts the elapsed ticker while any execution is active
// and stops it as soon as none are.
func (m *Manager) syncTickerLocked(conversationID string, rt *Runtime) {
	active := conversation.CountActive(rt.Executions) > 0
	stop, running := m.tickers[conversationID]
	switch {
	case active && !running:
		stop = make(chan struct{})
		m.tickers[conversationID] = stop
		go m.runTicker(conversationID, stop)
	case !active && running:
		close(stop)
		delete(m.tickers, conversationID)
	}
}

func (m *Manager) runTicker(conversationID string, stop <-chan struct{}) {
	ticker := time.NewTicker(m.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.notifier.Publish(Change{ConversationID: conversationID, Kind: ChangeTick})
		case <-stop:
			return
		}
	}
}

// terminalMessage builds the completion message for a terminal transition.
// Completed executions speak as the assistant when the event carries text;
// failures and stops surface as system messages.
func terminalMessage(conversationID string, e execution.Execution, ev execution.Event, now time.Time) (conversation.Message, bool) {
	var role conversation.Role
	var content string

	switch e.State {
	case execution.StateCompleted:
		role = conversation.RoleAssistant
		content = payloadText(ev.Payload, "message", "content")
		if content == "" {
			return conversation.Message{}, false
		}
	case execution.StateFailed:
		role = conversation.RoleSystem
		content = payloadText(ev.Payload, "error", "message")
		if content == "" {
			content = "execution failed"
		}
	case execution.StateCancelled:
		role = conversation.RoleSystem
		content = "execution stopped"
	default:
		return conversation.Message{}, false
	}

	queueIndex := e.QueueIndex
	return conversation.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		QueueIndex:     &queueIndex,
		CreatedAt:      now,
	}, true
}

// insertMessageByQueueIndex places a completion message directly after the
// last message belonging to the same or an earlier queue slot, so an early
// finisher does not jump past messages of later submissions.
func insertMessageByQueueIndex(rt *Runtime, msg conversation.Message) {
	if msg.QueueIndex == nil {
		rt.Messages = append(rt.Messages, msg)
		return
	}
	insertAt := len(rt.Messages)
	for i := len(rt.Messages) - 1; i >= 0; i-- {
		qi := rt.Messages[i].QueueIndex
		if qi != nil && *qi <= *msg.QueueIndex {
			insertAt = i + 1
			break
		}
	}
	rt.Messages = append(rt.Messages, conversation.Message{})
	copy(rt.Messages[insertAt+1:], rt.Messages[insertAt:])
	rt.Messages[insertAt] = msg
}

func boundEvents(events []execution.Event) []execution.Event {
	if len(events) <= MaxRuntimeEvents {
		return events
	}
	overflow := len(events) - MaxRuntimeEvents
	return append(events[:0], events[overflow:]...)
}

func nextQueueIndex(executions []execution.Execution) int {
	next := 0
	for _, e := range executions {
		if e.QueueIndex >= next {
			next = e.QueueIndex + 1
		}
	}
	return next
}

// payloadText returns the first non-empty string among the given payload
// keys.
func payloadText(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// messageFromEvent rebuilds the user message a message_received event
// carries. Events without a message id or content are skipped.
func messageFromEvent(conversationID string, ev execution.Event) (conversation.Message, bool) {
	messageID := payloadText(ev.Payload, "message_id")
	content := payloadText(ev.Payload, "content", "text", "message")
	if messageID == "" || content == "" {
		return conversation.Message{}, false
	}
	queueIndex := ev.QueueIndex
	return conversation.Message{
		ID:             messageID,
		ConversationID: conversationID,
		Role:           conversation.RoleUser,
		Content:        content,
		QueueIndex:     &queueIndex,
		CanRollback:    true,
		CreatedAt:      ev.Timestamp,
	}, true
}

// userMessageIDByQueueIndex links a placeholder execution to the user
// message submitted at the same queue slot.
func userMessageIDByQueueIndex(messages []conversation.Message, queueIndex int) string {
	for _, msg := range messages {
		if msg.Role == conversation.RoleUser && msg.QueueIndex != nil && *msg.QueueIndex == queueIndex {
			return msg.ID
		}
	}
	return ""
}

func findMessage(messages []conversation.Message, messageID string) (conversation.Message, bool) {
	for _, msg := range messages {
		if msg.ID == messageID {
			return msg, true
		}
	}
	return conversation.Message{}, false
}

func dropSnapshotsAfter(snapshots []snapshot.Snapshot, snapshotID string) []snapshot.Snapshot {
	for i, snap := range snapshots {
		if snap.ID == snapshotID {
			return snapshots[:i+1]
		}
	}
	return snapshots
}
