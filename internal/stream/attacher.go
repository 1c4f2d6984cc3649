// ABOUTME: Attaches at most one transport stream per conversation runtime
// ABOUTME: Idempotent attach/detach with guards against late callbacks

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/execution"
	"github.com/2389/coven-console/internal/runtime"
)

// Runtimes is the slice of the runtime manager the attacher needs. All
// mutators are no-ops for unknown conversation ids, which is what makes
// late callbacks after teardown safe.
type Runtimes interface {
	View(conversationID string) (runtime.View, bool)
	ApplyIncomingEvent(conversationID string, ev execution.Event)
	SetConnectionStatus(conversationID string, status conversation.ConnectionStatus)
	SetError(conversationID, message string)
	LastEventID(conversationID string) string
}

// Attacher owns the conversation-to-stream mapping. One stream per
// conversation; attach is idempotent and detach is safe when nothing is
// attached.
type Attacher struct {
	mu       sync.Mutex
	attached map[string]Handle

	runtimes  Runtimes
	transport Transport
	token     string
	logger    *slog.Logger

	// Now is injectable for deterministic tests.
	Now func() time.Time
	// OnResync is called when the stream reports that the resume cursor is
	// gone and the conversation must be re-hydrated out of band.
	OnResync func(conversationID, latestEventID string)
}

// NewAttacher creates an attacher. logger may be nil for default.
func NewAttacher(runtimes Runtimes, transport Transport, token string, logger *slog.Logger) *Attacher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Attacher{
		attached:  make(map[string]Handle),
		runtimes:  runtimes,
		transport: transport,
		token:     token,
		logger:    logger.With("component", "stream"),
		Now:       time.Now,
	}
}

// Attach opens a stream for the conversation. No-op when a stream is
// already attached (the existing handle is left untouched) or when the
// runtime does not exist.
func (a *Attacher) Attach(ctx context.Context, conversationID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.attached[conversationID]; ok {
		return nil
	}
	if _, ok := a.runtimes.View(conversationID); !ok {
		a.logger.Debug("attach skipped, no runtime", "conversation_id", conversationID)
		return nil
	}

	opts := OpenOptions{
		Token:       a.token,
		LastEventID: a.runtimes.LastEventID(conversationID),
		Callbacks: Callbacks{
			OnEvent:        func(ev execution.Event) { a.handleEvent(conversationID, ev) },
			OnStatusChange: func(status conversation.ConnectionStatus) { a.handleStatus(conversationID, status) },
			OnError:        func(err error) { a.handleError(conversationID, err) },
		},
	}
	handle, err := a.transport.OpenStream(ctx, conversationID, opts)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	a.attached[conversationID] = handle
	a.logger.Debug("stream attached", "conversation_id", conversationID)
	return nil
}

// Detach closes the stream and removes the mapping. Safe to call when
// nothing is attached.
func (a *Attacher) Detach(conversationID string) {
	a.mu.Lock()
	handle, ok := a.attached[conversationID]
	delete(a.attached, conversationID)
	a.mu.Unlock()

	if !ok {
		return
	}
	if err := handle.Close(); err != nil {
		a.logger.Warn("failed to close stream",
			"conversation_id", conversationID,
			"error", err)
	}
	a.logger.Debug("stream detached", "conversation_id", conversationID)
}

// IsAttached reports whether a stream is currently attached.
func (a *Attacher) IsAttached(conversationID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.attached[conversationID]
	return ok
}

// Close detaches every stream.
func (a *Attacher) Close() {
	a.mu.Lock()
	handles := a.attached
	a.attached = make(map[string]Handle)
	a.mu.Unlock()

	for conversationID, handle := range handles {
		if err := handle.Close(); err != nil {
			a.logger.Warn("failed to close stream",
				"conversation_id", conversationID,
				"error", err)
		}
	}
}

func (a *Attacher) handleEvent(conversationID string, ev execution.Event) {
	if !a.IsAttached(conversationID) {
		return
	}
	if execution.IsResync(ev) {
		latest := execution.LatestEventIDFromResync(ev)
		a.logger.Debug("resync required",
			"conversation_id", conversationID,
			"latest_event_id", latest)
		if a.OnResync != nil {
			a.OnResync(conversationID, latest)
		}
		return
	}
	a.runtimes.ApplyIncomingEvent(conversationID, ev)
}

// handleStatus records the new connection status and, on any transition
// away from connected, appends a synthetic timeline event carrying it.
func (a *Attacher) handleStatus(conversationID string, status conversation.ConnectionStatus) {
	if !a.IsAttached(conversationID) {
		return
	}
	a.runtimes.SetConnectionStatus(conversationID, status)
	if status == conversation.StatusConnected {
		return
	}
	a.runtimes.ApplyIncomingEvent(conversationID, execution.Event{
		EventID:        uuid.New().String(),
		ConversationID: conversationID,
		Type:           execution.EventThinkingDelta,
		Timestamp:      a.Now(),
		Payload: map[string]any{
			"stream_status": string(status),
		},
	})
}

func (a *Attacher) handleError(conversationID string, err error) {
	if !a.IsAttached(conversationID) || err == nil {
		return
	}
	a.runtimes.SetError(conversationID, err.Error())
}
