// ABOUTME: In-memory fan-out of runtime change notifications
// ABOUTME: Subscribers register per conversation id and receive coarse change kinds

package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber. Changes
// are coarse invalidation signals, so dropping one for a slow subscriber
// only delays a re-render until the next change.
const subscriberBufferSize = 64

// ChangeKind names what part of a runtime changed.
type ChangeKind string

const (
	ChangeMessages   ChangeKind = "messages"
	ChangeEvents     ChangeKind = "events"
	ChangeExecutions ChangeKind = "executions"
	ChangeSnapshots  ChangeKind = "snapshots"
	ChangeStatus     ChangeKind = "status"
	ChangeError      ChangeKind = "error"
	ChangeRollback   ChangeKind = "rollback"
	ChangeHydrated   ChangeKind = "hydrated"
	ChangeTick       ChangeKind = "tick"
	ChangeRemoved    ChangeKind = "removed"
)

// Change is one notification. It carries no state; subscribers read the
// current View from the manager when they react.
type Change struct {
	ConversationID string
	Kind           ChangeKind
}

// Notifier provides in-memory pub/sub for runtime changes. Consumers
// subscribe per conversation id and re-render from the manager's View on
// each notification.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Change // conversationID -> subID -> ch
	logger      *slog.Logger
}

// NewNotifier creates a notifier. Pass nil logger for default.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subscribers: make(map[string]map[string]chan Change),
		logger:      logger.With("component", "notifier"),
	}
}

// Subscribe registers a subscriber for changes to the given conversation.
// Returns the receiving channel and a subscription id for Unsubscribe. The
// subscription is cleaned up automatically when ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context, conversationID string) (<-chan Change, string) {
	subID := uuid.New().String()
	ch := make(chan Change, subscriberBufferSize)

	n.mu.Lock()
	if _, ok := n.subscribers[conversationID]; !ok {
		n.subscribers[conversationID] = make(map[string]chan Change)
	}
	n.subscribers[conversationID][subID] = ch
	n.mu.Unlock()

	n.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		n.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish sends a change to all subscribers of the conversation.
// Non-blocking: the change is dropped for subscribers whose channels are
// full.
func (n *Notifier) Publish(change Change) {
	n.mu.RLock()
	subs, ok := n.subscribers[change.ConversationID]
	if !ok || len(subs) == 0 {
		n.mu.RUnlock()
		return
	}
	targets := make([]chan Change, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	n.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- change:
		default:
			n.logger.Debug("dropped change for slow subscriber",
				"conversation_id", change.ConversationID,
				"kind", change.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (n *Notifier) Unsubscribe(conversationID, subID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs, ok := n.subscribers[conversationID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(n.subscribers, conversationID)
	}

	n.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// Close shuts down the notifier and closes all subscriber channels.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for conversationID, subs := range n.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(n.subscribers, conversationID)
	}
	n.logger.Debug("notifier closed")
}
