// ABOUTME: Transport contract for live conversation event streams
// ABOUTME: Callback-based: events, connection status changes, and errors

package stream

import (
	"context"

	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/execution"
)

// Handle controls one open stream. Close is idempotent.
type Handle interface {
	Close() error
}

// Callbacks receive stream activity. Each callback runs to completion before
// the next is delivered; implementations must not call back re-entrantly.
type Callbacks struct {
	OnEvent        func(ev execution.Event)
	OnStatusChange func(status conversation.ConnectionStatus)
	OnError        func(err error)
}

// OpenOptions configures one stream.
type OpenOptions struct {
	Token       string
	LastEventID string
	Callbacks   Callbacks
}

// Transport opens live event streams. Reconnection policy lives inside the
// transport; consumers only observe status changes.
type Transport interface {
	OpenStream(ctx context.Context, conversationID string, opts OpenOptions) (Handle, error)
}
