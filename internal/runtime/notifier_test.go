// ABOUTME: Tests for the change notifier fan-out
// ABOUTME: Covers per-conversation delivery, context cleanup, and slow subscribers

package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_DeliversToConversationSubscribers(t *testing.T) {
	n := NewNotifier(nil)
	defer n.Close()

	ctx := context.Background()
	ch, _ := n.Subscribe(ctx, "conv-1")
	other, _ := n.Subscribe(ctx, "conv-2")

	n.Publish(Change{ConversationID: "conv-1", Kind: ChangeEvents})

	select {
	case change := <-ch:
		assert.Equal(t, ChangeEvents, change.Kind)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
	select {
	case <-other:
		t.Fatal("change leaked to another conversation")
	default:
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier(nil)
	defer n.Close()

	ch, subID := n.Subscribe(context.Background(), "conv-1")
	n.Unsubscribe("conv-1", subID)

	_, open := <-ch
	assert.False(t, open)

	// Publishing afterwards is harmless.
	n.Publish(Change{ConversationID: "conv-1", Kind: ChangeEvents})
}

func TestNotifier_ContextCancelCleansUp(t *testing.T) {
	n := NewNotifier(nil)
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := n.Subscribe(ctx, "conv-1")
	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestNotifier_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	n := NewNotifier(nil)
	defer n.Close()

	ch, _ := n.Subscribe(context.Background(), "conv-1")
	for i := 0; i < subscriberBufferSize+10; i++ {
		n.Publish(Change{ConversationID: "conv-1", Kind: ChangeTick})
	}

	require.Len(t, ch, subscriberBufferSize)
}
