// ABOUTME: SSE stream client over net/http implementing the stream transport
// ABOUTME: Bearer auth, Last-Event-ID resume, and reconnect with backoff

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/execution"
	"github.com/2389/coven-console/internal/stream"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second

	// disconnectedThreshold is how many consecutive failed connects flip the
	// surfaced status from reconnecting to disconnected. Retrying continues
	// either way.
	disconnectedThreshold = 5
)

// Client opens SSE event streams against the conversation server. Satisfies
// stream.Transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// InitialBackoff and MaxBackoff bound the reconnect delay, which doubles
	// per consecutive failure.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// NewClient creates an SSE client. httpClient may be nil for
// http.DefaultClient; logger nil for default.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     httpClient,
		logger:         logger.With("component", "transport"),
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		Now:            time.Now,
	}
}

// OpenStream starts the streaming loop for one conversation and returns a
// handle that cancels it. The loop reconnects with backoff until the handle
// is closed or ctx is cancelled.
func (c *Client) OpenStream(ctx context.Context, conversationID string, opts stream.OpenOptions) (stream.Handle, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("open stream: conversation id is empty")
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &sseHandle{cancel: cancel, done: make(chan struct{})}
	go c.run(ctx, conversationID, opts, h)
	return h, nil
}

type sseHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (h *sseHandle) Close() error {
	h.once.Do(h.cancel)
	<-h.done
	return nil
}

func (c *Client) run(ctx context.Context, conversationID string, opts stream.OpenOptions, h *sseHandle) {
	defer close(h.done)

	lastEventID := opts.LastEventID
	backoff := c.InitialBackoff
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.consume(ctx, conversationID, opts, &lastEventID, func() {
			failures = 0
			backoff = c.InitialBackoff
			notifyStatus(opts, conversation.StatusConnected)
		})
		if ctx.Err() != nil {
			return
		}

		failures++
		if err != nil {
			c.logger.Debug("stream connection lost",
				"conversation_id", conversationID,
				"failures", failures,
				"error", err)
			if opts.Callbacks.OnError != nil {
				opts.Callbacks.OnError(err)
			}
		}

		if failures >= disconnectedThreshold {
			notifyStatus(opts, conversation.StatusDisconnected)
		} else {
			notifyStatus(opts, conversation.StatusReconnecting)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
		}
	}
}

// consume opens one connection and reads frames until it drops. onConnected
// fires after a successful HTTP 200 so status and backoff reset together.
func (c *Client) consume(ctx context.Context, conversationID string, opts stream.OpenOptions, lastEventID *string, onConnected func()) error {
	url := fmt.Sprintf("%s/api/conversations/%s/events", c.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}
	if *lastEventID != "" {
		req.Header.Set("Last-Event-ID", *lastEventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	onConnected()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var frameID, eventName string
	var dataLines []string

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()

		// Empty line ends the frame.
		if line == "" {
			if len(dataLines) > 0 {
				c.dispatch(conversationID, opts, frameID, eventName, strings.Join(dataLines, "\n"), lastEventID)
			}
			frameID, eventName = "", ""
			dataLines = nil
			continue
		}

		switch {
		case strings.HasPrefix(line, "id:"):
			frameID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data:"))
		case strings.HasPrefix(line, ":"):
			// Comment lines keep idle connections alive.
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

// dispatch decodes one frame and forwards the adapted event. Frames that do
// not decode or carry no recognizable type are logged and skipped; a single
// bad frame never kills the connection.
func (c *Client) dispatch(conversationID string, opts stream.OpenOptions, frameID, eventName, data string, lastEventID *string) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		c.logger.Debug("skipping undecodable frame",
			"conversation_id", conversationID,
			"error", err)
		return
	}
	if _, ok := raw["type"]; !ok && eventName != "" {
		raw["type"] = eventName
	}
	if _, ok := raw["event_id"]; !ok && frameID != "" {
		raw["event_id"] = frameID
	}

	ev, ok := execution.FromWirePayload(raw, conversationID, c.Now())
	if !ok {
		c.logger.Debug("skipping unrecognized frame",
			"conversation_id", conversationID,
			"event", eventName)
		return
	}
	if frameID != "" {
		*lastEventID = frameID
	} else if ev.EventID != "" {
		*lastEventID = ev.EventID
	}
	if opts.Callbacks.OnEvent != nil {
		opts.Callbacks.OnEvent(ev)
	}
}

func notifyStatus(opts stream.OpenOptions, status conversation.ConnectionStatus) {
	if opts.Callbacks.OnStatusChange != nil {
		opts.Callbacks.OnStatusChange(status)
	}
}
