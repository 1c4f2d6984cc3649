// ABOUTME: HTTP action client for the conversation server REST endpoints
// ABOUTME: Implements the runtime Backend interface over JSON requests

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/coven-console/internal/conversation"
	"github.com/2389/coven-console/internal/execution"
	"github.com/2389/coven-console/internal/runtime"
	"github.com/2389/coven-console/internal/snapshot"
)

// API issues conversation actions (submit, cancel, confirm, rollback)
// against the server's REST endpoints. It satisfies runtime.Backend.
type API struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAPI creates an action client for the given server. httpClient may be
// nil, in which case http.DefaultClient is used.
func NewAPI(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logger.With("component", "api"),
	}
}

type createExecutionBody struct {
	MessageID  string `json:"message_id"`
	Content    string `json:"content"`
	Mode       string `json:"mode"`
	ModelID    string `json:"model_id"`
	QueueIndex int    `json:"queue_index"`
}

// CreateExecution submits a user message for execution and returns the
// server's queued execution record.
func (a *API) CreateExecution(ctx context.Context, req runtime.CreateExecutionRequest) (execution.Execution, error) {
	url := fmt.Sprintf("%s/api/conversations/%s/executions", a.baseURL, req.ConversationID)
	body := createExecutionBody{
		MessageID:  req.MessageID,
		Content:    req.Content,
		Mode:       string(req.Mode),
		ModelID:    req.ModelID,
		QueueIndex: req.QueueIndex,
	}

	var created execution.Execution
	if err := a.post(ctx, url, body, &created); err != nil {
		return execution.Execution{}, fmt.Errorf("creating execution: %w", err)
	}

	a.logger.Debug("execution created",
		"conversation_id", req.ConversationID,
		"execution_id", created.ID,
	)
	return created, nil
}

// CancelExecution asks the server to stop an execution. The resulting state
// change arrives through the event stream, not this call.
func (a *API) CancelExecution(ctx context.Context, conversationID, executionID string) error {
	url := fmt.Sprintf("%s/api/conversations/%s/executions/%s/cancel", a.baseURL, conversationID, executionID)
	if err := a.post(ctx, url, struct{}{}, nil); err != nil {
		return fmt.Errorf("cancelling execution: %w", err)
	}
	return nil
}

// ResolveConfirmation answers a pending tool confirmation.
func (a *API) ResolveConfirmation(ctx context.Context, conversationID, executionID, decision string) error {
	url := fmt.Sprintf("%s/api/conversations/%s/executions/%s/confirmation", a.baseURL, conversationID, executionID)
	body := map[string]string{"decision": decision}
	if err := a.post(ctx, url, body, nil); err != nil {
		return fmt.Errorf("resolving confirmation: %w", err)
	}
	return nil
}

// RollbackConversation asks the server to roll the conversation's worktree
// back to the state captured at the given message.
func (a *API) RollbackConversation(ctx context.Context, conversationID, messageID string) error {
	url := fmt.Sprintf("%s/api/conversations/%s/rollback", a.baseURL, conversationID)
	body := map[string]string{"message_id": messageID}
	if err := a.post(ctx, url, body, nil); err != nil {
		return fmt.Errorf("rolling back conversation: %w", err)
	}
	return nil
}

type conversationDetailBody struct {
	Conversation conversation.Conversation `json:"conversation"`
	Messages     []conversation.Message    `json:"messages"`
	Executions   []execution.Execution     `json:"executions"`
	Events       []map[string]any          `json:"events"`
	Snapshots    []snapshot.Snapshot       `json:"snapshots"`
	LastEventID  string                    `json:"last_event_id"`
}

// FetchConversation retrieves the full conversation detail used for
// (re-)hydration, for example after the stream reports a lost resume
// cursor. Wire events run through the event adapter, so both event dialects
// hydrate the same way they stream.
func (a *API) FetchConversation(ctx context.Context, conversationID string) (runtime.HydrationDetail, error) {
	url := fmt.Sprintf("%s/api/conversations/%s", a.baseURL, conversationID)

	var body conversationDetailBody
	if err := a.get(ctx, url, &body); err != nil {
		return runtime.HydrationDetail{}, fmt.Errorf("fetching conversation: %w", err)
	}

	detail := runtime.HydrationDetail{
		Conversation: body.Conversation,
		Messages:     body.Messages,
		Executions:   body.Executions,
		Snapshots:    body.Snapshots,
		LastEventID:  body.LastEventID,
	}
	now := time.Now()
	for _, raw := range body.Events {
		ev, ok := execution.FromWirePayload(raw, conversationID, now)
		if !ok {
			a.logger.Debug("skipping unadaptable hydration event", "conversation_id", conversationID)
			continue
		}
		detail.Events = append(detail.Events, ev)
	}
	return detail, nil
}

// get fetches a URL and decodes its JSON response into out.
func (a *API) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// post sends a JSON body and optionally decodes a JSON response into out.
func (a *API) post(ctx context.Context, url string, body any, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
			var errResp map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
				if msg, ok := errResp["error"]; ok && msg != "" {
					return fmt.Errorf("%s", msg)
				}
			}
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
