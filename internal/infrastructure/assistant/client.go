// Package assistant is a thin HTTP client for the Azure OpenAI Assistants
// API. The service is treated as an opaque stateful conversation store; this
// package only knows the wire shapes the coordinator needs.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RunStatus is the lifecycle status of an assistant run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
)

// Pending reports whether the run is still making progress and worth polling.
func (s RunStatus) Pending() bool {
	return s == RunQueued || s == RunInProgress || s == RunRequiresAction
}

// Thread is an assistant conversation thread.
type Thread struct {
	ID string `json:"id"`
}

// Run is an assistant run over a thread.
type Run struct {
	ID             string          `json:"id"`
	Status         RunStatus       `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
	LastError      *RunError       `json:"last_error,omitempty"`
}

// RequiredAction carries the tool calls a run is blocked on.
type RequiredAction struct {
	Type              string `json:"type"`
	SubmitToolOutputs struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	} `json:"submit_tool_outputs"`
}

// ToolCall is one function invocation requested by the assistant.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ToolOutput is the synthesized result for one tool call.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// RunError is the provider's failure detail on a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Message is a thread message.
type Message struct {
	ID      string           `json:"id"`
	Role    string           `json:"role"`
	RunID   string           `json:"run_id"`
	Content []MessageContent `json:"content"`
}

// MessageContent is one content block of a message. Only text blocks carry a
// Text value.
type MessageContent struct {
	Type string `json:"type"`
	Text *struct {
		Value string `json:"value"`
	} `json:"text,omitempty"`
}

// Text returns the first text block of the message, if any.
func (m *Message) Text() (string, bool) {
	for _, c := range m.Content {
		if c.Type == "text" && c.Text != nil {
			return c.Text.Value, true
		}
	}
	return "", false
}

// APIError is a non-2xx response from the assistant service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("assistant API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("assistant API error (%d): %s", e.StatusCode, e.Message)
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the Azure OpenAI Assistants endpoints. The api-key header and
// api-version query parameter follow Azure's scheme.
type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string
	client     *http.Client
}

// NewClient creates an assistant API client.
func NewClient(endpoint, apiKey, apiVersion string) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		apiKey:     apiKey,
		apiVersion: apiVersion,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) url(path string) string {
	return c.endpoint + "/openai" + path + "?api-version=" + c.apiVersion
}

// do issues one JSON request and decodes the response into out (if non-nil).
// Non-2xx responses come back as *APIError with the provider's message.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var envelope apiErrorEnvelope
		if jsonErr := json.Unmarshal(respBody, &envelope); jsonErr == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// CreateThread starts a new empty conversation thread.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var t Thread
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateMessage appends a user message to the thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, content string) (*Message, error) {
	in := map[string]string{"role": "user", "content": content}
	var m Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateRun starts a run of assistantID against the thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	in := map[string]string{"assistant_id": assistantID}
	var r Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var r Run
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SubmitToolOutputs posts all synthesized tool outputs for a blocked run in
// one batch and returns the updated run.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	in := map[string]any{"tool_outputs": outputs}
	var r Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListMessages returns the thread's messages, newest first (provider order).
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	var out struct {
		Data []Message `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}
