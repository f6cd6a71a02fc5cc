package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", "2024-05-01-preview")
}

func TestClientSendsAzureHeaders(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		gotVersion = r.URL.Query().Get("api-version")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(Thread{ID: "thread_1"})
	})

	th, err := c.CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "thread_1", th.ID)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "2024-05-01-preview", gotVersion)
	assert.Equal(t, "/openai/threads", gotPath)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"rate_limit_exceeded","message":"Requests to the API have exceeded the rate limit."}}`))
	})

	_, err := c.CreateRun(context.Background(), "thread_1", "asst_1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate_limit_exceeded", apiErr.Code)
	assert.Contains(t, apiErr.Message, "rate limit")
}

func TestClientNonJSONErrorBodyKeptAsMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	_, err := c.GetRun(context.Background(), "thread_1", "run_1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}

func TestSubmitToolOutputsBody(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(Run{ID: "run_1", Status: RunInProgress})
	})

	outputs := []ToolOutput{{ToolCallID: "call_1", Output: `{"ok":true}`}}
	run, err := c.SubmitToolOutputs(context.Background(), "thread_1", "run_1", outputs)
	require.NoError(t, err)
	assert.Equal(t, RunInProgress, run.Status)

	raw, ok := body["tool_outputs"].([]any)
	require.True(t, ok)
	require.Len(t, raw, 1)
	first := raw[0].(map[string]any)
	assert.Equal(t, "call_1", first["tool_call_id"])
}

func TestListMessagesUnwrapsData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"msg_1","role":"assistant","run_id":"run_1","content":[{"type":"text","text":{"value":"hi"}}]}]}`))
	})

	msgs, err := c.ListMessages(context.Background(), "thread_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	text, ok := msgs[0].Text()
	require.True(t, ok)
	assert.Equal(t, "hi", text)
}

func TestRunStatusPending(t *testing.T) {
	assert.True(t, RunQueued.Pending())
	assert.True(t, RunInProgress.Pending())
	assert.True(t, RunRequiresAction.Pending())
	assert.False(t, RunCompleted.Pending())
	assert.False(t, RunFailed.Pending())
	assert.False(t, RunExpired.Pending())
}
