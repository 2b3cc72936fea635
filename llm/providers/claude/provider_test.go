package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/companion/llm"
	"github.com/BaSui01/companion/types"
)

func writeEvent(w http.ResponseWriter, typ string, payload map[string]any) {
	payload["type"] = typ
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ, data)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{APIKey: "k"}, nil)
	assert.Equal(t, DefaultModel, p.cfg.Model)
	assert.Equal(t, DefaultBaseURL, p.cfg.BaseURL)
	assert.Equal(t, "claude_llm", p.Name())
}

func TestChatCompletion_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "persona", body.System)
		assert.True(t, body.Stream)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)

		writeEvent(w, "message_start", map[string]any{"message": map[string]any{"id": "m1", "model": "claude-3-haiku"}})
		writeEvent(w, "content_block_delta", map[string]any{"index": 0, "delta": map[string]any{"type": "text_delta", "text": "Hi "}})
		writeEvent(w, "content_block_delta", map[string]any{"index": 0, "delta": map[string]any{"type": "text_delta", "text": "there"}})
		writeEvent(w, "message_delta", map[string]any{"delta": map[string]any{"stop_reason": "end_turn"}})
		writeEvent(w, "message_stop", map[string]any{})
	}))
	defer srv.Close()

	p := New(Config{APIKey: "secret", BaseURL: srv.URL}, nil)
	ch, err := p.ChatCompletion(context.Background(), []types.Message{types.NewUserMessage("hello")}, "persona")
	require.NoError(t, err)

	text, err := llm.Collect(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
}

func TestChatCompletion_ErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "content_block_delta", map[string]any{"delta": map[string]any{"type": "text_delta", "text": "par"}})
		writeEvent(w, "error", map[string]any{"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"}})
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	ch, err := p.ChatCompletion(context.Background(), []types.Message{types.NewUserMessage("x")}, "")
	require.NoError(t, err)

	text, err := llm.Collect(context.Background(), ch)
	assert.Equal(t, "par", text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Overloaded")
}

func TestChatCompletion_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow"}}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := p.ChatCompletion(context.Background(), nil, "")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRateLimited))
	assert.True(t, types.IsRetryable(err))
}

func TestConvertMessages(t *testing.T) {
	sys, msgs := convertMessages([]types.Message{
		{Role: types.RoleSystem, Content: "memory system"},
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello..."},
		{Role: types.RoleSystem, Content: "[Interrupted by user]"},
		{Role: types.RoleUser, Content: "again"},
	}, "persona")

	assert.Equal(t, "persona\n\nmemory system", sys)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "user", msgs[2].Role)
	assert.Equal(t, "[Interrupted by user]\nagain", msgs[2].Content[0].Text)
}
