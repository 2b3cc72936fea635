package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/companion/llm"
	"github.com/BaSui01/companion/types"
)

func TestChatCompletion_SendsKeepAlive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "300s", body["keep_alive"])
		assert.Equal(t, "qwen2.5", body["model"])
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL + "/v1", Model: "qwen2.5", KeepAlive: 300}, nil)
	ch, err := p.ChatCompletion(context.Background(), []types.Message{types.NewUserMessage("hi")}, "sys")
	require.NoError(t, err)
	text, err := llm.Collect(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestKeepAliveValue(t *testing.T) {
	assert.Equal(t, -1, keepAliveValue(-1))
	assert.Equal(t, "0s", keepAliveValue(0))
	assert.Equal(t, "60s", keepAliveValue(60))
}

func TestClose_UnloadsModel(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen2.5", body["model"])
		assert.EqualValues(t, 0, body["keep_alive"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL + "/v1", Model: "qwen2.5", UnloadAtExit: true}, nil)
	require.NoError(t, p.Close(context.Background()))
	assert.EqualValues(t, 1, calls.Load())
}

func TestClose_SkippedWhenDisabled(t *testing.T) {
	p := New(Config{BaseURL: "http://127.0.0.1:1/v1", Model: "m", UnloadAtExit: false}, nil)
	assert.NoError(t, p.Close(context.Background()))
}
