package providers

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/BaSui01/companion/types"
)

func TestMapHTTPError(t *testing.T) {
	testCases := []struct {
		name          string
		status        int
		msg           string
		expectedCode  types.ErrorCode
		expectedRetry bool
	}{
		{"401 unauthorized", http.StatusUnauthorized, "Invalid API key", types.ErrUnauthorized, false},
		{"403 forbidden", http.StatusForbidden, "Access denied", types.ErrForbidden, false},
		{"404 model", http.StatusNotFound, "model not found", types.ErrModelNotFound, false},
		{"429 rate limited", http.StatusTooManyRequests, "slow down", types.ErrRateLimited, true},
		{"400 quota", http.StatusBadRequest, "You exceeded your current quota", types.ErrQuotaExceeded, false},
		{"400 credit", http.StatusBadRequest, "insufficient credit", types.ErrQuotaExceeded, false},
		{"400 context length", http.StatusBadRequest, "maximum context length exceeded", types.ErrContextTooLong, false},
		{"400 plain", http.StatusBadRequest, "bad field", types.ErrInvalidRequest, false},
		{"502", http.StatusBadGateway, "bad gateway", types.ErrUpstreamError, true},
		{"503", http.StatusServiceUnavailable, "unavailable", types.ErrUpstreamError, true},
		{"504", http.StatusGatewayTimeout, "timeout", types.ErrUpstreamTimeout, true},
		{"529", 529, "overloaded", types.ErrModelOverloaded, true},
		{"500", http.StatusInternalServerError, "oops", types.ErrUpstreamError, true},
		{"418", http.StatusTeapot, "teapot", types.ErrUpstreamError, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := MapHTTPError(tc.status, tc.msg, "openai_llm")
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.Equal(t, tc.expectedRetry, err.Retryable)
			assert.Equal(t, tc.status, err.HTTPStatus)
			assert.Equal(t, "openai_llm", err.Provider)
			assert.Equal(t, tc.msg, err.Message)
		})
	}
}

func TestMapHTTPError_ServerErrorsAlwaysRetryable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		status := rapid.IntRange(500, 599).Draw(rt, "status")
		provider := rapid.StringMatching(`[a-z_]{1,20}`).Draw(rt, "provider")

		err := MapHTTPError(status, "x", provider)
		if !err.Retryable {
			rt.Fatalf("status %d should be retryable", status)
		}
		if err.Provider != provider {
			rt.Fatalf("provider not preserved: %q", err.Provider)
		}
	})
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad key (type: auth)",
		ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key","type":"auth"}}`)))
	assert.Equal(t, "bad key",
		ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key"}}`)))
	assert.Equal(t, "model 'x' not found",
		ReadErrorMessage(strings.NewReader(`{"error":"model 'x' not found"}`)))
	assert.Equal(t, "plain text", ReadErrorMessage(strings.NewReader("plain text\n")))
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := TransportError(cause, "ollama_llm")
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, cause)
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	out := ConvertMessagesToOpenAI([]types.Message{
		{Role: types.RoleSystem, Content: "sys"},
		{Role: types.RoleUser, Content: "hi", Name: "Human"},
		{Role: types.RoleAssistant, Content: "hello"},
	})
	assert.Equal(t, []OpenAICompatMessage{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}, out)
}
