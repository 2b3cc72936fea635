package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai_llm")

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Contains(t, err.Error(), "root")
	assert.Equal(t, "openai_llm", err.Provider)
}

func TestError_WrappedChain(t *testing.T) {
	t.Parallel()

	inner := NewMissingFieldError("llm_provider", "basic_memory_agent")
	wrapped := fmt.Errorf("create agent: %w", inner)

	assert.True(t, IsCode(wrapped, ErrMissingField))
	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "Missing required field 'llm_provider' for basic_memory_agent", e.Message)
}

func TestError_PlainErrors(t *testing.T) {
	t.Parallel()

	plain := errors.New("boom")
	assert.False(t, IsRetryable(plain))
	assert.Equal(t, ErrorCode(""), GetErrorCode(plain))
	_, ok := AsError(plain)
	assert.False(t, ok)
}

func TestNotImplementedError(t *testing.T) {
	t.Parallel()

	err := NewNotImplementedError("llama_cpp_llm")
	assert.True(t, IsCode(err, ErrNotImplemented))
	assert.Equal(t, "[NOT_IMPLEMENTED] llama_cpp_llm is not implemented", err.Error())
}
