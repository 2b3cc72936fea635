package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/companion/types"
)

func TestCollect_JoinsDeltas(t *testing.T) {
	ch := make(chan StreamChunk, 3)
	ch <- StreamChunk{Delta: "Hello"}
	ch <- StreamChunk{Delta: ", "}
	ch <- StreamChunk{Delta: "world"}
	close(ch)

	text, err := Collect(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)
}

func TestCollect_StopsAtError(t *testing.T) {
	ch := make(chan StreamChunk, 3)
	ch <- StreamChunk{Delta: "partial"}
	ch <- StreamChunk{Err: types.NewError(types.ErrUpstreamError, "boom")}
	close(ch)

	text, err := Collect(context.Background(), ch)
	assert.Equal(t, "partial", text)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
}

func TestCollect_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, make(chan StreamChunk))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorStream(t *testing.T) {
	ch := ErrorStream(types.NewNotImplementedError("x"))
	chunk, ok := <-ch
	require.True(t, ok)
	require.NotNil(t, chunk.Err)
	_, ok = <-ch
	assert.False(t, ok)
}

func TestWithSystem(t *testing.T) {
	msgs := []types.Message{{Role: types.RoleUser, Content: "hi"}}
	assert.Equal(t, msgs, WithSystem(msgs, ""))

	out := WithSystem(msgs, "be nice")
	require.Len(t, out, 2)
	assert.Equal(t, types.RoleSystem, out[0].Role)
	assert.Equal(t, "be nice", out[0].Content)
	assert.Len(t, msgs, 1)
}
