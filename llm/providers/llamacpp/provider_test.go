package llamacpp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/companion/types"
)

func TestChatCompletion_NotImplemented(t *testing.T) {
	p := New("/models/llama.gguf", nil)
	ch, err := p.ChatCompletion(context.Background(), []types.Message{types.NewUserMessage("hi")}, "")
	assert.Nil(t, ch)
	assert.True(t, types.IsCode(err, types.ErrNotImplemented))
}
