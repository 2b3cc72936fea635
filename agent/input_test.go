package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/companion/agent"
)

func TestBatchInput_ToTextPrompt(t *testing.T) {
	tests := []struct {
		name  string
		input agent.BatchInput
		want  string
	}{
		{
			name:  "plain text",
			input: agent.TextInput("hello", "Human"),
			want:  "hello",
		},
		{
			name: "clipboard is wrapped",
			input: agent.BatchInput{Texts: []agent.TextData{
				{Source: agent.TextSourceInput, Content: "look at this"},
				{Source: agent.TextSourceClipboard, Content: "copied"},
			}},
			want: "look at this\n[Clipboard content: copied]",
		},
		{
			name: "images become placeholders",
			input: agent.BatchInput{
				Texts: []agent.TextData{{Source: agent.TextSourceInput, Content: "what is this?"}},
				Images: []agent.ImageData{
					{Source: agent.ImageSourceCamera},
					{Source: agent.ImageSourceScreen},
					{Source: agent.ImageSourceClipboard},
					{Source: agent.ImageSourceUpload},
				},
			},
			want: "what is this?\n\nImages in this message:\n" +
				"- Image 1 (captured from camera)\n" +
				"- Image 2 (screenshot)\n" +
				"- Image 3 (from clipboard)\n" +
				"- Image 4 (uploaded)",
		},
		{
			name:  "empty input",
			input: agent.BatchInput{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.input.ToTextPrompt())
		})
	}
}

func TestBatchInput_FromName(t *testing.T) {
	in := agent.BatchInput{Texts: []agent.TextData{{Content: "a"}, {Content: "b", FromName: "Alice"}}}
	assert.Equal(t, "Alice", in.FromName())
	assert.Empty(t, agent.BatchInput{}.FromName())
}
