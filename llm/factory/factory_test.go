package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/llm/providers/claude"
	"github.com/BaSui01/companion/llm/providers/llamacpp"
	"github.com/BaSui01/companion/llm/providers/ollama"
	"github.com/BaSui01/companion/llm/providers/openaicompat"
	"github.com/BaSui01/companion/types"
)

func TestCreateLLM_OpenAICompatKinds(t *testing.T) {
	for _, kind := range []string{"openai_llm", "gemini_llm", "zhipu_llm", "deepseek_llm", "groq_llm", "mistral_llm", "lmstudio_llm"} {
		t.Run(kind, func(t *testing.T) {
			p, err := CreateLLM(kind, config.LLMConfig{Model: "m"}, nil)
			require.NoError(t, err)
			oc, ok := p.(*openaicompat.Provider)
			require.True(t, ok)
			assert.Equal(t, kind, oc.Name())
			assert.Equal(t, openAICompatBaseURLs[kind], oc.Cfg.BaseURL)
			assert.Equal(t, DefaultAPIKey, oc.Cfg.APIKey)
			assert.Equal(t, DefaultTemperature, oc.Cfg.Temperature)
		})
	}
}

func TestCreateLLM_OpenAICompatible_RequiresBaseURL(t *testing.T) {
	_, err := CreateLLM("openai_compatible_llm", config.LLMConfig{Model: "m"}, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrMissingField))
	assert.Contains(t, err.Error(), "base_url")

	temp := 0.2
	p, err := CreateLLM("openai_compatible_llm", config.LLMConfig{
		Model:       "m",
		BaseURL:     "http://localhost:9000/v1",
		LLMAPIKey:   "key",
		Temperature: &temp,
	}, nil)
	require.NoError(t, err)
	oc := p.(*openaicompat.Provider)
	assert.Equal(t, "key", oc.Cfg.APIKey)
	assert.Equal(t, 0.2, oc.Cfg.Temperature)
}

func TestCreateLLM_MissingModel(t *testing.T) {
	_, err := CreateLLM("openai_llm", config.LLMConfig{}, nil)
	require.Error(t, err)
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "Missing required field 'model' for openai_llm", e.Message)
}

func TestCreateLLM_Ollama(t *testing.T) {
	p, err := CreateLLM("ollama_llm", config.LLMConfig{Model: "qwen2.5"}, nil)
	require.NoError(t, err)
	_, ok := p.(*ollama.Provider)
	assert.True(t, ok)
	assert.Equal(t, "ollama_llm", p.Name())
}

func TestCreateLLM_Claude(t *testing.T) {
	_, err := CreateLLM("claude_llm", config.LLMConfig{}, nil)
	assert.True(t, types.IsCode(err, types.ErrMissingField))

	p, err := CreateLLM("claude_llm", config.LLMConfig{LLMAPIKey: "k"}, nil)
	require.NoError(t, err)
	_, ok := p.(*claude.Provider)
	assert.True(t, ok)
}

func TestCreateLLM_LlamaCppNotImplemented(t *testing.T) {
	p, err := CreateLLM("llama_cpp_llm", config.LLMConfig{ModelPath: "/m.gguf"}, nil)
	require.NoError(t, err)
	_, ok := p.(*llamacpp.Provider)
	require.True(t, ok)

	_, err = p.ChatCompletion(context.Background(), nil, "")
	assert.True(t, types.IsCode(err, types.ErrNotImplemented))
}

func TestCreateLLM_Unsupported(t *testing.T) {
	_, err := CreateLLM("gpt5_magic", config.LLMConfig{Model: "m"}, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUnsupportedProvider))
	assert.Contains(t, err.Error(), "Unsupported LLM provider: gpt5_magic")
}

func TestSupportedProviders(t *testing.T) {
	names := SupportedProviders()
	assert.Contains(t, names, "claude_llm")
	assert.Contains(t, names, "ollama_llm")
	assert.Contains(t, names, "openai_compatible_llm")
	assert.IsIncreasing(t, names)
}
