// Package factory provides a centralized factory for creating language-model
// Provider instances by configured kind. It imports all provider sub-packages
// and maps kind names to their constructors, breaking the import cycle that
// would occur if this logic lived in the llm package directly.
package factory

import (
	"sort"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/llm"
	"github.com/BaSui01/companion/llm/providers/claude"
	"github.com/BaSui01/companion/llm/providers/llamacpp"
	"github.com/BaSui01/companion/llm/providers/ollama"
	"github.com/BaSui01/companion/llm/providers/openaicompat"
	"github.com/BaSui01/companion/types"
	"go.uber.org/zap"
)

const (
	// DefaultAPIKey 是未配置 llm_api_key 时发送的占位 key，本地服务通常不校验
	DefaultAPIKey      = "z"
	DefaultTemperature = 1.0
	DefaultKeepAlive   = -1.0
)

// openAICompatBaseURLs 是各 OpenAI 兼容 provider 的默认入口
var openAICompatBaseURLs = map[string]string{
	"openai_compatible_llm": "",
	"openai_llm":            "https://api.openai.com/v1",
	"gemini_llm":            "https://generativelanguage.googleapis.com/v1beta/openai",
	"zhipu_llm":             "https://open.bigmodel.cn/api/paas/v4",
	"deepseek_llm":          "https://api.deepseek.com/v1",
	"groq_llm":              "https://api.groq.com/openai/v1",
	"mistral_llm":           "https://api.mistral.ai/v1",
	"lmstudio_llm":          "http://localhost:1234/v1",
}

// SupportedProviders returns every known provider kind, sorted.
func SupportedProviders() []string {
	names := make([]string, 0, len(openAICompatBaseURLs)+3)
	for name := range openAICompatBaseURLs {
		names = append(names, name)
	}
	names = append(names, "ollama_llm", "claude_llm", "llama_cpp_llm")
	sort.Strings(names)
	return names
}

// CreateLLM creates a Provider for the given kind. Construction fails fast on
// unknown kinds and on missing required fields, naming the offender.
func CreateLLM(provider string, cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	temperature := config.Float(cfg.Temperature, DefaultTemperature)

	if defaultURL, ok := openAICompatBaseURLs[provider]; ok {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultURL
		}
		if baseURL == "" {
			return nil, types.NewMissingFieldError("base_url", provider)
		}
		if cfg.Model == "" {
			return nil, types.NewMissingFieldError("model", provider)
		}
		apiKey := cfg.LLMAPIKey
		if apiKey == "" {
			apiKey = DefaultAPIKey
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName:   provider,
			APIKey:         apiKey,
			BaseURL:        baseURL,
			Model:          cfg.Model,
			OrganizationID: cfg.OrganizationID,
			ProjectID:      cfg.ProjectID,
			Temperature:    temperature,
			HeaderTimeout:  cfg.HeaderTimeout,
		}, logger), nil
	}

	switch provider {
	case "ollama_llm":
		if cfg.Model == "" {
			return nil, types.NewMissingFieldError("model", provider)
		}
		apiKey := cfg.LLMAPIKey
		if apiKey == "" {
			apiKey = DefaultAPIKey
		}
		return ollama.New(ollama.Config{
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			APIKey:       apiKey,
			Temperature:  temperature,
			KeepAlive:    config.Float(cfg.KeepAlive, DefaultKeepAlive),
			UnloadAtExit: config.Bool(cfg.UnloadAtExit, true),
		}, logger), nil

	case "claude_llm":
		if cfg.LLMAPIKey == "" {
			return nil, types.NewMissingFieldError("llm_api_key", provider)
		}
		return claude.New(claude.Config{
			APIKey:        cfg.LLMAPIKey,
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			Temperature:   temperature,
			HeaderTimeout: cfg.HeaderTimeout,
		}, logger), nil

	case "llama_cpp_llm":
		if cfg.ModelPath == "" {
			return nil, types.NewMissingFieldError("model_path", provider)
		}
		return llamacpp.New(cfg.ModelPath, logger), nil

	default:
		return nil, types.Errorf(types.ErrUnsupportedProvider, "Unsupported LLM provider: %s", provider).
			WithProvider(provider)
	}
}
