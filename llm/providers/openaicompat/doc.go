// Package openaicompat provides the shared adapter for every LLM provider
// that speaks the OpenAI Chat Completions streaming format.
//
// Provider kinds such as openai_llm, gemini_llm, zhipu_llm, deepseek_llm,
// groq_llm, mistral_llm and lmstudio_llm differ only by base URL and
// credentials. ollama_llm reuses the same adapter through a RequestHook that
// injects keep_alive.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek_llm",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.deepseek.com/v1",
//	    Model:        "deepseek-chat",
//	    Temperature:  1.0,
//	}, logger)
//	ch, err := p.ChatCompletion(ctx, messages, systemPrompt)
package openaicompat
