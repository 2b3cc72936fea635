// Package factory 按配置的 provider 类型创建语言模型实例。
//
// 支持的类型：openai_compatible_llm、openai_llm、gemini_llm、zhipu_llm、
// deepseek_llm、groq_llm、mistral_llm、lmstudio_llm、ollama_llm、
// claude_llm、llama_cpp_llm。未知类型返回 UNSUPPORTED_PROVIDER 错误。
package factory
