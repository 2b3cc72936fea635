// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于裁剪发送给 LLM 的上下文窗口。
package tokenizer
