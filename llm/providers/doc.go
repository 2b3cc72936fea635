// Copyright 2026 Companion Authors. All rights reserved.

/*
# 概述

包 providers 提供各服务商适配器共享的基础能力，具体适配器位于子包中：

  - openaicompat：OpenAI Chat Completions 兼容协议（openai、gemini、deepseek、
    groq、mistral、lmstudio、zhipu 等）
  - ollama：复用 openaicompat，并在关闭时卸载模型
  - claude：Anthropic Messages API 的 SSE 流
  - llamacpp：本地 llama.cpp 占位实现，调用返回 NOT_IMPLEMENTED

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为 types.Error（含 Retryable 标记）
  - TransportError：将网络错误包装为 UPSTREAM_ERROR
  - ReadErrorMessage：从上游错误响应体中提取可读信息
  - ConvertMessagesToOpenAI：将 types.Message 转换为 OpenAI 兼容格式
  - SafeCloseBody：关闭可能为 nil 的响应体
*/
package providers
