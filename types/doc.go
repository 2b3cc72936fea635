// Copyright 2026 Companion Authors. All rights reserved.

/*
Package types 提供 companion 后端的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、conversation、
history 等上层模块提供统一的类型契约。

# 核心类型

  - Message / Role   ：对话消息（system / user / assistant）
  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记

# 错误分类

  - 配置错误：UNSUPPORTED_AGENT / UNSUPPORTED_PROVIDER / MISSING_FIELD / CONFIG_NOT_FOUND
  - 生成错误：UPSTREAM_ERROR / RATE_LIMITED / NOT_IMPLEMENTED 等
  - 协作方错误：COLLABORATOR / HISTORY_IO
  - 资源校验错误：INVALID_IDENTIFIER
*/
package types
