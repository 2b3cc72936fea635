// Copyright 2026 Companion Authors. All rights reserved.

/*
包 llm 定义无状态的大语言模型接入层。

# 概述

Provider 只负责把一组消息与可选的系统提示词转换成流式 token 序列，
不保存任何对话记忆；记忆与提示词组装由 agent 包完成。

# 核心类型

  - Provider：流式补全接口，ChatCompletion 返回 <-chan StreamChunk
  - StreamChunk：单个增量，Err 非空表示流在此处失败
  - Closer：需要在退出时释放远端资源的 Provider 实现此接口
  - Observer：接收每次调用的耗时与结果，由 metrics.Collector 实现

# 辅助函数

  - Collect：读完整个流并拼接文本
  - ErrorStream：构造只含一个错误 chunk 的通道
  - WithSystem：将系统提示词插入消息列表首位
  - Instrument：为 Provider 包装调用指标与 OpenTelemetry span

# 子包

  - factory：按 provider 类型创建实例
  - providers：各服务商适配器及共享的错误映射
  - tokenizer：基于 tiktoken 的 token 计数
*/
package llm
