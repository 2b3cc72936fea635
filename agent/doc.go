// Copyright 2026 Companion Authors. All rights reserved.

/*
Package agent 定义对话代理接口及其实现。

# 概述

Agent 把一个用户回合（BatchInput）转换为结构化输出序列（output.Output）。
调用方通过 Chat 返回的通道逐个读取结果，通过 HandleInterrupt 在打断后
修正记忆，通过 SetMemoryFromHistory 从历史记录恢复记忆。

# 实现

  - BasicMemoryAgent: 持有记忆，调用无状态的 llm.Provider，
    可选经过 agent/pipeline 的四段流水线逐句输出
  - Mem0Agent / HumeAIAgent: 校验配置后返回 NOT_IMPLEMENTED 的占位实现

# 工厂

CreateAgent 按 agent 类型校验必填设置，按 provider 名解析 LLM 配置，
并通过 llm/factory 构建 Provider。未知类型返回 UNSUPPORTED_AGENT。

	a, err := agent.NewFromCharacter(cfg.Character, agent.Deps{History: store, Logger: logger})
	for res := range a.Chat(ctx, agent.TextInput("hello", "Human")) {
		...
	}
*/
package agent
