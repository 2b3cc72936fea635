// Copyright 2026 Companion Authors. All rights reserved.

/*
Package testutil 提供测试共享的工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual / AssertEventuallyTrue / AssertEventuallyEqual
  - 等待工具: WaitFor / WaitForChannel
  - 流式辅助: CollectStreamContent / CollectResults

# 子包

  - testutil/mocks: MockProvider（LLM Provider，支持分块、错误注入与闸门）、
    MockAgent（脚本化输出，记录打断与历史加载）
  - testutil/fixtures: 角色配置与历史记录样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithStreamChunks("Hello", " there.")
	a, _ := agent.NewBasicMemoryAgent(provider, agent.BasicMemoryConfig{})
	outs, err := testutil.CollectResults(t, a.Chat(ctx, agent.TextInput("hi", "")))
*/
package testutil
