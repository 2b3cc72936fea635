// Copyright 2026 Companion Authors. All rights reserved.

/*
包 conversation 编排一次对话轮次：从用户输入（文本、音频或主动发言信号）
到 Agent 生成、语音合成、向客户端推送事件以及写入历史。

# 核心类型

  - Orchestrator：轮次入口 HandleText / HandleAudioEnd / HandleProactive，
    以及 Interrupt、EndSession、OnGroupChange。
  - TaskController：按会话 ID 或 "group:<id>" 记录运行中的轮次，
    同一 key 同一时间至多一个轮次。
  - TextEvent / AudioEvent / ErrorEvent：推送给客户端的 JSON 事件。

# 轮次流程

单人轮次依次发送 conversation-chain-start、（可选）转写文本、"Thinking..."，
随后每个输出单元一个 audio 事件，最后总是以 conversation-chain-end 结束。

群组轮次中发起者的 AI 先说，其余成员按加入顺序轮流发言。每个成员只收到
共享记录中自己尚未看到的部分，所有输出广播给全组，非说话者收到的副本
标记 forwarded。

# 打断

Interrupt 取消运行中的轮次并清空音频缓冲。Agent 通道被排空后，
HandleInterrupt 以客户端听到的文本（或已推送的文本）恰好调用一次，
被截断的回复以 "..." 结尾写入历史。
*/
package conversation
