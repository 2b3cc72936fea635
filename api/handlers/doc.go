// Copyright 2026 Companion Authors. All rights reserved.

/*
Package handlers 提供 HTTP 与 WebSocket 端点的处理器。

# 核心类型

  - WSHandler：/client-ws 长连接，一个连接对应一个会话。握手后依次下发
    full-text、set-model-and-conf、group-update 与 start-mic，此后按
    消息 type 路由到对话编排器、群组管理、历史记录与配置目录。
  - HealthHandler：/health、/healthz 存活探针与 /ready 就绪探针。
  - Response / ErrorInfo：HTTP 接口的统一 JSON 响应。
  - ResponseWriter：捕获状态码，同时保留 Hijack，WebSocket 升级可以穿过中间件。

# 限流

每个会话有独立的令牌桶。音频帧与打断信号不计入限流，其他消息超限时
回复 error 事件，连接保持打开。
*/
package handlers
