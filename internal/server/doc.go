// Copyright 2026 Companion Authors. All rights reserved.

/*
包 server 管理 HTTP 服务器的生命周期，主服务（WebSocket 与静态资源）
和 metrics 服务各用一个 Manager。

# 核心类型

  - Manager：持有 http.Server 与 net.Listener，提供 Start/Run/Shutdown。
  - Config：监听地址、读写与空闲超时、并发连接上限与优雅关闭超时。

# 主要能力

  - 连接上限：MaxConnections > 0 时用 netutil.LimitListener 包装监听器。
  - Run 阻塞到 ctx 结束后优雅关闭，可直接放进 errgroup。
  - RegisterOnShutdown 用于通知 WebSocket 长连接退出。
*/
package server
