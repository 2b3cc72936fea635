// Copyright 2026 Companion Authors. All rights reserved.

/*
Package main 是 companion 服务端程序入口。

# 子命令

  - serve：启动 WebSocket 会话服务（/client-ws）、健康检查与独立端口的
    Prometheus 指标服务；--auto-migrate 在启动前应用 SQL 迁移。
  - migrate：golang-migrate 迁移命令（up、down、status、goto、force 等）。
  - health：请求 /health 或 /ready，用于容器探针。
  - version：打印构建时注入的版本信息。

# 中间件链

Recovery、RequestID、SecurityHeaders、OTelTracing、MetricsMiddleware、
RequestLogger、CORS，按配置追加 RateLimiter、APIKeyAuth 与 JWTAuth。
所有包装器都保留 Hijack，WebSocket 升级可以穿过整条链。

# 关闭顺序

收到 SIGINT/SIGTERM 后关闭两个 HTTP 服务器并断开所有会话，等待进行中的
对话轮次结束，然后关闭历史存储与遥测导出器。
*/
package main
