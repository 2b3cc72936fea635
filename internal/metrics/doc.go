// Copyright 2026 Companion Authors. All rights reserved.

/*
包 metrics 提供基于 Prometheus 的指标采集。

# 指标

  - HTTP：请求总数与耗时，按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 对话：conversation_turns_total{mode,status}、conversation_turn_duration_seconds{mode}、
    interrupts_total、ws_connections_active、group_members。
  - LLM：llm_requests_total{provider,status}、llm_stream_duration_seconds{provider}。
  - 缓存：RegisterCache 在抓取时读取统计，导出 cache_hit_ratio{cache} 与 cache_keys{cache}。

Collector 注册在调用方传入的 Registry 上，Handler 暴露 /metrics。
*/
package metrics
