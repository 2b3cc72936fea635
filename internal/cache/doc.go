// Copyright 2026 Companion Authors. All rights reserved.

/*
包 cache 提供基于 Redis 的缓存管理能力，供历史记录读取加速使用。

# 核心类型

  - Manager：持有 Redis 客户端与连接池配置，提供 Get/Set/Delete
    以及 GetJSON/SetJSON 便捷序列化方法；所有键自动加上 KeyPrefix。
  - Config：地址、密码、连接池大小、默认 TTL 与健康检查间隔。
  - Stats：命中、未命中计数与键数量，由 metrics 包在抓取时导出命中率。

# 主要能力

  - 健康检查：后台定时 Ping，Close 后退出。
  - 错误语义：ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
