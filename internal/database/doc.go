// Copyright 2026 Companion Authors. All rights reserved.

/*
包 database 为 SQL 历史存储提供 GORM 连接池管理。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    GetStats()、Close() 以及事务方法。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔，
    可由 PoolConfigFrom 从 config.DatabaseConfig 推导。

# 驱动

Dialector 按 database.driver 选择 postgres、mysql 或纯 Go 的 sqlite 方言，
Open 打开数据库并返回已配置的 PoolManager。

# 事务

WithTransactionRetry 对死锁、序列化失败、连接中断与 sqlite 写锁竞争
做指数退避重试，其他错误立即返回。
*/
package database
