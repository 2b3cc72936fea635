// Copyright 2026 Companion Authors. All rights reserved.

/*
包 migration 管理 SQL 历史存储（chat_histories、chat_messages）的表结构，
基于 golang-migrate，支持 PostgreSQL、MySQL 与 SQLite。

# 迁移文件

SQL 文件以 embed.FS 内嵌在 migrations/<dialect>/ 下，命名形如
000001_create_chat_history.up.sql。SQLite 使用与 gorm 方言相同的纯 Go
驱动打开连接，因此无需 CGO。

# 使用

  - NewMigratorFromConfig：复用 database 配置段创建迁移器。
  - CLI.Run：companion migrate <up|down|down-all|steps|goto|force|status|version|info>。
*/
package migration
