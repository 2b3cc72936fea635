// Copyright 2026 Companion Authors. All rights reserved.

/*
包 history 保存每个角色配置下的聊天历史。

# 存储后端

所有后端实现同一个 Store 接口（Create/Append/List/Read/Delete），
排序与缺失语义一致：

  - FileStore：<root>/<conf_uid>/<history_uid>.json，JSON 数组首元素为 metadata。
  - SQLStore：gorm 上的 chat_histories 与 chat_messages 两张表。
  - MongoStore：每段历史一个文档，消息通过 $push 追加。
  - CachedStore：Redis 缓存 List/Read 结果，写入时失效。

Open 按 history.backend 选择后端，并在启用时包装缓存。

# 标识校验

conf_uid 与 history_uid 都会成为路径或键的一部分，任何后端在访问存储前
都先调用 SanitizePathComponent；它只接受或拒绝，不改写输入。
*/
package history
