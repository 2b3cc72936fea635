// Copyright 2026 Companion Authors. All rights reserved.

/*
Package group 管理多客户端群聊的成员关系。

Manager 持有两张表：会话 ID 到群组 ID，群组 ID 到 Group。
成员变更在 Manager 写锁与群组写锁下进行，广播时只读取快照。

规则：

  - 邀请者不在群中时自动建群并成为群主
  - 被邀请者不能已在其他群中，不能邀请自己
  - 只有群主能移除他人，任何人都能退出
  - 群主退出后由最早加入的成员接任
  - 剩余成员不足两人时群组解散
*/
package group
