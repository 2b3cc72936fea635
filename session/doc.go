// Copyright 2026 Companion Authors. All rights reserved.

// Package session 保存每个客户端连接的状态：角色配置、Agent、当前历史 ID
// 与语音输入缓冲。Registry 是并发安全的会话表，Session 只通过不透明的
// 连接 ID 被引用。
package session
