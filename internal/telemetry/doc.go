// Copyright 2026 Companion Authors. All rights reserved.

// Package telemetry 封装 OpenTelemetry SDK 初始化，并提供对话轮次使用的
// span 与计数器。遥测禁用时全局 provider 保持 noop，不连接任何外部服务。
package telemetry
