// Copyright 2026 Companion Authors. All rights reserved.

// Package config 提供 companion 后端的配置管理。
//
// 包含 YAML + 环境变量的配置加载、默认值与校验、角色配置结构，
// 以及角色配置目录和背景图片目录的轮询索引（Catalog）。
package config
