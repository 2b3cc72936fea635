// Package tlsutil 为出站 HTTP 客户端（LLM 适配器、语音服务）提供加固的 TLS 传输：
// TLS 1.2 起步，仅 AEAD 密码套件。流式客户端不设整体超时，只限制等待响应头的时间。
package tlsutil
