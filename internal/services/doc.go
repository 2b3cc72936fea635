// Copyright 2026 Companion Authors. All rights reserved.

/*
包 services 是语音服务（ASR、TTS、RVC 变声）的 HTTP 客户端。

服务以 JSON 通信：

  - POST /asr/transcribe {audio_data} → {text, success}
  - POST /tts/synthesize {text, voice, language, config} → {audio_path, success, error}
  - POST /rvc/convert {audio_path, model} → {audio_path, success}
  - GET  /health

success=false 与非 2xx 响应都映射为 types.ErrCollaborator，
由对话编排器按生成错误结束当前轮次。
*/
package services
