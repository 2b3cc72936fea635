package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/internal/tlsutil"
	"github.com/BaSui01/companion/types"
)

// serviceName 作为错误中的 Provider 字段
const serviceName = "voice-service"

// =============================================================================
// 📦 请求与响应
// =============================================================================

// TranscribeRequest POST /asr/transcribe
type TranscribeRequest struct {
	AudioData []float32 `json:"audio_data"`
}

// TranscribeResponse 语音识别结果
type TranscribeResponse struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
}

// SynthesizeRequest POST /tts/synthesize
type SynthesizeRequest struct {
	Text     string         `json:"text"`
	Voice    string         `json:"voice,omitempty"`
	Language string         `json:"language,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// SynthesizeResponse 语音合成结果，AudioPath 是服务端生成的音频句柄
type SynthesizeResponse struct {
	AudioPath string `json:"audio_path"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// ConvertRequest POST /rvc/convert
type ConvertRequest struct {
	AudioPath string `json:"audio_path"`
	Model     string `json:"model"`
}

// ConvertResponse 变声结果
type ConvertResponse struct {
	AudioPath string `json:"audio_path"`
	Success   bool   `json:"success"`
}

// =============================================================================
// 🎙️ 客户端
// =============================================================================

// Client 是 ASR/TTS/变声服务的 HTTP 客户端，可并发使用。
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg config.ServicesConfig, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, types.NewMissingFieldError("base_url", "services")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    tlsutil.SecureHTTPClient(timeout),
		logger:  logger.With(zap.String("component", "services_client")),
	}, nil
}

// NewClientWithHTTP 使用自定义 http.Client（测试用）
func NewClientWithHTTP(baseURL string, hc *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, logger: logger}
}

// Transcribe 把音频样本转成文本。success=false 返回 COLLABORATOR 错误。
func (c *Client) Transcribe(ctx context.Context, samples []float32) (string, error) {
	var resp TranscribeResponse
	if err := c.post(ctx, "/asr/transcribe", TranscribeRequest{AudioData: samples}, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", collaboratorError("asr transcription failed", "")
	}
	c.logger.Debug("transcribed audio", zap.Int("samples", len(samples)), zap.Int("text_len", len(resp.Text)))
	return resp.Text, nil
}

// Synthesize 合成一段语音并返回音频句柄。
func (c *Client) Synthesize(ctx context.Context, text string, tts config.TTSConfig) (string, error) {
	req := SynthesizeRequest{Text: text, Voice: tts.Voice, Language: tts.Language, Config: tts.Extra}
	var resp SynthesizeResponse
	if err := c.post(ctx, "/tts/synthesize", req, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", collaboratorError("tts synthesis failed", resp.Error)
	}
	return resp.AudioPath, nil
}

// ConvertVoice 用 RVC 模型转换一段已合成的音频
func (c *Client) ConvertVoice(ctx context.Context, audioPath, model string) (string, error) {
	var resp ConvertResponse
	if err := c.post(ctx, "/rvc/convert", ConvertRequest{AudioPath: audioPath, Model: model}, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", collaboratorError("voice conversion failed", "")
	}
	return resp.AudioPath, nil
}

// Health 调用 GET /health，非 2xx 视为不健康
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return collaboratorError("build health request", err.Error())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return collaboratorError(fmt.Sprintf("health check returned %d", resp.StatusCode), "").
			WithHTTPStatus(resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return collaboratorError("encode request", err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return collaboratorError("build request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.logger.Warn("service request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", time.Since(start)))
		return collaboratorError(fmt.Sprintf("%s returned %d", path, resp.StatusCode), strings.TrimSpace(string(msg))).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return collaboratorError(fmt.Sprintf("decode %s response", path), err.Error()).WithCause(err)
	}
	return nil
}

func collaboratorError(msg, detail string) *types.Error {
	if detail != "" {
		msg = msg + ": " + detail
	}
	return types.NewError(types.ErrCollaborator, msg).WithProvider(serviceName)
}

func transportError(err error) *types.Error {
	code := types.ErrCollaborator
	if errors.Is(err, context.DeadlineExceeded) {
		code = types.ErrUpstreamTimeout
	}
	return types.NewError(code, err.Error()).
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(serviceName)
}
