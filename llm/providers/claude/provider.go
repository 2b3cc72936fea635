package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/companion/internal/tlsutil"
	"github.com/BaSui01/companion/llm"
	"github.com/BaSui01/companion/llm/providers"
	"github.com/BaSui01/companion/types"
	"go.uber.org/zap"
)

const (
	// DefaultModel 是未配置 model 时使用的模型
	DefaultModel   = "claude-3-haiku-20240307"
	DefaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	maxTokens      = 1024
)

// Config Claude 适配器配置
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Temperature   float64
	HeaderTimeout time.Duration
}

// Provider 实现 Anthropic Messages API 的流式适配。
// 与 OpenAI 的差异：
// 1. 认证使用 x-api-key 请求头而非 Bearer Token
// 2. system 提示词单独传递
// 3. 消息必须 user/assistant 交替出现
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New 创建 Claude Provider。
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.StreamingHTTPClient(cfg.HeaderTimeout),
		logger: logger.With(zap.String("provider", "claude_llm")),
	}
}

func (p *Provider) Name() string { return "claude_llm" }

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
}

type claudeDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type claudeStreamEvent struct {
	Type    string       `json:"type"`
	Index   int          `json:"index"`
	Delta   *claudeDelta `json:"delta,omitempty"`
	Message *struct {
		ID    string `json:"id"`
		Model string `json:"model"`
	} `json:"message,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
}

// convertMessages 将统一格式转换为 Claude 格式。
// 开头的 system 条目并入 system 字段，中间的 system 条目（如打断标记）按 user 发送，
// 连续同角色消息合并为一条。
func convertMessages(msgs []types.Message, system string) (string, []claudeMessage) {
	var systemParts []string
	if system != "" {
		systemParts = append(systemParts, system)
	}

	var out []claudeMessage
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		role := string(m.Role)
		if m.Role == types.RoleSystem {
			if len(out) == 0 {
				systemParts = append(systemParts, m.Content)
				continue
			}
			role = string(types.RoleUser)
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			last := &out[n-1].Content[0]
			last.Text += "\n" + m.Content
			continue
		}
		out = append(out, claudeMessage{
			Role:    role,
			Content: []claudeContent{{Type: "text", Text: m.Content}},
		})
	}
	return strings.Join(systemParts, "\n\n"), out
}

// ChatCompletion streams text deltas from the Messages API.
func (p *Provider) ChatCompletion(ctx context.Context, messages []types.Message, system string) (<-chan llm.StreamChunk, error) {
	sys, msgs := convertMessages(messages, system)
	body := claudeRequest{
		Model:       p.cfg.Model,
		Messages:    msgs,
		System:      sys,
		MaxTokens:   maxTokens,
		Temperature: p.cfg.Temperature,
		Stream:      true,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer providers.SafeCloseBody(resp.Body)
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	return p.stream(ctx, resp.Body), nil
}

func (p *Provider) stream(ctx context.Context, body io.ReadCloser) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		send := func(chunk llm.StreamChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- chunk:
				return true
			}
		}

		var model string
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					send(llm.StreamChunk{Err: providers.TransportError(err, p.Name())})
				}
				return
			}

			// Claude SSE 格式：event: <type>\ndata: <json>，事件类型也在 data 里
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var event claudeStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				send(llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, "malformed stream event").
					WithCause(err).
					WithProvider(p.Name())})
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					model = event.Message.Model
				}
			case "content_block_delta":
				if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
					if !send(llm.StreamChunk{Provider: p.Name(), Model: model, Delta: event.Delta.Text}) {
						return
					}
				}
			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					if !send(llm.StreamChunk{Provider: p.Name(), Model: model, FinishReason: event.Delta.StopReason}) {
						return
					}
				}
			case "error":
				msg := "stream error"
				if event.Error != nil {
					msg = event.Error.Message
				}
				send(llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, msg).
					WithRetryable(true).
					WithProvider(p.Name())})
				return
			case "message_stop":
				return
			}
		}
	}()
	return ch
}
