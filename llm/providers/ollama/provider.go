package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/companion/internal/tlsutil"
	"github.com/BaSui01/companion/llm"
	"github.com/BaSui01/companion/llm/providers"
	"github.com/BaSui01/companion/llm/providers/openaicompat"
	"github.com/BaSui01/companion/types"
	"go.uber.org/zap"
)

// DefaultBaseURL 是 ollama 的 OpenAI 兼容入口
const DefaultBaseURL = "http://localhost:11434/v1"

// Config ollama 适配器配置
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	// KeepAlive 秒数，-1 表示常驻内存
	KeepAlive float64
	// UnloadAtExit 为 true 时 Close 会让 ollama 立即卸载模型
	UnloadAtExit bool
}

// Provider 通过 ollama 的 OpenAI 兼容接口对话，并在退出时卸载模型。
type Provider struct {
	*openaicompat.Provider
	cfg    Config
	client *http.Client
}

// New 创建 ollama Provider。
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	keepAlive := cfg.KeepAlive
	base := openaicompat.New(openaicompat.Config{
		ProviderName: "ollama_llm",
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		RequestHook: func(body *providers.OpenAICompatRequest) {
			body.KeepAlive = keepAliveValue(keepAlive)
		},
	}, logger)
	return &Provider{
		Provider: base,
		cfg:      cfg,
		client:   tlsutil.SecureHTTPClient(10 * time.Second),
	}
}

func keepAliveValue(seconds float64) any {
	if seconds < 0 {
		return -1
	}
	return fmt.Sprintf("%ds", int64(seconds))
}

// nativeRoot strips the trailing /v1 to reach ollama's native API.
func (p *Provider) nativeRoot() string {
	return strings.TrimSuffix(strings.TrimRight(p.cfg.BaseURL, "/"), "/v1")
}

// ChatCompletion delegates to the OpenAI-compatible adapter.
func (p *Provider) ChatCompletion(ctx context.Context, messages []types.Message, system string) (<-chan llm.StreamChunk, error) {
	return p.Provider.ChatCompletion(ctx, messages, system)
}

// Close 在 UnloadAtExit 为 true 时请求 ollama 卸载模型。
func (p *Provider) Close(ctx context.Context) error {
	if !p.cfg.UnloadAtExit {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"model":      p.cfg.Model,
		"keep_alive": 0,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.nativeRoot()+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create unload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return providers.TransportError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)
	if resp.StatusCode >= 400 {
		return providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	p.Logger.Info("model unloaded", zap.String("model", p.cfg.Model))
	return nil
}

var _ llm.Closer = (*Provider)(nil)
