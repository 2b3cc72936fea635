// =============================================================================
// OpenAI-Compatible Chat Completion Adapter
// =============================================================================
// Shared implementation for every provider that speaks the OpenAI Chat
// Completions streaming format (openai, gemini, zhipu, deepseek, groq,
// mistral, lmstudio, ollama). Variants only differ in base URL, headers
// and the request hook.
// =============================================================================

package openaicompat

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

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the configured provider kind (e.g. "openai_llm").
	ProviderName string

	APIKey         string
	BaseURL        string
	Model          string
	OrganizationID string
	ProjectID      string
	Temperature    float64

	// EndpointPath defaults to "/chat/completions"; BaseURL carries the version prefix.
	EndpointPath string

	// HeaderTimeout bounds the wait for response headers. Zero means no limit.
	HeaderTimeout time.Duration

	// BuildHeaders replaces the default bearer-token headers when set.
	BuildHeaders func(req *http.Request, cfg Config)

	// RequestHook modifies the body before sending (e.g. ollama keep_alive).
	RequestHook func(body *providers.OpenAICompatRequest)
}

// Provider is the base implementation for all OpenAI-compatible LLM providers.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.StreamingHTTPClient(cfg.HeaderTimeout),
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, p.Cfg)
		return
	}
	if p.Cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	}
	if p.Cfg.OrganizationID != "" {
		req.Header.Set("OpenAI-Organization", p.Cfg.OrganizationID)
	}
	if p.Cfg.ProjectID != "" {
		req.Header.Set("OpenAI-Project", p.Cfg.ProjectID)
	}
}

func (p *Provider) endpoint() string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + p.Cfg.EndpointPath
}

// ChatCompletion sends the full message list and streams back content deltas.
func (p *Provider) ChatCompletion(ctx context.Context, messages []types.Message, system string) (<-chan llm.StreamChunk, error) {
	body := providers.OpenAICompatRequest{
		Model:       p.Cfg.Model,
		Messages:    providers.ConvertMessagesToOpenAI(llm.WithSystem(messages, system)),
		Temperature: p.Cfg.Temperature,
		Stream:      true,
	}
	if p.Cfg.RequestHook != nil {
		p.Cfg.RequestHook(&body)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	p.Logger.Debug("chat completion request",
		zap.String("model", p.Cfg.Model),
		zap.Int("messages", len(body.Messages)))

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer providers.SafeCloseBody(resp.Body)
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	return StreamSSE(ctx, resp.Body, p.Name()), nil
}

// StreamSSE parses an SSE stream from an OpenAI-compatible API and returns a channel of StreamChunks.
// The caller is responsible for ensuring the response status is OK before calling this.
func StreamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan llm.StreamChunk {
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

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					send(llm.StreamChunk{Err: providers.TransportError(err, providerName)})
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var oaResp providers.OpenAICompatResponse
			if err := json.Unmarshal([]byte(data), &oaResp); err != nil {
				send(llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, "malformed stream chunk").
					WithCause(err).
					WithProvider(providerName)})
				return
			}

			for _, choice := range oaResp.Choices {
				chunk := llm.StreamChunk{
					Provider:     providerName,
					Model:        oaResp.Model,
					FinishReason: choice.FinishReason,
				}
				if choice.Delta != nil {
					chunk.Delta = choice.Delta.Content
				}
				if chunk.Delta == "" && chunk.FinishReason == "" {
					continue
				}
				if !send(chunk) {
					return
				}
			}
		}
	}()
	return ch
}
