package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/types"
)

// Mem0Agent 是 mem0 长期记忆代理的占位实现，配置经过校验但对话尚未接入。
type Mem0Agent struct {
	BaseURL    string
	Model      string
	UserID     string
	Mem0Config map[string]any
	logger     *zap.Logger
}

// NewMem0Agent creates the stub. userID defaults to "default".
func NewMem0Agent(baseURL, model, userID string, mem0Config map[string]any, logger *zap.Logger) *Mem0Agent {
	if userID == "" {
		userID = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mem0Agent{
		BaseURL:    baseURL,
		Model:      model,
		UserID:     userID,
		Mem0Config: mem0Config,
		logger:     logger.With(zap.String("component", "mem0_agent")),
	}
}

// Chat yields a single not-implemented error.
func (a *Mem0Agent) Chat(ctx context.Context, input BatchInput) <-chan Result {
	return errorResult(types.NewNotImplementedError("mem0_agent chat"))
}

func (a *Mem0Agent) HandleInterrupt(heardResponse string) {
	a.logger.Debug("interrupt ignored")
}

func (a *Mem0Agent) SetMemoryFromHistory(ctx context.Context, confUID, historyUID string) {
	a.logger.Debug("history load ignored", zap.String("history_uid", historyUID))
}

// HumeAIAgent 是 Hume EVI 语音代理的占位实现。
type HumeAIAgent struct {
	APIKey      string
	Host        string
	ConfigID    string
	IdleTimeout int
	logger      *zap.Logger
}

// NewHumeAIAgent creates the stub. host defaults to api.hume.ai and
// idleTimeout to 15 seconds.
func NewHumeAIAgent(apiKey, host, configID string, idleTimeout int, logger *zap.Logger) *HumeAIAgent {
	if host == "" {
		host = "api.hume.ai"
	}
	if idleTimeout <= 0 {
		idleTimeout = 15
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HumeAIAgent{
		APIKey:      apiKey,
		Host:        host,
		ConfigID:    configID,
		IdleTimeout: idleTimeout,
		logger:      logger.With(zap.String("component", "hume_ai_agent")),
	}
}

// Chat yields a single not-implemented error.
func (a *HumeAIAgent) Chat(ctx context.Context, input BatchInput) <-chan Result {
	return errorResult(types.NewNotImplementedError("hume_ai_agent chat"))
}

func (a *HumeAIAgent) HandleInterrupt(heardResponse string) {
	a.logger.Debug("interrupt ignored")
}

func (a *HumeAIAgent) SetMemoryFromHistory(ctx context.Context, confUID, historyUID string) {
	a.logger.Debug("history load ignored", zap.String("history_uid", historyUID))
}

var (
	_ Agent = (*Mem0Agent)(nil)
	_ Agent = (*HumeAIAgent)(nil)
)
