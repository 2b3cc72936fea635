package agent

import (
	"go.uber.org/zap"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/llm"
	llmfactory "github.com/BaSui01/companion/llm/factory"
	"github.com/BaSui01/companion/llm/tokenizer"
	"github.com/BaSui01/companion/types"
)

// Agent kinds accepted by CreateAgent.
const (
	KindBasicMemory = "basic_memory_agent"
	KindMem0        = "mem0_agent"
	KindHumeAI      = "hume_ai_agent"
)

// LLMConstructor 创建 llm.Provider，默认为 llm/factory.CreateLLM
type LLMConstructor func(provider string, cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error)

// Deps 是 CreateAgent 注入的外部依赖，均可为空
type Deps struct {
	History HistoryReader
	Logger  *zap.Logger
	NewLLM  LLMConstructor
}

// NewFromCharacter creates the agent selected by the character's agent_config.
func NewFromCharacter(char config.CharacterConfig, deps Deps) (Agent, error) {
	ac := char.AgentConfig
	return CreateAgent(ac.ConversationAgentChoice, ac.AgentSettings, ac.LLMConfigs, char.PersonaPrompt, char, deps)
}

// CreateAgent builds the agent of kind agentType. Required settings are
// validated per kind; errors name the missing field or provider.
func CreateAgent(
	agentType string,
	settings config.AgentSettings,
	llmConfigs map[string]config.LLMConfig,
	systemPrompt string,
	char config.CharacterConfig,
	deps Deps,
) (Agent, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newLLM := deps.NewLLM
	if newLLM == nil {
		newLLM = llmfactory.CreateLLM
	}

	switch agentType {
	case KindBasicMemory:
		s := settings.BasicMemoryAgent
		if s == nil {
			return nil, types.Errorf(types.ErrConfigNotFound, "%s settings not found", agentType)
		}
		if s.LLMProvider == "" {
			return nil, types.NewMissingFieldError("llm_provider", agentType)
		}
		llmCfg, ok := llmConfigs[s.LLMProvider]
		if !ok {
			return nil, types.Errorf(types.ErrConfigNotFound, "Configuration not found for LLM provider: %s", s.LLMProvider).
				WithProvider(s.LLMProvider)
		}
		provider, err := newLLM(s.LLMProvider, llmCfg, logger)
		if err != nil {
			return nil, err
		}

		cfg := BasicMemoryConfig{
			CharacterName:       char.CharacterName,
			Avatar:              char.Avatar,
			PersonaPrompt:       systemPrompt,
			FasterFirstResponse: config.Bool(s.FasterFirstResponse, true),
			SegmentMethod:       s.SegmentMethod,
			InterruptMethod:     s.InterruptMethod,
			UsePipeline:         config.Bool(s.UsePipeline, true),
			MaxContextTokens:    s.MaxContextTokens,
			EmotionKeywords:     char.EmotionKeywords,
			TTSPreprocessor:     char.TTSPreprocessor,
		}
		opts := []Option{WithLogger(logger), WithHistory(deps.History)}
		if s.MaxContextTokens > 0 {
			opts = append(opts, WithTokenizer(tokenizer.ForModel(llmCfg.Model)))
		}
		logger.Info("agent created",
			zap.String("agent_type", agentType),
			zap.String("llm_provider", s.LLMProvider),
			zap.String("model", llmCfg.Model))
		return NewBasicMemoryAgent(provider, cfg, opts...)

	case KindMem0:
		s := settings.Mem0Agent
		if s == nil {
			return nil, types.Errorf(types.ErrConfigNotFound, "%s settings not found", agentType)
		}
		switch {
		case s.BaseURL == "":
			return nil, types.NewMissingFieldError("base_url", agentType)
		case s.Model == "":
			return nil, types.NewMissingFieldError("model", agentType)
		case len(s.Mem0Config) == 0:
			return nil, types.NewMissingFieldError("mem0_config", agentType)
		}
		return NewMem0Agent(s.BaseURL, s.Model, s.UserID, s.Mem0Config, logger), nil

	case KindHumeAI:
		s := settings.HumeAIAgent
		if s == nil {
			return nil, types.Errorf(types.ErrConfigNotFound, "%s settings not found", agentType)
		}
		switch {
		case s.APIKey == "":
			return nil, types.NewMissingFieldError("api_key", agentType)
		case s.ConfigID == "":
			return nil, types.NewMissingFieldError("config_id", agentType)
		}
		return NewHumeAIAgent(s.APIKey, s.Host, s.ConfigID, s.IdleTimeout, logger), nil

	default:
		return nil, types.Errorf(types.ErrUnsupportedAgent, "Unsupported agent type: %s", agentType)
	}
}
