// =============================================================================
// 📦 测试数据工厂 - 角色与历史
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/history"
)

// DefaultCharacter 返回一个使用 ollama_llm 的 basic_memory_agent 角色
func DefaultCharacter() config.CharacterConfig {
	faster := false
	return config.CharacterConfig{
		ConfName:        "Mao",
		ConfUID:         "mao_pro_001",
		CharacterName:   "Mao",
		HumanName:       "Human",
		Avatar:          "mao.png",
		PersonaPrompt:   "You are Mao, a cheerful companion.",
		ModelName:       "mao_pro",
		EmotionKeywords: []string{"neutral", "joy", "sadness"},
		AgentConfig: config.AgentConfig{
			ConversationAgentChoice: "basic_memory_agent",
			AgentSettings: config.AgentSettings{
				BasicMemoryAgent: &config.BasicMemoryAgentSettings{
					LLMProvider:         "ollama_llm",
					FasterFirstResponse: &faster,
					SegmentMethod:       "regex",
					InterruptMethod:     "user",
				},
			},
			LLMConfigs: map[string]config.LLMConfig{
				"ollama_llm": {Model: "qwen2.5:latest", BaseURL: "http://localhost:11434/v1"},
			},
		},
	}
}

// HistoryMessages 返回 n 条交替的 human/ai 历史记录
func HistoryMessages(n int) []history.Message {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := make([]history.Message, 0, n)
	for i := 0; i < n; i++ {
		role, name := history.RoleHuman, "Human"
		if i%2 == 1 {
			role, name = history.RoleAI, "Mao"
		}
		out = append(out, history.Message{
			Role:      role,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Content:   "message " + string(rune('a'+i%26)),
			Name:      name,
		})
	}
	return out
}
