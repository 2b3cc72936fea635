package config

import "time"

// CharacterConfig 角色配置：人设、对话 Agent、LLM 与 TTS 预处理
type CharacterConfig struct {
	ConfName      string `yaml:"conf_name" env:"CONF_NAME"`
	ConfUID       string `yaml:"conf_uid" env:"CONF_UID"`
	CharacterName string `yaml:"character_name" env:"CHARACTER_NAME"`
	HumanName     string `yaml:"human_name" env:"HUMAN_NAME"`
	Avatar        string `yaml:"avatar" env:"AVATAR"`
	PersonaPrompt string `yaml:"persona_prompt" env:"PERSONA_PROMPT"`
	// 前端模型名，随 set-model-and-conf 下发
	ModelName string `yaml:"live2d_model_name" env:"MODEL_NAME"`
	// 可识别的表情关键字，例如 [joy]、[sadness]
	EmotionKeywords []string `yaml:"emotion_keywords" env:"EMOTION_KEYWORDS"`

	AgentConfig     AgentConfig           `yaml:"agent_config" env:"-"`
	TTSPreprocessor TTSPreprocessorConfig `yaml:"tts_preprocessor_config" env:"TTS_PREPROCESSOR"`
	TTS             TTSConfig             `yaml:"tts_config" env:"TTS"`
}

// AgentConfig 对话 Agent 的选择与各类设置
type AgentConfig struct {
	ConversationAgentChoice string               `yaml:"conversation_agent_choice"`
	AgentSettings           AgentSettings        `yaml:"agent_settings"`
	LLMConfigs              map[string]LLMConfig `yaml:"llm_configs"`
}

// AgentSettings 按 agent 类型分组的设置；未配置的类型为 nil
type AgentSettings struct {
	BasicMemoryAgent *BasicMemoryAgentSettings `yaml:"basic_memory_agent,omitempty"`
	Mem0Agent        *Mem0AgentSettings        `yaml:"mem0_agent,omitempty"`
	HumeAIAgent      *HumeAIAgentSettings      `yaml:"hume_ai_agent,omitempty"`
}

// BasicMemoryAgentSettings basic_memory_agent 设置
type BasicMemoryAgentSettings struct {
	LLMProvider         string `yaml:"llm_provider"`
	FasterFirstResponse *bool  `yaml:"faster_first_response,omitempty"`
	// regex, pysbd, none
	SegmentMethod string `yaml:"segment_method"`
	// user, system
	InterruptMethod string `yaml:"interrupt_method"`
	// false 时整段缓冲后只输出一个句子单元
	UsePipeline *bool `yaml:"use_pipeline,omitempty"`
	// 发送给 LLM 的上下文 token 上限，0 表示不裁剪
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// Mem0AgentSettings mem0_agent 设置
type Mem0AgentSettings struct {
	BaseURL    string         `yaml:"base_url"`
	Model      string         `yaml:"model"`
	UserID     string         `yaml:"user_id"`
	Mem0Config map[string]any `yaml:"mem0_config"`
}

// HumeAIAgentSettings hume_ai_agent 设置
type HumeAIAgentSettings struct {
	APIKey      string `yaml:"api_key"`
	Host        string `yaml:"host"`
	ConfigID    string `yaml:"config_id"`
	IdleTimeout int    `yaml:"idle_timeout"`
}

// LLMConfig 单个 LLM provider 的配置，字段按 provider 类型取用
type LLMConfig struct {
	Model          string   `yaml:"model"`
	BaseURL        string   `yaml:"base_url"`
	LLMAPIKey      string   `yaml:"llm_api_key"`
	OrganizationID string   `yaml:"organization_id"`
	ProjectID      string   `yaml:"project_id"`
	Temperature    *float64 `yaml:"temperature,omitempty"`

	// ollama_llm
	KeepAlive    *float64 `yaml:"keep_alive,omitempty"`
	UnloadAtExit *bool    `yaml:"unload_at_exit,omitempty"`

	// llama_cpp_llm
	ModelPath string `yaml:"model_path"`

	// 等待响应头的超时，0 表示不限制
	HeaderTimeout time.Duration `yaml:"header_timeout"`
}

// TTSPreprocessorConfig 送入 TTS 前的文本过滤选项
type TTSPreprocessorConfig struct {
	RemoveSpecialChar   bool `yaml:"remove_special_char" env:"REMOVE_SPECIAL_CHAR"`
	IgnoreBrackets      bool `yaml:"ignore_brackets" env:"IGNORE_BRACKETS"`
	IgnoreParentheses   bool `yaml:"ignore_parentheses" env:"IGNORE_PARENTHESES"`
	IgnoreAsterisks     bool `yaml:"ignore_asterisks" env:"IGNORE_ASTERISKS"`
	IgnoreAngleBrackets bool `yaml:"ignore_angle_brackets" env:"IGNORE_ANGLE_BRACKETS"`
}

// TTSConfig 语音合成参数，透传给语音服务
type TTSConfig struct {
	Voice    string         `yaml:"voice" env:"VOICE"`
	Language string         `yaml:"language" env:"LANGUAGE"`
	Extra    map[string]any `yaml:"extra" env:"-"`
}

// Bool 返回指针的值，nil 时返回默认值
func Bool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Float 返回指针的值，nil 时返回默认值
func Float(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
