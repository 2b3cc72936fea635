// =============================================================================
// 📦 Companion 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Auth:       DefaultAuthConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Mongo:      DefaultMongoConfig(),
		History:    DefaultHistoryConfig(),
		Services:   DefaultServicesConfig(),
		Autonomous: DefaultAutonomousConfig(),
		Character:  DefaultCharacterConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        12393,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxConnections:  0,
		BackgroundsDir:  "backgrounds",
		ConfigAltsDir:   "characters",
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		AllowedOrigins:      []string{"*"},
		RateLimitRPS:        100,
		RateLimitBurst:      200,
		SessionMessageRPS:   50,
		SessionMessageBurst: 100,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "companion",
		Name:            "companion.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        "",
		Database:   "companion",
		Collection: "chat_histories",
		Timeout:    10 * time.Second,
	}
}

// DefaultHistoryConfig 返回默认历史配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Backend:      "file",
		Dir:          "chat_history",
		CacheEnabled: false,
		CacheTTL:     10 * time.Minute,
	}
}

// DefaultServicesConfig 返回默认语音服务配置
func DefaultServicesConfig() ServicesConfig {
	return ServicesConfig{
		Enabled: false,
		BaseURL: "http://localhost:8000",
		Timeout: 60 * time.Second,
	}
}

// DefaultAutonomousConfig 返回默认主动发言配置（默认关闭，2 到 4 分钟一次）
func DefaultAutonomousConfig() AutonomousConfig {
	return AutonomousConfig{
		Enabled:     false,
		Interval:    2 * time.Minute,
		MinInterval: 2 * time.Minute,
		MaxInterval: 4 * time.Minute,
	}
}

// DefaultCharacterConfig 返回默认角色配置
func DefaultCharacterConfig() CharacterConfig {
	return CharacterConfig{
		ConfName:        "default",
		ConfUID:         "default",
		CharacterName:   "AI",
		HumanName:       "Human",
		PersonaPrompt:   "You are a friendly companion.",
		EmotionKeywords: []string{"neutral", "joy", "sadness", "anger", "fear", "surprise", "disgust", "smirk"},
		AgentConfig: AgentConfig{
			ConversationAgentChoice: "basic_memory_agent",
			AgentSettings: AgentSettings{
				BasicMemoryAgent: &BasicMemoryAgentSettings{
					LLMProvider:     "ollama_llm",
					SegmentMethod:   "pysbd",
					InterruptMethod: "user",
				},
			},
			LLMConfigs: map[string]LLMConfig{
				"ollama_llm": {
					Model:   "qwen2.5:latest",
					BaseURL: "http://localhost:11434/v1",
				},
			},
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "companion",
		SampleRate:   0.1,
	}
}
