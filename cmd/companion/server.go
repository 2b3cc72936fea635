package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/companion/agent"
	"github.com/BaSui01/companion/api/handlers"
	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/conversation"
	"github.com/BaSui01/companion/group"
	"github.com/BaSui01/companion/history"
	"github.com/BaSui01/companion/internal/metrics"
	"github.com/BaSui01/companion/internal/server"
	"github.com/BaSui01/companion/internal/services"
	"github.com/BaSui01/companion/internal/telemetry"
	"github.com/BaSui01/companion/llm"
	llmfactory "github.com/BaSui01/companion/llm/factory"
	"github.com/BaSui01/companion/session"
)

// catalogPollInterval 是角色配置与背景目录的轮询间隔
const catalogPollInterval = 5 * time.Second

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装全部组件并管理 HTTP、Metrics 双端口的生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	telemetry    *telemetry.Providers
	metrics      *metrics.Collector
	history      history.Store
	services     *services.Client
	catalog      *config.Catalog
	orchestrator *conversation.Orchestrator
	autonomous   *conversation.Autonomous
	sessions     *session.Registry
	wsHandler    *handlers.WSHandler

	// 停止 IP 限流器的清理 goroutine
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Run 初始化组件并阻塞到 ctx 结束，随后按依赖逆序关闭
func (s *Server) Run(ctx context.Context) error {
	if err := s.init(ctx); err != nil {
		s.cleanup()
		return err
	}
	defer s.cleanup()

	s.logger.Info("All servers starting",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	g.Go(func() error { return s.metricsManager.Run(gctx) })
	g.Go(func() error {
		s.catalog.Watch(gctx, catalogPollInterval)
		return nil
	})
	g.Go(func() error {
		s.autonomous.Run(gctx)
		return nil
	})
	return g.Wait()
}

// =============================================================================
// 🔧 初始化
// =============================================================================

func (s *Server) init(ctx context.Context) error {
	var err error

	// 1. OpenTelemetry：失败时降级为 noop
	s.telemetry, err = telemetry.Init(ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	// 2. Prometheus
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.NewCollector("companion", registry, s.logger)

	// 3. 历史记录：不可用时关闭历史功能，会话照常进行
	s.history, err = history.Open(ctx, s.cfg, s.logger)
	if err != nil {
		s.logger.Warn("History store not available, chat history disabled", zap.Error(err))
		s.history = nil
	}
	if cr, ok := s.history.(history.CacheReporter); ok {
		if err := s.metrics.RegisterCache("history", cr.CacheStats); err != nil {
			s.logger.Warn("failed to export history cache metrics", zap.Error(err))
		}
	}

	// 4. ASR/TTS 语音服务
	s.sessions = session.NewRegistry()
	convOpts := conversation.Options{
		Sessions: s.sessions,
		Groups:   group.NewManager(s.logger),
		Metrics:  s.metrics,
		Logger:   s.logger,
	}
	if s.history != nil {
		convOpts.History = s.history
	}
	if s.cfg.Services.Enabled {
		s.services, err = services.NewClient(s.cfg.Services, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create services client: %w", err)
		}
		convOpts.ASR = s.services
		convOpts.TTS = s.services
	} else {
		s.logger.Info("Speech services disabled, voice input and audio output unavailable")
	}

	// 5. 对话编排器
	s.orchestrator, err = conversation.New(convOpts)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	s.autonomous = conversation.NewAutonomous(s.orchestrator, s.cfg.Autonomous, s.logger)

	// 6. 角色配置与背景目录
	s.catalog = config.NewCatalog(s.cfg.Server.ConfigAltsDir, s.cfg.Server.BackgroundsDir, s.logger)

	// 7. Handlers
	s.wsHandler, err = handlers.NewWSHandler(handlers.WSOptions{
		Sessions:       convOpts.Sessions,
		Groups:         convOpts.Groups,
		Orchestrator:   s.orchestrator,
		NewAgent:       s.newAgent,
		Character:      s.cfg.Character,
		History:        s.history,
		Catalog:        s.catalog,
		Metrics:        s.metrics,
		AllowedOrigins: s.cfg.Auth.AllowedOrigins,
		MessageRPS:     s.cfg.Auth.SessionMessageRPS,
		MessageBurst:   s.cfg.Auth.SessionMessageBurst,
		Logger:         s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create ws handler: %w", err)
	}

	s.httpManager = server.NewManager("http", s.buildHandler(), server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	// 长连接已被 Hijack，http.Server.Shutdown 不会等待它们
	s.httpManager.RegisterOnShutdown(s.wsHandler.Close)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", s.metrics.Handler())
	s.metricsManager = server.NewManager("metrics", metricsMux, server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)

	s.logger.Info("Components initialized",
		zap.String("history_backend", s.cfg.History.Backend),
		zap.Bool("history_enabled", s.history != nil),
		zap.Bool("services_enabled", s.services != nil),
		zap.Bool("telemetry_enabled", s.cfg.Telemetry.Enabled),
		zap.Bool("autonomous_enabled", s.cfg.Autonomous.Enabled),
	)
	return nil
}

// newAgent 为每个连接构建 Agent，LLM 调用上报到指标收集器
func (s *Server) newAgent(char config.CharacterConfig) (agent.Agent, error) {
	deps := agent.Deps{
		Logger: s.logger,
		NewLLM: func(provider string, cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
			p, err := llmfactory.CreateLLM(provider, cfg, logger)
			if err != nil {
				return nil, err
			}
			return llm.Instrument(p, s.metrics), nil
		},
	}
	if s.history != nil {
		deps.History = s.history
	}
	return agent.NewFromCharacter(char, deps)
}

// =============================================================================
// 🌐 路由与中间件
// =============================================================================

func (s *Server) buildHandler() http.Handler {
	health := handlers.NewHealthHandler(Version, s.logger)
	if s.services != nil {
		health.RegisterCheck(handlers.CheckFunc{CheckName: "services", Probe: s.services.Health})
	}
	if s.history != nil {
		health.RegisterCheck(handlers.CheckFunc{CheckName: "history", Probe: func(ctx context.Context) error {
			_, err := s.history.List(ctx, "healthcheck")
			return err
		}})
	}

	mux := http.NewServeMux()
	mux.Handle("/client-ws", s.wsHandler)
	mux.HandleFunc("/health", health.HandleHealth)
	mux.HandleFunc("/healthz", health.HandleHealth)
	mux.HandleFunc("/ready", health.HandleReady)
	handlers.NewControlHandler(s.sessions, s.autonomous, s.cfg.Character, s.logger).Register(mux)
	if dir := s.cfg.Server.BackgroundsDir; dir != "" {
		mux.Handle("/bg/", http.StripPrefix("/bg/", http.FileServer(http.Dir(dir))))
	}

	// 探针与背景图片不需要认证：浏览器加载图片时无法附带凭据
	skipAuth := []string{"/health", "/healthz", "/ready", "/bg/"}

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metrics),
		RequestLogger(s.logger),
		CORS(s.cfg.Auth.AllowedOrigins),
	}
	if s.cfg.Auth.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(rateLimiterCtx, s.cfg.Auth.RateLimitRPS, s.cfg.Auth.RateLimitBurst, s.logger))
	}
	if len(s.cfg.Auth.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Auth.APIKeys, skipAuth, s.logger))
	}
	if s.cfg.Auth.JWTSecret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, skipAuth, s.logger))
	}
	if len(s.cfg.Auth.APIKeys) == 0 && s.cfg.Auth.JWTSecret == "" {
		s.logger.Warn("No API keys or JWT secret configured, /client-ws is unauthenticated",
			zap.String("allowed_origins", strings.Join(s.cfg.Auth.AllowedOrigins, ",")))
	}
	return Chain(mux, middlewares...)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// cleanup 在两个服务器退出后释放其余资源
func (s *Server) cleanup() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 0. 停止限流器清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 断开所有会话并等待进行中的轮次结束
	if s.wsHandler != nil {
		s.wsHandler.Close()
	}
	if s.orchestrator != nil {
		if err := s.orchestrator.Shutdown(ctx); err != nil {
			s.logger.Warn("Conversation turns did not finish in time", zap.Error(err))
		}
	}

	// 2. 关闭历史存储连接
	if closer, ok := s.history.(history.Closer); ok {
		if err := closer.Close(ctx); err != nil {
			s.logger.Error("History store close error", zap.Error(err))
		}
	}

	// 3. 刷新遥测数据
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
