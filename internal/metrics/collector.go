// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// 轮次状态标签
const (
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusError       = "error"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 对话指标
	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	interrupts    prometheus.Counter
	wsConnections prometheus.Gauge
	groupMembers  prometheus.Gauge

	// LLM 指标
	llmRequestsTotal  *prometheus.CounterVec
	llmStreamDuration *prometheus.HistogramVec

	namespace  string
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
}

// NewCollector 在 reg 上注册全部指标；reg 为 nil 时使用新的独立 Registry。
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	c := &Collector{
		namespace:  namespace,
		registerer: reg,
		gatherer:   reg,
		logger:     logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"mode", "status"}, // mode: single, group
	)

	c.turnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_turn_duration_seconds",
			Help:      "Conversation turn duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	c.interrupts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interrupts_total",
		Help:      "Total number of interrupted turns",
	})

	c.wsConnections = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections_active",
		Help:      "Number of open client websocket connections",
	})

	c.groupMembers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "group_members",
		Help:      "Number of sessions that belong to a group",
	})

	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM streaming requests",
		},
		[]string{"provider", "status"},
	)

	c.llmStreamDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_stream_duration_seconds",
			Help:      "Time from request to end of the LLM token stream",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Handler 返回 /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 💬 对话指标记录
// =============================================================================

// RecordTurn 记录一次对话轮次
func (c *Collector) RecordTurn(mode, status string, duration time.Duration) {
	c.turnsTotal.WithLabelValues(mode, status).Inc()
	c.turnDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if status == StatusInterrupted {
		c.interrupts.Inc()
	}
}

// WSConnected 活跃连接数加一
func (c *Collector) WSConnected() { c.wsConnections.Inc() }

// WSDisconnected 活跃连接数减一
func (c *Collector) WSDisconnected() { c.wsConnections.Dec() }

// SetGroupMembers 设置当前处于群组中的会话数
func (c *Collector) SetGroupMembers(n int) { c.groupMembers.Set(float64(n)) }

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// ObserveLLM 记录一次 LLM 流式请求
func (c *Collector) ObserveLLM(provider, status string, duration time.Duration) {
	c.llmRequestsTotal.WithLabelValues(provider, status).Inc()
	c.llmStreamDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码归类
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
