// =============================================================================
// Companion OpenTelemetry SDK Initialization
// =============================================================================
// Sets up OTLP trace and metric export for conversation turns. When telemetry
// is disabled no exporter is created and the global providers stay noop, so
// spans started by the orchestrator cost nothing.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/companion/config"
)

// InstrumentationName 是对话编排使用的 tracer / meter 名称
const InstrumentationName = "github.com/BaSui01/companion/conversation"

// Providers holds the OTel SDK TracerProvider and MeterProvider.
// When telemetry is disabled, both fields are nil and Shutdown is a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init initializes the OTel SDK. When cfg.Enabled is false, it returns
// a noop Providers without connecting to any external service.
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}
	if cfg.OTLPEndpoint == "" {
		return nil, errors.New("telemetry enabled but otlp_endpoint is empty")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	p := newProviders(res, cfg.SampleRate,
		sdktrace.WithBatcher(traceExporter),
		sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second)),
	)
	p.install()

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return p, nil
}

// newProviders 组装 SDK providers；测试通过它注入内存 exporter / reader
func newProviders(res *resource.Resource, sampleRate float64, spans sdktrace.TracerProviderOption, reader sdkmetric.Reader) *Providers {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	}
	if spans != nil {
		opts = append(opts, spans)
	}
	mopts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		mopts = append(mopts, sdkmetric.WithReader(reader))
	}
	return &Providers{
		tp: sdktrace.NewTracerProvider(opts...),
		mp: sdkmetric.NewMeterProvider(mopts...),
	}
}

// install registers p as the global providers.
func (p *Providers) install() {
	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Shutdown flushes pending spans/metrics and closes exporters.
// Safe to call on noop Providers (nil tp/mp).
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 💬 对话轮次埋点
// =============================================================================

// TurnInstruments 是对话编排器使用的 tracer 与轮次计数器。
// 零值不可用，请使用 NewTurnInstruments。
type TurnInstruments struct {
	tracer   trace.Tracer
	turns    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewTurnInstruments 从给定 providers 创建埋点；参数为 nil 时使用全局 provider。
func NewTurnInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*TurnInstruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	turns, err := meter.Int64Counter("companion.conversation.turns",
		metric.WithDescription("Conversation turns by mode and outcome"))
	if err != nil {
		return nil, fmt.Errorf("create turn counter: %w", err)
	}
	duration, err := meter.Float64Histogram("companion.conversation.turn.duration",
		metric.WithDescription("Conversation turn duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create turn histogram: %w", err)
	}
	return &TurnInstruments{tracer: tp.Tracer(InstrumentationName), turns: turns, duration: duration}, nil
}

// StartTurn 开启 "conversation.turn" span
func (ti *TurnInstruments) StartTurn(ctx context.Context, sessionID, mode string) (context.Context, trace.Span) {
	return ti.tracer.Start(ctx, "conversation.turn",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("mode", mode),
		),
	)
}

// EndTurn 记录轮次结果并结束 span
func (ti *TurnInstruments) EndTurn(ctx context.Context, span trace.Span, mode, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("conversation.mode", mode),
		attribute.String("conversation.status", status),
	)
	ti.turns.Add(ctx, 1, attrs)
	ti.duration.Record(ctx, elapsed.Seconds(), attrs)
	span.SetAttributes(attribute.String("conversation.status", status))
	span.End()
}

// buildVersion extracts the module version from Go build info.
// Falls back to "dev" if unavailable.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
