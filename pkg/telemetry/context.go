package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer and metrics of one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return newTelemetry(cfg, logger)
}

// NewTelemetryWithLogger creates a telemetry instance around an existing logger.
func NewTelemetryWithLogger(cfg *Config, logger *Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Nop returns telemetry that logs nothing, records into a private registry and
// exports no spans.
func Nop() *Telemetry {
	cfg := DefaultConfig()
	tracer, _ := NewTracer(TracingConfig{}, cfg.ServiceName, cfg.ServiceVersion)
	metrics, _ := NewMetrics(cfg.Metrics)
	return &Telemetry{
		Logger:  FromContext(context.Background()),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes spans and writes the metrics textfile.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Metrics.WriteTextfile(); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// Stage is an instrumented pass stage: a span, a timer and a stage logger.
type Stage struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	name    string
	metrics *Metrics
}

// StartStage begins an instrumented stage. Without telemetry in ctx it only times.
func StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) *Stage {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &Stage{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
			name:   stage,
		}
	}

	spanCtx, span := tel.Tracer.StartStageSpan(ctx, stage)
	span.SetAttributes(attrs...)

	logger := FromContext(ctx).WithField("stage", stage)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &Stage{
		Ctx:     logger.WithContext(spanCtx),
		Span:    span,
		Logger:  logger,
		Timer:   NewTimer(),
		name:    stage,
		metrics: tel.Metrics,
	}
}

// End finishes the stage, recording success or failure.
func (s *Stage) End(err error) {
	if s.metrics != nil {
		s.metrics.RecordStage(s.name, s.Timer.Duration(), err)
	}
	if s.Span != nil {
		if err != nil {
			RecordError(s.Span, err)
		} else {
			RecordSuccess(s.Span)
		}
		s.Span.End()
	}
	if err != nil {
		s.Logger.zlog.Debug().Err(err).Dur("duration", s.Timer.Duration()).Msg("Stage failed")
		return
	}
	s.Logger.zlog.Debug().Dur("duration", s.Timer.Duration()).Msg("Stage completed")
}
