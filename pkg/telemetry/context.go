package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// Telemetry combines logging, tracing, metrics and diagnostics events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
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

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events := NewEventPublisher(cfg.Events)
	events.Subscribe(LogSubscriber(logger.NewComponentLogger("events")), nil)

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
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

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// InstrumentedContext bundles a span, a logger and a timer for one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)
	logger := FromContext(ctx).WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// runSpanKey is the context key for series run spans.
type runSpanKey struct{}

// runTimerKey is the context key for series run timers.
type runTimerKey struct{}

// jobSpanKey is the context key for job spans.
type jobSpanKey struct{}

// jobTimerKey is the context key for job timers.
type jobTimerKey struct{}

// WithRunContext creates a context enriched with run-specific telemetry.
func WithRunContext(ctx context.Context, runID, user, mode string, jobs int) context.Context {
	logger := FromContext(ctx).WithRunID(runID).WithField("user", user)
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return logger.WithContext(ctx)
	}

	spanCtx, span := tel.Tracer.StartExecuteSpan(ctx, runID, mode, jobs)
	spanCtx = logger.WithContext(spanCtx)
	tel.Events.PublishRunStarted(runID, user, jobs)

	spanCtx = context.WithValue(spanCtx, runSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, runTimerKey{}, NewTimer())
	return spanCtx
}

// EndRunContext completes the run context. failedJob is -1 on success.
func EndRunContext(ctx context.Context, runID string, failedJob int, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(runSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var duration time.Duration
	if timer, ok := ctx.Value(runTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	if err != nil {
		tel.Events.PublishRunFailed(runID, failedJob, err.Error())
		return
	}
	tel.Events.PublishRunCompleted(runID, duration)
}

// WithJobContext creates a context enriched with job-specific telemetry.
func WithJobContext(ctx context.Context, runID string, index int, label, variant string) context.Context {
	logger := FromContext(ctx).WithJob(index).WithWorklist(label, variant)
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return logger.WithContext(ctx)
	}

	spanCtx, span := tel.Tracer.StartJobSpan(ctx, index, label, variant)
	spanCtx = logger.WithContext(spanCtx)
	tel.Events.PublishJobStarted(runID, index, label)

	spanCtx = context.WithValue(spanCtx, jobSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, jobTimerKey{}, NewTimer())
	return spanCtx
}

// EndJobContext completes the job context, recording metrics and events.
func EndJobContext(ctx context.Context, runID string, index int, label, variant string, transfers int, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(jobSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
			span.SetAttributes(AttrErrorCode.StringSlice(errdefs.AsList(err).Codes()))
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var duration time.Duration
	if timer, ok := ctx.Value(jobTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	if err != nil {
		tel.Metrics.RecordJob(variant, "aborted", duration)
		RecordFailure(ctx, err)
		tel.Events.PublishJobAborted(runID, index, label, errdefs.AsList(err).Codes())
		return
	}
	tel.Metrics.RecordJob(variant, "committed", duration)
	tel.Events.PublishJobCommitted(runID, index, label, transfers)
}

// RecordFailure counts err by class and each violation by code.
func RecordFailure(ctx context.Context, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil || err == nil {
		return
	}
	for _, e := range errdefs.AsList(err) {
		tel.Metrics.RecordError(string(e.Class))
		if e.Class == errdefs.ClassTransferViolation {
			tel.Metrics.RecordViolation(e.Code)
		}
	}
}

// RecordWarnings logs, counts and publishes non-blocking warnings.
// index is the job index, or -1 for planner warnings.
func RecordWarnings(ctx context.Context, source string, index int, warnings []errdefs.Warning) {
	if len(warnings) == 0 {
		return
	}
	logger := FromContext(ctx)
	tel := FromTelemetryContext(ctx)
	for _, w := range warnings {
		logger.Warn(w.String())
		if tel != nil {
			tel.Metrics.RecordWarning(w.Code)
			tel.Events.PublishWarning(source, index, w.Code, w.Message)
		}
	}
}
