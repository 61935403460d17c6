package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"empty service", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddress = "" }, true},
		{"bad event level", func(c *Config) { c.Events.MinLevel = "debug" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
	if err := ProductionConfig().Validate(); err != nil {
		t.Errorf("Expected valid production config, got %v", err)
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.NewComponentLogger("executor").WithJob(2).WithWorklist("buffer", "dilution").WithRack("09999999").Info("committed")

	out := buf.String()
	for _, want := range []string{`"component":"executor"`, `"job":2`, `"worklist":"buffer"`, `"variant":"dilution"`, `"rack":"09999999"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in %s", want, out)
		}
	}
}

func TestFromContextDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("Expected default logger")
	}
	l := NewNopLogger()
	ctx := l.WithContext(context.Background())
	if FromContext(ctx) != l {
		t.Error("Expected logger from context")
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	m.RecordJob("dilution", "committed", time.Second)
	m.RecordTransfer("dilution", 10)
	if m.Registry() != nil {
		t.Error("Expected no registry when disabled")
	}
	var nilMetrics *Metrics
	nilMetrics.RecordViolation(errdefs.CodeTargetOverflow)
}

func TestMetricsRecord(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Enabled = true
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	m.RecordTransfer("dilution", 10)
	m.RecordTransfer("dilution", 20)
	m.RecordViolation(errdefs.CodeSourceUnderflow)
	m.RecordSeriesPlanned("optimisation", "success", []string{"dilution", "container_transfer"})

	if got := testutil.ToFloat64(m.transfersCommitted.WithLabelValues("dilution")); got != 2 {
		t.Errorf("Expected 2 transfers, got %f", got)
	}
	if got := testutil.ToFloat64(m.violationsByCode.WithLabelValues(errdefs.CodeSourceUnderflow)); got != 1 {
		t.Errorf("Expected 1 violation, got %f", got)
	}
	if got := testutil.ToFloat64(m.worklistsPlanned.WithLabelValues("container_transfer")); got != 1 {
		t.Errorf("Expected 1 worklist, got %f", got)
	}
}

func TestEventPublisherOrderAndFilters(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, MinLevel: EventLevelInfo})
	var got []string
	ep.Subscribe(func(e Event) { got = append(got, e.Type) }, nil)
	ep.AddFilter(FilterByRunID("run-1"))

	ep.PublishJobStarted("run-1", 0, "buffer")
	ep.PublishJobStarted("run-2", 0, "buffer")
	ep.PublishJobCommitted("run-1", 0, "buffer", 3)

	want := []string{EventTypeJobStarted, EventTypeJobCommitted}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestEventPublisherMinLevel(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, MinLevel: EventLevelWarning})
	count := 0
	ep.Subscribe(func(Event) { count++ }, nil)

	ep.PublishJobStarted("run-1", 0, "buffer")
	ep.PublishWarning("executor", 0, errdefs.WarnDilutionSplit, "split")
	if count != 1 {
		t.Errorf("Expected 1 delivered event, got %d", count)
	}

	disabled := NewEventPublisher(EventsConfig{})
	disabled.Subscribe(func(Event) { t.Error("Expected no delivery when disabled") }, nil)
	disabled.PublishWarning("executor", 0, errdefs.WarnDilutionSplit, "split")
}

func TestJobContextLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Logging.Output = "stdout"
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var aborted []Event
	tel.Events.Subscribe(func(e Event) { aborted = append(aborted, e) }, FilterByType(EventTypeJobAborted))

	ctx := tel.WithContext(context.Background())
	jobCtx := WithJobContext(ctx, "run-1", 1, "transfer", "container_transfer")

	var violations errdefs.List
	violations.Add(errdefs.NewTransferViolation(errdefs.CodeTargetOverflow, "too full"))
	EndJobContext(jobCtx, "run-1", 1, "transfer", "container_transfer", 0, violations.Err())

	if len(aborted) != 1 || aborted[0].JobIndex != 1 {
		t.Fatalf("Expected one aborted event for job 1, got %v", aborted)
	}
	if got := testutil.ToFloat64(tel.Metrics.violationsByCode.WithLabelValues(errdefs.CodeTargetOverflow)); got != 1 {
		t.Errorf("Expected 1 overflow violation, got %f", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.jobsExecuted.WithLabelValues("container_transfer", "aborted")); got != 1 {
		t.Errorf("Expected 1 aborted job, got %f", got)
	}
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	op := StartOperation(context.Background(), "series.generate")
	if op.Span != nil {
		t.Error("Expected no span without telemetry")
	}
	op.End(errors.New("boom"))
}
