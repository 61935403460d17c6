// Package telemetry provides observability for the worklist planner and the
// series executor.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry), Prometheus metrics and a synchronous diagnostics event
// publisher behind a single Telemetry value carried in a context.Context.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Code that only has a context retrieves its logger with FromContext, which
// falls back to a stderr logger when no telemetry was installed:
//
//	logger := telemetry.FromContext(ctx).WithJob(2).WithRack("09999999")
//	logger.Info("executing worklist")
//
// # Spans
//
// Generation runs inside a "series.generate" span. A series run opens a
// "series.execute" span with WithRunContext and one "job.execute" span per
// job with WithJobContext. EndJobContext records the job outcome, the
// violation codes of an aborted job and the matching events.
//
// # Metrics
//
// When metrics are enabled the collector uses its own registry and exposes:
//
//   - thelma_series_planned_total{scenario,status}
//   - thelma_worklists_planned_total{variant}
//   - thelma_jobs_executed_total{variant,status}
//   - thelma_job_duration_seconds{variant}
//   - thelma_transfers_committed_total{variant}
//   - thelma_transfer_volume_microlitres{variant}
//   - thelma_transfer_violations_total{code}
//   - thelma_errors_by_class_total{class}
//   - thelma_warnings_total{code}
//
// A disabled collector accepts every call and records nothing.
//
// # Events
//
// The EventPublisher delivers events in publication order on the calling
// goroutine. NewTelemetry subscribes a logger so that every event also ends
// up in the log stream.
package telemetry
