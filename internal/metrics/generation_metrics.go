package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("generation-metrics")

// GenerationMetrics provides metrics collection for generation runs
type GenerationMetrics struct {
	runsStartedCounter     metric.Int64Counter
	runsCompletedCounter   metric.Int64Counter
	runsFailedCounter      metric.Int64Counter
	artifactsStoredCounter metric.Int64Counter
	runDurationHistogram   metric.Float64Histogram
	runsActiveGauge        metric.Int64UpDownCounter
}

// NewGenerationMetrics creates a new generation metrics collector
func NewGenerationMetrics() (*GenerationMetrics, error) {
	runsStartedCounter, err := meter.Int64Counter(
		"compoder.runs.started",
		metric.WithDescription("Total number of generation runs started"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runsCompletedCounter, err := meter.Int64Counter(
		"compoder.runs.completed",
		metric.WithDescription("Total number of generation runs completed successfully"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runsFailedCounter, err := meter.Int64Counter(
		"compoder.runs.failed",
		metric.WithDescription("Total number of generation runs that failed"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	artifactsStoredCounter, err := meter.Int64Counter(
		"compoder.artifacts.stored",
		metric.WithDescription("Total number of artifacts persisted as component versions"),
		metric.WithUnit("{artifact}"),
	)
	if err != nil {
		return nil, err
	}

	runDurationHistogram, err := meter.Float64Histogram(
		"compoder.run.duration",
		metric.WithDescription("Duration of generation runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runsActiveGauge, err := meter.Int64UpDownCounter(
		"compoder.runs.active",
		metric.WithDescription("Number of currently active generation runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return &GenerationMetrics{
		runsStartedCounter:     runsStartedCounter,
		runsCompletedCounter:   runsCompletedCounter,
		runsFailedCounter:      runsFailedCounter,
		artifactsStoredCounter: artifactsStoredCounter,
		runDurationHistogram:   runDurationHistogram,
		runsActiveGauge:        runsActiveGauge,
	}, nil
}

// RecordRunStarted records the start of a generation run
func (gm *GenerationMetrics) RecordRunStarted(ctx context.Context, provider, model string) {
	gm.runsStartedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gen_ai.provider", provider),
			attribute.String("gen_ai.request.model", model),
		),
	)
	gm.runsActiveGauge.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gen_ai.provider", provider),
		),
	)
}

// RecordRunCompleted records a successful generation run
func (gm *GenerationMetrics) RecordRunCompleted(ctx context.Context, provider, model string, stored int, duration time.Duration) {
	gm.runsCompletedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gen_ai.provider", provider),
			attribute.String("gen_ai.request.model", model),
			attribute.Int("run.artifacts_stored", stored),
		),
	)
	gm.runDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("gen_ai.provider", provider),
			attribute.String("status", "completed"),
		),
	)
	gm.runsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("gen_ai.provider", provider),
		),
	)
}

// RecordRunFailed records a failed generation run
func (gm *GenerationMetrics) RecordRunFailed(ctx context.Context, provider, model string, duration time.Duration) {
	gm.runsFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gen_ai.provider", provider),
			attribute.String("gen_ai.request.model", model),
		),
	)
	gm.runDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("gen_ai.provider", provider),
			attribute.String("status", "failed"),
		),
	)
	gm.runsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("gen_ai.provider", provider),
		),
	)
}

// RecordArtifactStored records one artifact persisted as a component version
func (gm *GenerationMetrics) RecordArtifactStored(ctx context.Context, provider, model string) {
	gm.artifactsStoredCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gen_ai.provider", provider),
			attribute.String("gen_ai.request.model", model),
		),
	)
}
