package augment

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/augmentd/internal/augment"

// Metrics holds context-augmentation metrics.
type Metrics struct {
	meter            metric.Meter
	logger           *zap.Logger
	requests         metric.Int64Counter
	retrievalLatency metric.Float64Histogram
	candidates       metric.Int64Histogram
}

// NewMetrics creates a Metrics instance for augmentation.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.requests, err = m.meter.Int64Counter(
		"augmentd.augment.requests_total",
		metric.WithDescription("Context augmentation requests, labeled by whether retrieval ran"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.retrievalLatency, err = m.meter.Float64Histogram(
		"augmentd.augment.retrieval_duration_seconds",
		metric.WithDescription("Duration of the retrieval step in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		m.logger.Warn("failed to create retrieval latency histogram", zap.Error(err))
	}

	m.candidates, err = m.meter.Int64Histogram(
		"augmentd.augment.retrieval_candidates",
		metric.WithDescription("Candidate conversations returned by vector search per request"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		m.logger.Warn("failed to create candidates histogram", zap.Error(err))
	}
}

// RecordRequest records one augmentation request.
func (m *Metrics) RecordRequest(ctx context.Context, retrieved bool, latency time.Duration, candidates int) {
	attrs := metric.WithAttributes(attribute.Bool("retrieved", retrieved))
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if retrieved {
		if m.retrievalLatency != nil {
			m.retrievalLatency.Record(ctx, latency.Seconds(), attrs)
		}
		if m.candidates != nil {
			m.candidates.Record(ctx, int64(candidates), attrs)
		}
	}
}
