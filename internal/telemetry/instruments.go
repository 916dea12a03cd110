package telemetry

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

// ServiceVersion is reported on the OTLP resource.
const ServiceVersion = "1.0.0"

// Instrument names exported over OTLP.
const (
	MetricRequests           = "http.server.requests"
	MetricRequestDuration    = "http.server.request.duration"
	MetricRateLimitRejection = "weldflow.ratelimit.rejections"
)

// Metrics holds the OTLP-exported HTTP and rate limit instruments. Business
// counters live in DomainMetrics on the Prometheus registry.
type Metrics struct {
	RequestsTotal       metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	RateLimitRejections metric.Int64Counter
}

// NewMetrics creates the instruments on meter. Latency buckets are tuned
// for an API whose slowest calls are list queries over business_records.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	m.RequestsTotal, err = meter.Int64Counter(MetricRequests,
		metric.WithDescription("HTTP requests by route, kind and status"),
		metric.WithUnit("{request}"))
	collect(err)

	m.RequestDuration, err = meter.Float64Histogram(MetricRequestDuration,
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5))
	collect(err)

	m.RateLimitRejections, err = meter.Int64Counter(MetricRateLimitRejection,
		metric.WithDescription("Requests rejected by the per-workspace rate limit"),
		metric.WithUnit("{rejection}"))
	collect(err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}
