package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsAPI forwards every report to an inner API and mirrors it onto otel
// instruments, so the counts reach whatever meter provider is installed.
type MetricsAPI struct {
	inner   API
	reports metric.Int64Counter
	counts  metric.Int64Gauge
}

func NewMetricsAPI(name string, inner API) (MetricsAPI, error) {
	meter := otel.Meter(name)
	reports, err := meter.Int64Counter(
		"reports",
		metric.WithDescription("number of broken and warning reports, by id"),
	)
	if err != nil {
		return MetricsAPI{}, err
	}
	counts, err := meter.Int64Gauge(
		"counts",
		metric.WithDescription("last reported count, by id"),
	)
	if err != nil {
		return MetricsAPI{}, err
	}
	return MetricsAPI{inner: inner, reports: reports, counts: counts}, nil
}

func (m MetricsAPI) ReportBroken(id string, params ...any) {
	m.reports.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("id", id),
		attribute.String("level", "broken"),
	))
	m.inner.ReportBroken(id, params...)
}

func (m MetricsAPI) ReportWarning(id string, params ...any) {
	m.reports.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("id", id),
		attribute.String("level", "warning"),
	))
	m.inner.ReportWarning(id, params...)
}

func (m MetricsAPI) ReportDebug(msg string, params ...any) {
	m.inner.ReportDebug(msg, params...)
}

func (m MetricsAPI) ReportCount(id string, count int64) {
	m.counts.Record(context.Background(), count, metric.WithAttributes(
		attribute.String("id", id),
	))
	m.inner.ReportCount(id, count)
}
