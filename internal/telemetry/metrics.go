package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/orgbot"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Request lifecycle metrics
	RequestsStartedTotal  metric.Int64Counter
	RequestsResolvedTotal metric.Int64Counter
	StaleActionsTotal     metric.Int64Counter

	// Directory metrics
	DirectoryCallsTotal     metric.Int64Counter
	DirectoryCallDuration   metric.Float64Histogram
	AdminAssignmentRetries  metric.Int64Counter
	AdminAssignmentFailures metric.Int64Counter

	// Session store metrics
	ExpiredSessionsDeletedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments are bound to the global meter provider at first use, so InitTelemetry
// must run before the first call for metrics to be exported.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RequestsStartedTotal, _ = meter.Int64Counter(
		"orgbot.requests.started.total",
		metric.WithDescription("Total number of org creation requests submitted"),
		metric.WithUnit("{request}"),
	)

	m.RequestsResolvedTotal, _ = meter.Int64Counter(
		"orgbot.requests.resolved.total",
		metric.WithDescription("Total number of org creation requests resolved, by status and reason"),
		metric.WithUnit("{request}"),
	)

	m.StaleActionsTotal, _ = meter.Int64Counter(
		"orgbot.actions.stale.total",
		metric.WithDescription("Total number of actions received for a resolved or expired session"),
		metric.WithUnit("{action}"),
	)

	m.DirectoryCallsTotal, _ = meter.Int64Counter(
		"orgbot.directory.calls.total",
		metric.WithDescription("Total number of directory API calls, by operation and outcome"),
		metric.WithUnit("{call}"),
	)

	m.DirectoryCallDuration, _ = meter.Float64Histogram(
		"orgbot.directory.call.duration",
		metric.WithDescription("Duration of directory API calls"),
		metric.WithUnit("ms"),
	)

	m.AdminAssignmentRetries, _ = meter.Int64Counter(
		"orgbot.admin_assignment.retries.total",
		metric.WithDescription("Total number of retried admin assignments"),
		metric.WithUnit("{retry}"),
	)

	m.AdminAssignmentFailures, _ = meter.Int64Counter(
		"orgbot.admin_assignment.failures.total",
		metric.WithDescription("Total number of created orgs where the requester could not be made admin"),
		metric.WithUnit("{failure}"),
	)

	m.ExpiredSessionsDeletedTotal, _ = meter.Int64Counter(
		"orgbot.sessions.expired.deleted.total",
		metric.WithDescription("Total number of expired sessions removed by the cleanup job"),
		metric.WithUnit("{session}"),
	)

	return m
}
