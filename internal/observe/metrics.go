// Package observe provides application-wide observability primitives for
// Compendium: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// All Record* helpers are nil-receiver safe so that packages can accept an
// optional *Metrics without guarding every call site.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Compendium metrics.
const meterName = "github.com/MrWong99/compendium"

// Outcome labels recorded on [Metrics.CatalogRecords].
const (
	OutcomeAdded          = "added"
	OutcomeRevised        = "revised"
	OutcomeRemoved        = "removed"
	OutcomeOrphanRevision = "orphan_revision"
	OutcomeOrphanRemoval  = "orphan_removal"
	OutcomeUnknown        = "unknown_category"
	OutcomeMissing        = "missing_category"
	OutcomeRepairedID     = "repaired_id"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Catalog loading ---

	// CatalogRecords counts processed catalog records. Use with attributes:
	//   attribute.String("category", ...), attribute.String("outcome", ...)
	CatalogRecords metric.Int64Counter

	// CatalogLoadDuration tracks how long a full catalog load pass takes.
	CatalogLoadDuration metric.Float64Histogram

	// CatalogEntities reports the number of active entities per category
	// after the most recent load. Use with attribute.String("category", ...).
	CatalogEntities metric.Int64Gauge

	// CatalogReloads counts hot reloads. Use with attribute.String("status", ...).
	CatalogReloads metric.Int64Counter

	// --- Queries ---

	// SearchDuration tracks ranked search latency. Use with attribute:
	//   attribute.String("mode", "hits"|"fuzzy")
	SearchDuration metric.Float64Histogram

	// SearchQueries counts searches. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("outcome", "hit"|"empty"|"the_one")
	SearchQueries metric.Int64Counter

	// SearchResults tracks the number of scored entities per search before
	// truncation.
	SearchResults metric.Int64Histogram

	// Lookups counts exact lookups. Use with attributes:
	//   attribute.String("kind", "id"|"value"), attribute.String("status", "found"|"missing")
	Lookups metric.Int64Counter

	// --- Tools ---

	// ToolCalls counts MCP tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// in-memory query latencies, which are mostly sub-millisecond.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5,
}

// loadBuckets defines histogram bucket boundaries (in seconds) for full
// catalog load passes.
var loadBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Catalog.
	if met.CatalogRecords, err = m.Int64Counter("compendium.catalog.records",
		metric.WithDescription("Catalog records processed by category and outcome."),
	); err != nil {
		return nil, err
	}
	if met.CatalogLoadDuration, err = m.Float64Histogram("compendium.catalog.load.duration",
		metric.WithDescription("Duration of a full catalog load pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(loadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CatalogEntities, err = m.Int64Gauge("compendium.catalog.entities",
		metric.WithDescription("Active entities per category after the last load."),
	); err != nil {
		return nil, err
	}
	if met.CatalogReloads, err = m.Int64Counter("compendium.catalog.reloads",
		metric.WithDescription("Catalog hot reloads by status."),
	); err != nil {
		return nil, err
	}

	// Queries.
	if met.SearchDuration, err = m.Float64Histogram("compendium.search.duration",
		metric.WithDescription("Latency of ranked searches by mode."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchQueries, err = m.Int64Counter("compendium.search.queries",
		metric.WithDescription("Ranked searches by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SearchResults, err = m.Int64Histogram("compendium.search.results",
		metric.WithDescription("Scored entities per search before truncation."),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25, 50, 100, 500),
	); err != nil {
		return nil, err
	}
	if met.Lookups, err = m.Int64Counter("compendium.lookups",
		metric.WithDescription("Exact lookups by kind and status."),
	); err != nil {
		return nil, err
	}

	// Tools.
	if met.ToolCalls, err = m.Int64Counter("compendium.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("compendium.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("compendium.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
//
// The global provider delegates to whatever provider [InitProvider] installs
// later, so instruments created before initialisation still export.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCatalogRecord increments the record counter for one load outcome.
func (m *Metrics) RecordCatalogRecord(ctx context.Context, category, outcome string) {
	if m == nil {
		return
	}
	m.CatalogRecords.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordCatalogSize sets the active entity gauge for category.
func (m *Metrics) RecordCatalogSize(ctx context.Context, category string, n int) {
	if m == nil {
		return
	}
	m.CatalogEntities.Record(ctx, int64(n),
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordCatalogLoad records the duration of a load pass.
func (m *Metrics) RecordCatalogLoad(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.CatalogLoadDuration.Record(ctx, seconds)
}

// RecordReload increments the reload counter with the given status.
func (m *Metrics) RecordReload(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.CatalogReloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSearch records one ranked search: its latency, outcome and the
// number of scored entities.
func (m *Metrics) RecordSearch(ctx context.Context, mode, outcome string, results int, seconds float64) {
	if m == nil {
		return
	}
	modeAttr := attribute.String("mode", mode)
	m.SearchDuration.Record(ctx, seconds, metric.WithAttributes(modeAttr))
	m.SearchQueries.Add(ctx, 1,
		metric.WithAttributes(modeAttr, attribute.String("outcome", outcome)),
	)
	m.SearchResults.Record(ctx, int64(results), metric.WithAttributes(modeAttr))
}

// RecordLookup increments the lookup counter.
func (m *Metrics) RecordLookup(ctx context.Context, kind string, found bool) {
	if m == nil {
		return
	}
	status := "missing"
	if found {
		status = "found"
	}
	m.Lookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment and its latency with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	if m == nil {
		return
	}
	toolAttr := attribute.String("tool", tool)
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(toolAttr, attribute.String("status", status)),
	)
	m.ToolExecutionDuration.Record(ctx, seconds, metric.WithAttributes(toolAttr))
}
