// Package metrics holds the Prometheus collectors of a pipeline run.
//
// A run is a batch job, not a server, so nothing is scraped: the collectors
// live in their own registry and are written once to a node_exporter textfile
// when the run ends. Every method is safe on a nil *Metrics, which disables
// collection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "retail_etl"

const (
	MetricRowsIngested      = "rows_ingested_total"
	MetricCoercionNulls     = "coercion_nulls_total"
	MetricIdentifiersFixed  = "identifiers_corrected_total"
	MetricRowsCommitted     = "rows_committed_total"
	MetricBatchesCommitted  = "batches_committed_total"
	MetricBatchFailures     = "batch_failures_total"
	MetricDivergentKeys     = "divergent_keys"
	MetricPartitionsWritten = "partitions_written_total"
	MetricDocumentsWritten  = "documents_replicated_total"
	MetricStageSeconds      = "stage_duration_seconds"
)

// Metrics groups the collectors of one run.
type Metrics struct {
	Registry *prometheus.Registry

	RowsIngested      *prometheus.CounterVec
	CoercionNulls     *prometheus.CounterVec
	IdentifiersFixed  prometheus.Counter
	RowsCommitted     *prometheus.CounterVec
	BatchesCommitted  *prometheus.CounterVec
	BatchFailures     *prometheus.CounterVec
	DivergentKeys     *prometheus.GaugeVec
	PartitionsWritten prometheus.Counter
	DocumentsWritten  prometheus.Counter
	StageSeconds      *prometheus.HistogramVec
}

// New creates the collectors and registers them in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RowsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricRowsIngested,
				Help:      "Rows read from source files.",
			},
			[]string{"dataset"},
		),
		CoercionNulls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricCoercionNulls,
				Help:      "Cells replaced by null because they did not coerce to the declared type.",
			},
			[]string{"dataset", "column"},
		),
		IdentifiersFixed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricIdentifiersFixed,
				Help:      "Composite sale identifiers whose store prefix was rewritten.",
			},
		),
		RowsCommitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricRowsCommitted,
				Help:      "Rows durably committed by the bulk loader.",
			},
			[]string{"table"},
		),
		BatchesCommitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricBatchesCommitted,
				Help:      "Bulk-copy batches committed.",
			},
			[]string{"table"},
		),
		BatchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricBatchFailures,
				Help:      "Bulk-copy batches rolled back.",
			},
			[]string{"table"},
		),
		DivergentKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      MetricDivergentKeys,
				Help:      "Distinct keys without a dimension match, per divergence set.",
			},
			[]string{"set"},
		),
		PartitionsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricPartitionsWritten,
				Help:      "Year/month partitions exported.",
			},
		),
		DocumentsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricDocumentsWritten,
				Help:      "Customer documents inserted into the document store.",
			},
		),
		StageSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      MetricStageSeconds,
				Help:      "Wall time of each pipeline stage.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
			},
			[]string{"stage"},
		),
	}

	m.Registry.MustRegister(
		m.RowsIngested,
		m.CoercionNulls,
		m.IdentifiersFixed,
		m.RowsCommitted,
		m.BatchesCommitted,
		m.BatchFailures,
		m.DivergentKeys,
		m.PartitionsWritten,
		m.DocumentsWritten,
		m.StageSeconds,
	)
	return m
}

func (m *Metrics) Ingested(dataset string, rows int) {
	if m == nil {
		return
	}
	m.RowsIngested.WithLabelValues(dataset).Add(float64(rows))
}

func (m *Metrics) CoercionFailures(dataset, column string, count int) {
	if m == nil {
		return
	}
	m.CoercionNulls.WithLabelValues(dataset, column).Add(float64(count))
}

func (m *Metrics) Corrected(n int) {
	if m == nil {
		return
	}
	m.IdentifiersFixed.Add(float64(n))
}

// BatchCommitted records one committed batch of rows.
func (m *Metrics) BatchCommitted(table string, rows int) {
	if m == nil {
		return
	}
	m.RowsCommitted.WithLabelValues(table).Add(float64(rows))
	m.BatchesCommitted.WithLabelValues(table).Inc()
}

func (m *Metrics) BatchFailed(table string) {
	if m == nil {
		return
	}
	m.BatchFailures.WithLabelValues(table).Inc()
}

func (m *Metrics) Divergences(set string, keys int) {
	if m == nil {
		return
	}
	m.DivergentKeys.WithLabelValues(set).Set(float64(keys))
}

func (m *Metrics) PartitionWritten() {
	if m == nil {
		return
	}
	m.PartitionsWritten.Inc()
}

func (m *Metrics) Replicated(docs int) {
	if m == nil {
		return
	}
	m.DocumentsWritten.Add(float64(docs))
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes all collected metrics in the text exposition format.
// The file is written atomically, as expected by the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
