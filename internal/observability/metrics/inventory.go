// Package metrics provides inventory metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics contains Prometheus metrics for label lifecycle and
// measurement operations
type InventoryMetrics struct {
	registry *prometheus.Registry

	countsRecordedTotal prometheus.Counter
	countsRejectedTotal *prometheus.CounterVec

	labelsGeneratedTotal prometheus.Counter
	labelsAssignedTotal  prometheus.Counter
	labelsRetiredTotal   prometheus.Counter
	labelScansTotal      prometheus.Counter

	anomaliesFlaggedTotal *prometheus.CounterVec

	percentFullHistogram prometheus.Histogram

	collectors []prometheus.Collector
}

// NewInventoryMetrics creates and registers new inventory metrics
func NewInventoryMetrics(registry *prometheus.Registry) (*InventoryMetrics, error) {
	m := &InventoryMetrics{registry: registry}
	m.initMetrics()
	for _, collector := range m.collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *InventoryMetrics) initMetrics() {
	m.countsRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bottletag_counts_recorded_total",
		Help: "Total number of validated bottle count measurements recorded",
	})
	m.countsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bottletag_counts_rejected_total",
		Help: "Total number of rejected count measurements by reason category",
	}, []string{"category"})

	m.labelsGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bottletag_labels_generated_total",
		Help: "Total number of labels generated in provisioning batches",
	})
	m.labelsAssignedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bottletag_labels_assigned_total",
		Help: "Total number of label assignment transitions",
	})
	m.labelsRetiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bottletag_labels_retired_total",
		Help: "Total number of labels retired",
	})
	m.labelScansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bottletag_label_scans_total",
		Help: "Total number of label scans",
	})

	m.anomaliesFlaggedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bottletag_anomalies_flagged_total",
		Help: "Total number of anomalies flagged at session close by flag kind",
	}, []string{"kind"})

	m.percentFullHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bottletag_percent_full",
		Help:    "Distribution of reported percent-full values across counts",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	m.collectors = []prometheus.Collector{
		m.countsRecordedTotal,
		m.countsRejectedTotal,
		m.labelsGeneratedTotal,
		m.labelsAssignedTotal,
		m.labelsRetiredTotal,
		m.labelScansTotal,
		m.anomaliesFlaggedTotal,
		m.percentFullHistogram,
	}
}

// RecordCount records a validated count measurement and its percent-full value.
func (m *InventoryMetrics) RecordCount(percentFull float64) {
	m.countsRecordedTotal.Inc()
	m.percentFullHistogram.Observe(percentFull)
}

// RecordCountRejected records a rejected count measurement by reason category.
func (m *InventoryMetrics) RecordCountRejected(category string) {
	m.countsRejectedTotal.WithLabelValues(category).Inc()
}

// RecordLabelsGenerated records labels created by a provisioning batch.
func (m *InventoryMetrics) RecordLabelsGenerated(count int) {
	m.labelsGeneratedTotal.Add(float64(count))
}

// RecordLabelAssigned records a label assignment transition.
func (m *InventoryMetrics) RecordLabelAssigned() {
	m.labelsAssignedTotal.Inc()
}

// RecordLabelRetired records a label retirement.
func (m *InventoryMetrics) RecordLabelRetired() {
	m.labelsRetiredTotal.Inc()
}

// RecordLabelScan records a label scan.
func (m *InventoryMetrics) RecordLabelScan() {
	m.labelScansTotal.Inc()
}

// RecordAnomaly records a flagged anomaly by kind.
func (m *InventoryMetrics) RecordAnomaly(kind string) {
	m.anomaliesFlaggedTotal.WithLabelValues(kind).Inc()
}
