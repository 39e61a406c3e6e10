// Package observability provides metrics and monitoring capabilities for the application.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvirtala/bottletag-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Inventory *metrics.InventoryMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	inventoryMetrics, err := metrics.NewInventoryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Inventory: inventoryMetrics,
	}, nil
}

// Gatherer exposes the underlying registry for the metrics HTTP endpoint.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
