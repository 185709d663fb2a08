package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_operations_total",
			Help: "Total number of social core operations",
		},
		[]string{"operation", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "social_operation_duration_seconds",
			Help:    "Duration of social core operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	pushDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Live push delivery attempts by transport and result",
		},
		[]string{"transport", "result"},
	)

	notificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Persisted notifications by type",
		},
		[]string{"type"},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Currently registered websocket connections",
		},
	)
)

// observe записывает результат операции; вызывается через defer с указателем на err
func observe(operation string, start time.Time, err *error) {
	status := "ok"
	if err != nil && *err != nil {
		switch {
		case errors.Is(*err, ErrNotFound):
			status = "not_found"
		case errors.Is(*err, ErrConflict):
			status = "conflict"
		case errors.Is(*err, ErrInvalidOperation):
			status = "invalid"
		default:
			status = "error"
		}
	}
	operationsTotal.WithLabelValues(operation, status).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
