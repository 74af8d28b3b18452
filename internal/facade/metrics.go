// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package facade

import "github.com/prometheus/client_golang/prometheus"

// Delivery outcomes for tracked events.
const (
	StatusDelivered = "delivered"
	StatusDropped   = "dropped"
)

// TrackedEvents counts tracked events by delivery outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var TrackedEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plug_tracked_events_total",
		Help: "Total number of tracked events by delivery status",
	},
	[]string{"status"},
)

// DeliveryAttempts counts sink delivery attempts, retries included.
var DeliveryAttempts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "plug_tracker_delivery_attempts_total",
		Help: "Total number of batch delivery attempts",
	},
)

// RegisterMetrics registers facade metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(TrackedEvents)
	reg.MustRegister(DeliveryAttempts)
}

func recordTrackedEvents(status string, n int) {
	TrackedEvents.WithLabelValues(status).Add(float64(n))
}
