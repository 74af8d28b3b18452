// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package playground

import "github.com/prometheus/client_golang/prometheus"

// Handshakes counts handshake state transitions.
// Use RegisterMetrics to register this with a Prometheus registry.
var Handshakes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plug_playground_handshakes_total",
		Help: "Total number of playground handshake transitions by state",
	},
	[]string{"state"},
)

// RegisterMetrics registers playground metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Handshakes)
}
