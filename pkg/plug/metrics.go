// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plug

import "github.com/prometheus/client_golang/prometheus"

// Lifecycle phases.
const (
	PhaseInit    = "init"
	PhaseEnable  = "enable"
	PhaseDisable = "disable"
)

// Lifecycle outcomes.
const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusSkipped        = "skipped"
	StatusNotFound       = "not_found"
	StatusInvalidOptions = "invalid_options"
	StatusDuplicate      = "duplicate"
)

// PluginLifecycle counts plugin lifecycle outcomes.
// Use RegisterMetrics to register this with a Prometheus registry.
var PluginLifecycle = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plug_plugin_lifecycle_total",
		Help: "Total number of plugin lifecycle transitions by plugin, phase and status",
	},
	[]string{"plugin", "phase", "status"},
)

// Epochs counts started epochs.
var Epochs = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "plug_epochs_total",
		Help: "Total number of plug epochs started",
	},
)

// Active is 1 while an epoch is active.
var Active = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "plug_plugged",
		Help: "Whether the library is currently plugged in",
	},
)

// RegisterMetrics registers orchestrator metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(PluginLifecycle)
	reg.MustRegister(Epochs)
	reg.MustRegister(Active)
}

func recordLifecycle(name, phase, status string) {
	PluginLifecycle.WithLabelValues(name, phase, status).Inc()
}
