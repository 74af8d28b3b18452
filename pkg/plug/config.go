// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plug

import "github.com/holomush/plug/pkg/sdk"

// Configuration is what Plug starts an epoch from.
type Configuration struct {
	// SDK configures the core services.
	SDK sdk.Configuration

	// Plugins are enabled in slice order.
	Plugins []PluginConfiguration
}

// PluginConfiguration selects a registered plugin and its raw options.
type PluginConfiguration struct {
	Name    string
	Options any
}
