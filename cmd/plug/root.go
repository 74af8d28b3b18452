// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/plug/pkg/plug"
	"github.com/holomush/plug/plugins/playground"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the plug CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plug",
		Short: "plug - plugin lifecycle orchestrator",
		Long: `plug builds the core services, enables the configured plugins in
declaration order and tears them down again on shutdown.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/plug/config.yaml)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewPluginsCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// builtinRegistry returns a registry holding the bundled plugins.
func builtinRegistry() (*plug.Registry, error) {
	registry := plug.NewRegistry()
	if err := registry.Register(playground.Name, playground.Factory()); err != nil {
		return nil, err
	}
	return registry, nil
}
