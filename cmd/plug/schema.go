// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plug/pkg/plug"
)

// CodeUnknownPlugin is returned when a command names an unregistered plugin.
const CodeUnknownPlugin = "UNKNOWN_PLUGIN"

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [NAME]",
		Short: "Print the JSON Schema of plugin options",
		Long: `Print the JSON Schema the options of a registered plugin must match.
Without NAME, print an object mapping every plugin name to its schema.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := builtinRegistry()
			if err != nil {
				return err
			}
			return runSchema(cmd, registry, args)
		},
	}
}

func runSchema(cmd *cobra.Command, registry *plug.Registry, args []string) error {
	if len(args) == 1 {
		doc, err := pluginSchema(registry, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(doc))
		return nil
	}

	all := make(map[string]json.RawMessage)
	for _, name := range registry.Names() {
		doc, err := pluginSchema(registry, name)
		if err != nil {
			return err
		}
		all[name] = doc
	}

	out, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return oops.With("operation", "encode schemas").Wrap(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func pluginSchema(registry *plug.Registry, name string) ([]byte, error) {
	factory, ok := registry.Lookup(name)
	if !ok {
		return nil, oops.Code(CodeUnknownPlugin).With("plugin", name).Errorf("plugin %q is not registered", name)
	}
	doc, err := factory.Schema()
	if err != nil {
		return nil, oops.With("plugin", name).Wrap(err)
	}
	return doc, nil
}

// NewPluginsCmd creates the plugins subcommand.
func NewPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List registered plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := builtinRegistry()
			if err != nil {
				return err
			}
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
