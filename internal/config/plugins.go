// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/plug/pkg/plug"
)

const pluginsKey = "plugins"

// pluginEntry is the sequence form of a plugins item.
type pluginEntry struct {
	Name    string `yaml:"name"`
	Options any    `yaml:"options"`
}

// parsePlugins extracts the plugins section of a YAML document in
// declaration order.
func parsePlugins(raw []byte) ([]plug.PluginConfiguration, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "parse config file")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, oops.Code(CodeInvalid).Errorf("config file must contain a mapping")
	}

	section := lookup(root, pluginsKey)
	if section == nil {
		return nil, nil
	}

	switch section.Kind {
	case yaml.MappingNode:
		return parsePluginMapping(section)
	case yaml.SequenceNode:
		return parsePluginSequence(section)
	case yaml.ScalarNode:
		if section.Tag == "!!null" {
			return nil, nil
		}
	}
	return nil, oops.Code(CodeInvalid).
		With("key", pluginsKey).
		With("line", section.Line).
		Errorf("plugins must be a mapping or a sequence")
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func parsePluginMapping(section *yaml.Node) ([]plug.PluginConfiguration, error) {
	plugins := make([]plug.PluginConfiguration, 0, len(section.Content)/2)
	for i := 0; i+1 < len(section.Content); i += 2 {
		name := section.Content[i]
		options, err := decodeOptions(section.Content[i+1])
		if err != nil {
			return nil, oops.With("plugin", name.Value).Wrap(err)
		}
		plugins = append(plugins, plug.PluginConfiguration{Name: name.Value, Options: options})
	}
	return plugins, nil
}

func parsePluginSequence(section *yaml.Node) ([]plug.PluginConfiguration, error) {
	plugins := make([]plug.PluginConfiguration, 0, len(section.Content))
	seen := make(map[string]bool, len(section.Content))
	for _, item := range section.Content {
		var pc plug.PluginConfiguration
		switch item.Kind {
		case yaml.ScalarNode:
			pc.Name = item.Value
		case yaml.MappingNode:
			var entry pluginEntry
			if err := item.Decode(&entry); err != nil {
				return nil, oops.Code(CodeInvalid).With("line", item.Line).Wrapf(err, "decode plugin entry")
			}
			pc = plug.PluginConfiguration{Name: entry.Name, Options: entry.Options}
		default:
			return nil, oops.Code(CodeInvalid).
				With("line", item.Line).
				Errorf("plugin entry must be a name or a mapping")
		}

		if pc.Name != "" && seen[pc.Name] {
			return nil, oops.Code(CodeInvalid).
				With("plugin", pc.Name).
				With("line", item.Line).
				Errorf("plugin %q is configured twice", pc.Name)
		}
		seen[pc.Name] = true
		plugins = append(plugins, pc)
	}
	return plugins, nil
}

func decodeOptions(node *yaml.Node) (any, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	var options any
	if err := node.Decode(&options); err != nil {
		return nil, oops.Code(CodeInvalid).With("line", node.Line).Wrapf(err, "decode plugin options")
	}
	return options, nil
}
