// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads plug configuration from a YAML file and command-line
// flags.
//
// Flags override file values. The plugins section keeps declaration order,
// which decides the order plugins are enabled and disabled in. It may be
// written as a mapping of name to options or as a sequence of
// {name, options} entries.
package config

import (
	"errors"
	"io/fs"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/plug/internal/xdg"
	"github.com/holomush/plug/pkg/plug"
	"github.com/holomush/plug/pkg/sdk"
)

// Error codes for configuration failures.
const (
	CodeInvalid  = "CONFIG_INVALID"
	CodeNotFound = "CONFIG_NOT_FOUND"
)

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"app-id":         "app_id",
	"token":          "token",
	"debug":          "debug",
	"tab-id":         "tab.id",
	"tab-url":        "tab.url",
	"tab-referrer":   "tab.referrer",
	"origin":         "document.origin",
	"storage-driver": "storage.driver",
	"dsn":            "storage.dsn",
	"auto-migrate":   "storage.auto_migrate",
}

// RegisterFlags adds the configuration override flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("app-id", "", "application id")
	flags.String("token", "", "user token (JWT)")
	flags.Bool("debug", false, "log at debug level regardless of --log-level")
	flags.String("tab-id", "", "tab id (default: generated)")
	flags.String("tab-url", "", "URL of the hosting tab")
	flags.String("tab-referrer", "", "referrer of the hosting tab")
	flags.String("origin", "", "origin of the hosting document (default: origin of tab-url)")
	flags.String("storage-driver", "", "storage driver (memory or postgres)")
	flags.String("dsn", "", "PostgreSQL connection string for the postgres storage driver")
	flags.Bool("auto-migrate", false, "apply storage migrations on startup")
}

// Load reads the configuration file at path and applies flag overrides from
// flags. An empty path selects the default location, which may be absent. A
// nil flags applies no overrides.
func Load(path string, flags *pflag.FlagSet) (plug.Configuration, error) {
	var cfg plug.Configuration

	required := path != ""
	if !required {
		def, err := xdg.ConfigFile()
		if err != nil {
			return cfg, oops.Code(CodeInvalid).Wrapf(err, "resolve default config file")
		}
		path = def
	}

	k := koanf.New(".")

	provider := file.Provider(path)
	raw, err := provider.ReadBytes()
	switch {
	case errors.Is(err, fs.ErrNotExist) && !required:
		raw = nil
	case errors.Is(err, fs.ErrNotExist):
		return cfg, oops.Code(CodeNotFound).With("path", path).Errorf("config file not found")
	case err != nil:
		return cfg, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "read config file")
	default:
		if err := k.Load(provider, yaml.Parser()); err != nil {
			return cfg, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "parse config file")
		}
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
			return cfg, oops.Code(CodeInvalid).Wrapf(err, "apply flags")
		}
	}

	if err := k.UnmarshalWithConf("", &cfg.SDK, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return cfg, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "decode config")
	}

	plugins, err := parsePlugins(raw)
	if err != nil {
		return cfg, oops.With("path", path).Wrap(err)
	}
	cfg.Plugins = plugins

	if err := Validate(cfg); err != nil {
		return cfg, oops.With("path", path).Wrap(err)
	}
	return cfg, nil
}

func flagKey(flags *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}
}

// Validate checks a loaded configuration.
func Validate(cfg plug.Configuration) error {
	switch cfg.SDK.Storage.Driver {
	case "", sdk.StorageMemory:
	case sdk.StoragePostgres:
		if cfg.SDK.Storage.DSN == "" {
			return oops.Code(CodeInvalid).With("key", "storage.dsn").Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return oops.Code(CodeInvalid).
			With("key", "storage.driver").
			Errorf("storage.driver must be %q or %q, got %q", sdk.StorageMemory, sdk.StoragePostgres, cfg.SDK.Storage.Driver)
	}

	if cfg.SDK.Tracker.BatchSize < 0 {
		return oops.Code(CodeInvalid).With("key", "tracker.batch_size").Errorf("tracker.batch_size must not be negative")
	}
	if cfg.SDK.Tracker.FlushInterval < 0 {
		return oops.Code(CodeInvalid).With("key", "tracker.flush_interval").Errorf("tracker.flush_interval must not be negative")
	}

	seen := make(map[string]struct{}, len(cfg.Plugins))
	for i, p := range cfg.Plugins {
		if p.Name == "" {
			return oops.Code(CodeInvalid).With("index", i).Errorf("plugin name is required")
		}
		if _, dup := seen[p.Name]; dup {
			return oops.Code(CodeInvalid).With("plugin", p.Name).Errorf("plugin %q is configured twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}
