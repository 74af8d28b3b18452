// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

import "time"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Configuration configures the core services. Debug lowers the host's log
// level to debug.
type Configuration struct {
	AppID    string                `koanf:"app_id"`
	Token    string                `koanf:"token"`
	Debug    bool                  `koanf:"debug"`
	Tab      TabConfiguration      `koanf:"tab"`
	Document DocumentConfiguration `koanf:"document"`
	Storage  StorageConfiguration  `koanf:"storage"`
	Tracker  TrackerConfiguration  `koanf:"tracker"`
}

// TabConfiguration describes the browsing context the library runs in.
type TabConfiguration struct {
	// ID is generated when empty.
	ID       string `koanf:"id"`
	URL      string `koanf:"url"`
	Referrer string `koanf:"referrer"`
}

// DocumentConfiguration describes the hosting document.
type DocumentConfiguration struct {
	// Origin defaults to the origin of the tab URL.
	Origin string `koanf:"origin"`
}

// StorageConfiguration selects the tab and browser storage backend.
type StorageConfiguration struct {
	Driver      string `koanf:"driver"`
	DSN         string `koanf:"dsn"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// TrackerConfiguration tunes event delivery.
type TrackerConfiguration struct {
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	MaxRetries    uint64        `koanf:"max_retries"`
	RetryBase     time.Duration `koanf:"retry_base"`
}

// Default tracker settings.
const (
	DefaultBatchSize     = 20
	DefaultFlushInterval = time.Second
	DefaultMaxRetries    = 3
	DefaultRetryBase     = 100 * time.Millisecond
)

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Configuration) WithDefaults() Configuration {
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	if c.Tracker.BatchSize <= 0 {
		c.Tracker.BatchSize = DefaultBatchSize
	}
	if c.Tracker.FlushInterval <= 0 {
		c.Tracker.FlushInterval = DefaultFlushInterval
	}
	if c.Tracker.MaxRetries == 0 {
		c.Tracker.MaxRetries = DefaultMaxRetries
	}
	if c.Tracker.RetryBase <= 0 {
		c.Tracker.RetryBase = DefaultRetryBase
	}
	return c
}
