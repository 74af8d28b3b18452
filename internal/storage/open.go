// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package storage

import (
	"context"

	"github.com/samber/oops"

	"github.com/holomush/plug/pkg/sdk"
)

// CodeUnknownDriver is returned by Open for unsupported drivers.
const CodeUnknownDriver = "STORAGE_UNKNOWN_DRIVER"

// Open creates the backend selected by cfg. When AutoMigrate is set the
// PostgreSQL schema is brought up to date first.
func Open(ctx context.Context, cfg sdk.StorageConfiguration) (Backend, error) {
	switch cfg.Driver {
	case "", sdk.StorageMemory:
		return NewMemory(), nil
	case sdk.StoragePostgres:
		if cfg.AutoMigrate {
			if err := migrateUp(cfg.DSN); err != nil {
				return nil, err
			}
		}
		return NewPostgres(ctx, cfg.DSN)
	default:
		return nil, oops.Code(CodeUnknownDriver).With("driver", cfg.Driver).Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func migrateUp(dsn string) (err error) {
	m, err := NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return m.Up()
}
