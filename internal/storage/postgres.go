// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// Error codes for storage failures.
const (
	CodeConnectFailed = "STORAGE_CONNECT_FAILED"
	CodeReadFailed    = "STORAGE_READ_FAILED"
	CodeWriteFailed   = "STORAGE_WRITE_FAILED"
	CodeNotMigrated   = "STORAGE_NOT_MIGRATED"
)

// poolIface is the subset of pgxpool.Pool the backend uses. pgxmock pools
// satisfy it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres stores values in the plug_storage table.
type Postgres struct {
	pool poolIface
}

// NewPostgres connects to the database at dsn.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code(CodeConnectFailed).With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code(CodeConnectFailed).With("operation", "ping").Wrap(err)
	}
	return &Postgres{pool: pool}, nil
}

func newPostgresWithPool(pool poolIface) *Postgres {
	return &Postgres{pool: pool}
}

// Get implements Backend.
func (p *Postgres) Get(ctx context.Context, scope, key string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM plug_storage WHERE scope = $1 AND key = $2`,
		scope, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, queryError(err, CodeReadFailed, scope, key)
	}
	return value, true, nil
}

// Set implements Backend.
func (p *Postgres) Set(ctx context.Context, scope, key, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO plug_storage (scope, key, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (scope, key) DO UPDATE SET value = $3, updated_at = now()`,
		scope, key, value)
	if err != nil {
		return queryError(err, CodeWriteFailed, scope, key)
	}
	return nil
}

// Delete implements Backend.
func (p *Postgres) Delete(ctx context.Context, scope, key string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM plug_storage WHERE scope = $1 AND key = $2`,
		scope, key)
	if err != nil {
		return queryError(err, CodeWriteFailed, scope, key)
	}
	return nil
}

// queryError wraps a failed query with code, or with CodeNotMigrated when
// the schema has not been applied.
func queryError(err error, code, scope, key string) error {
	builder := oops.With("scope", scope).With("key", key)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return builder.Code(CodeNotMigrated).
			Hint("run 'plug migrate' or set storage.auto_migrate").
			Wrap(err)
	}
	return builder.Code(code).Wrap(err)
}

// Close implements Backend.
func (p *Postgres) Close() {
	p.pool.Close()
}
