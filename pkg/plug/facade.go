// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plug

import (
	"context"
	"log/slog"

	"github.com/holomush/plug/internal/facade"
	"github.com/holomush/plug/pkg/sdk"
)

// Facade is the set of core services that lives for one epoch.
type Facade interface {
	Tracker() sdk.Tracker
	Evaluator() sdk.Evaluator
	User() sdk.User
	Session() sdk.Session
	Tab() sdk.Tab
	TokenStore() sdk.TokenStore
	CIDAssigner() sdk.CIDAssigner
	EventManager() sdk.EventManager

	Logger(namespace ...string) *slog.Logger
	TabStorage(namespace ...string) sdk.Storage
	BrowserStorage(namespace ...string) sdk.Storage

	Identify(userID string) error
	Anonymize() error
	SetToken(token *sdk.Token)
	UnsetToken()

	// Close flushes pending work and releases resources.
	Close(ctx context.Context) error
}

// FacadeFactory builds the facade of a new epoch.
type FacadeFactory func(ctx context.Context, cfg sdk.Configuration) (Facade, error)

// DefaultFacadeFactory builds the bundled facade with the given options.
func DefaultFacadeFactory(opts ...facade.Option) FacadeFactory {
	return func(ctx context.Context, cfg sdk.Configuration) (Facade, error) {
		f, err := facade.New(ctx, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}
