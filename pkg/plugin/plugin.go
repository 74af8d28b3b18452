// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin defines the contract between the orchestrator and plugins.
//
// A plugin is built by a Factory from its options and a scoped view of the
// core services, then enabled. Work that outlives Enable is reported through
// the returned Pending; the orchestrator waits for every Pending before
// declaring the library plugged.
package plugin

import (
	"context"
	"log/slog"

	"github.com/holomush/plug/pkg/future"
	"github.com/holomush/plug/pkg/sdk"
)

// Pending is the completion of an asynchronous enable or disable.
// A nil *Pending means the operation already completed successfully.
type Pending = future.Future[struct{}]

// Plugin is a live plugin instance.
type Plugin interface {
	Enable(ctx context.Context) *Pending
}

// Disabler is implemented by plugins that need to release resources when
// the library is unplugged.
type Disabler interface {
	Disable(ctx context.Context) *Pending
}

// Go runs fn in the background and reports its outcome as a Pending.
func Go(fn func() error) *Pending {
	return future.Go(func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

// Fail returns a Pending already rejected with err.
func Fail(err error) *Pending {
	return future.Failed[struct{}](err)
}

// SDK is the view of the core services handed to a single plugin. Loggers
// and storages are namespaced under the plugin's name.
type SDK interface {
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
}

// Args is what a factory receives.
type Args[T any] struct {
	Options T
	SDK     SDK
}
