// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plug

import (
	"log/slog"
	"slices"

	"github.com/holomush/plug/pkg/plugin"
	"github.com/holomush/plug/pkg/sdk"
)

// pluginNamespace prefixes every plugin's logger and storage namespace.
const pluginNamespace = "Plugin"

// scope is the SDK view handed to one plugin.
type scope struct {
	facade    Facade
	namespace []string
}

func newScope(f Facade, name string) *scope {
	return &scope{facade: f, namespace: []string{pluginNamespace, name}}
}

var _ plugin.SDK = (*scope)(nil)

func (s *scope) Tracker() sdk.Tracker           { return s.facade.Tracker() }
func (s *scope) Evaluator() sdk.Evaluator       { return s.facade.Evaluator() }
func (s *scope) User() sdk.User                 { return s.facade.User() }
func (s *scope) Session() sdk.Session           { return s.facade.Session() }
func (s *scope) Tab() sdk.Tab                   { return s.facade.Tab() }
func (s *scope) TokenStore() sdk.TokenStore     { return s.facade.TokenStore() }
func (s *scope) CIDAssigner() sdk.CIDAssigner   { return s.facade.CIDAssigner() }
func (s *scope) EventManager() sdk.EventManager { return s.facade.EventManager() }

func (s *scope) Logger(namespace ...string) *slog.Logger {
	return s.facade.Logger(s.qualify(namespace)...)
}

func (s *scope) TabStorage(namespace ...string) sdk.Storage {
	return s.facade.TabStorage(s.qualify(namespace)...)
}

func (s *scope) BrowserStorage(namespace ...string) sdk.Storage {
	return s.facade.BrowserStorage(s.qualify(namespace)...)
}

func (s *scope) qualify(namespace []string) []string {
	return append(slices.Clone(s.namespace), namespace...)
}
