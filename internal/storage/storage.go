// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package storage provides the key/value backends behind tab and browser
// storage.
package storage

import (
	"context"
	"strings"

	"github.com/holomush/plug/pkg/sdk"
)

// Scopes partition a backend between storage kinds.
const (
	ScopeBrowser = "browser"
	scopeTab     = "tab"
)

// TabScope returns the backend scope of the tab with the given ID.
func TabScope(tabID string) string {
	return scopeTab + ":" + tabID
}

// Backend persists string values by scope and key.
type Backend interface {
	Get(ctx context.Context, scope, key string) (value string, ok bool, err error)
	Set(ctx context.Context, scope, key, value string) error
	Delete(ctx context.Context, scope, key string) error
	Close()
}

// Namespaced is an sdk.Storage over one backend scope whose keys are
// prefixed by a namespace.
type Namespaced struct {
	backend Backend
	scope   string
	prefix  string
}

// NewNamespaced returns storage for scope with keys prefixed by the
// dot-joined namespace.
func NewNamespaced(backend Backend, scope string, namespace ...string) *Namespaced {
	prefix := ""
	if len(namespace) > 0 {
		prefix = strings.Join(namespace, ".") + "."
	}
	return &Namespaced{backend: backend, scope: scope, prefix: prefix}
}

var _ sdk.Storage = (*Namespaced)(nil)

// Get implements sdk.Storage.
func (s *Namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return s.backend.Get(ctx, s.scope, s.prefix+key)
}

// Set implements sdk.Storage.
func (s *Namespaced) Set(ctx context.Context, key, value string) error {
	return s.backend.Set(ctx, s.scope, s.prefix+key, value)
}

// Remove implements sdk.Storage.
func (s *Namespaced) Remove(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.scope, s.prefix+key)
}
