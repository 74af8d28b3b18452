// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plug

import (
	"slices"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/plug/pkg/plugin"
)

// Registry maps plugin names to factories. Entries can be added but never
// replaced or removed.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]plugin.Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]plugin.Factory),
	}
}

// Register adds factory under name. The factory's option schema is compiled
// here so broken factories are rejected before any plug.
func (r *Registry) Register(name string, factory plugin.Factory) error {
	if strings.TrimSpace(name) == "" {
		return oops.Code(CodeInvalidFactory).Errorf("plugin name must not be empty")
	}
	if factory == nil {
		return oops.Code(CodeInvalidFactory).With("plugin", name).Errorf("factory must not be nil")
	}
	if _, err := factory.Schema(); err != nil {
		return oops.Code(CodeInvalidFactory).With("plugin", name).Wrapf(err, "options schema")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return ErrDuplicatePlugin(name)
	}
	r.factories[name] = factory
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (plugin.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	return factory, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
