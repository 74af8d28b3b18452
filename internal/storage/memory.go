// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package storage

import (
	"context"
	"sync"
)

// Memory is an in-process backend. Values live as long as the Memory does,
// so sharing one Memory between epochs keeps storage across reloads.
type Memory struct {
	mu     sync.RWMutex
	scopes map[string]map[string]string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{scopes: make(map[string]map[string]string)}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.scopes[scope][key]
	return value, ok, nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.scopes[scope]
	if !ok {
		entries = make(map[string]string)
		m.scopes[scope] = entries
	}
	entries[key] = value
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.scopes[scope], key)
	return nil
}

// Close implements Backend. Data survives Close.
func (m *Memory) Close() {}
