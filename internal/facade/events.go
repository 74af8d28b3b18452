// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package facade

import (
	"slices"
	"sync"

	"github.com/holomush/plug/pkg/sdk"
)

// eventManager dispatches SDK events to listeners synchronously, in
// subscription order.
type eventManager struct {
	mu     sync.RWMutex
	subs   map[sdk.EventName][]*subscription
	closed bool
}

type subscription struct {
	listener sdk.EventListener
}

func newEventManager() *eventManager {
	return &eventManager{
		subs: make(map[sdk.EventName][]*subscription),
	}
}

var _ sdk.EventManager = (*eventManager)(nil)

// Subscribe implements sdk.EventSubscriber.
func (m *eventManager) Subscribe(name sdk.EventName, l sdk.EventListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &subscription{listener: l}
	m.subs[name] = append(m.subs[name], sub)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs[name] = slices.DeleteFunc(m.subs[name], func(s *subscription) bool { return s == sub })
	}
}

// Dispatch implements sdk.EventDispatcher. Listeners added or removed while
// dispatching take effect from the next event.
func (m *eventManager) Dispatch(event sdk.Event) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return
	}
	subs := slices.Clone(m.subs[event.Name()])
	m.mu.RUnlock()

	for _, sub := range subs {
		sub.listener(event)
	}
}

// close drops every listener and ignores later dispatches.
func (m *eventManager) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	clear(m.subs)
}
