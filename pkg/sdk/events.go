// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

// EventName identifies an SDK event.
type EventName string

// SDK events.
const (
	EventTokenChanged EventName = "tokenChanged"
)

// Event is a notification emitted by the core services.
type Event interface {
	Name() EventName
}

// TokenChanged is emitted whenever the current token is replaced or removed.
type TokenChanged struct {
	OldToken *Token
	NewToken *Token
}

// Name implements Event.
func (TokenChanged) Name() EventName { return EventTokenChanged }

// EventListener handles a single event. Listeners run on the dispatching
// goroutine and must not block.
type EventListener func(event Event)

// EventSubscriber registers event listeners.
type EventSubscriber interface {
	// Subscribe adds l for events named name. The returned function removes it.
	Subscribe(name EventName, l EventListener) (unsubscribe func())
}

// EventDispatcher delivers events to subscribers.
type EventDispatcher interface {
	Dispatch(event Event)
}

// EventManager subscribes and dispatches.
type EventManager interface {
	EventSubscriber
	EventDispatcher
}
