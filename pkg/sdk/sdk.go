// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sdk defines the core services that plugins and host applications
// consume: tracking, evaluation, identity, tokens, events and storage.
package sdk

import (
	"context"
	"time"

	"github.com/holomush/plug/pkg/future"
)

// TrackedEvent is an event accepted by the tracker.
type TrackedEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	TabID     string         `json:"tabId"`
}

// Tracker records events and delivers them in the background.
type Tracker interface {
	// Track buffers an event for delivery.
	Track(ctx context.Context, eventType string, payload map[string]any) (TrackedEvent, error)

	// Flushed settles once every event buffered before the call was delivered
	// or dropped.
	Flushed() *future.Future[struct{}]
}

// EvaluationOptions tunes a single evaluation.
type EvaluationOptions struct {
	Timeout    time.Duration
	Attributes map[string]any
}

// Evaluator evaluates expressions against the current visitor.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, opts EvaluationOptions) (any, error)
}

// User describes the visitor behind the current token.
type User interface {
	// ID returns the identified user ID, or false for anonymous visitors.
	ID() (string, bool)
	IsAnonymous() bool
}

// Session describes the current browsing session.
type Session interface {
	ID() string
	StartedAt() time.Time
}

// Tab is the current browsing context.
type Tab interface {
	ID() string
	URL() string
	Referrer() string
	Document() Document
}

// TokenProvider exposes the current token, nil when none is set.
type TokenProvider interface {
	Token() *Token
}

// TokenStore holds the current token.
type TokenStore interface {
	TokenProvider
	SetToken(token *Token)
}

// CIDAssigner assigns client identifiers.
type CIDAssigner interface {
	AssignCID(ctx context.Context) (string, error)
}

// Storage is a string key/value store scoped to a namespace.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
