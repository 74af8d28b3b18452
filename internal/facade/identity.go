// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package facade

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/plug/pkg/sdk"
)

// cidKey is the browser storage key holding the assigned CID.
const cidKey = "cid"

// tokenStore holds the current token and emits tokenChanged on every
// effective change.
type tokenStore struct {
	events sdk.EventDispatcher

	mu    sync.RWMutex
	token *sdk.Token
}

var _ sdk.TokenStore = (*tokenStore)(nil)

func (s *tokenStore) Token() *sdk.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *tokenStore) SetToken(token *sdk.Token) {
	s.mu.Lock()
	old := s.token
	if old.Equal(token) {
		s.mu.Unlock()
		return
	}
	s.token = token
	s.mu.Unlock()

	s.events.Dispatch(sdk.TokenChanged{OldToken: old, NewToken: token})
}

// user reads the visitor identity from the current token.
type user struct {
	tokens sdk.TokenProvider
}

var _ sdk.User = user{}

func (u user) ID() (string, bool) {
	token := u.tokens.Token()
	if token.IsAnonymous() {
		return "", false
	}
	return token.Subject(), true
}

func (u user) IsAnonymous() bool {
	return u.tokens.Token().IsAnonymous()
}

type session struct {
	id        string
	startedAt time.Time
}

func (s session) ID() string           { return s.id }
func (s session) StartedAt() time.Time { return s.startedAt }

type tab struct {
	id       string
	url      string
	referrer string
	document sdk.Document
}

func (t tab) ID() string             { return t.id }
func (t tab) URL() string            { return t.url }
func (t tab) Referrer() string       { return t.referrer }
func (t tab) Document() sdk.Document { return t.document }

// cidAssigner hands out a client identifier that is stable for the
// browser: the first assignment is persisted and reused afterwards.
type cidAssigner struct {
	storage sdk.Storage

	mu sync.Mutex
}

var _ sdk.CIDAssigner = (*cidAssigner)(nil)

func (a *cidAssigner) AssignCID(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cid, ok, err := a.storage.Get(ctx, cidKey)
	if err != nil {
		return "", oops.Code(CodeCIDUnavailable).With("operation", "read cid").Wrap(err)
	}
	if ok && cid != "" {
		return cid, nil
	}

	cid = newID()
	if err := a.storage.Set(ctx, cidKey, cid); err != nil {
		return "", oops.Code(CodeCIDUnavailable).With("operation", "store cid").Wrap(err)
	}
	return cid, nil
}

// unavailableEvaluator rejects every evaluation.
type unavailableEvaluator struct{}

func (unavailableEvaluator) Evaluate(_ context.Context, expression string, _ sdk.EvaluationOptions) (any, error) {
	return nil, oops.Code(CodeEvaluationUnavailable).
		With("expression", expression).
		Errorf("no evaluator configured")
}
