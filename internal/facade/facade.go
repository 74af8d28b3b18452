// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package facade is the default implementation of the core services the
// orchestrator builds once per epoch.
package facade

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/plug/internal/dom"
	"github.com/holomush/plug/internal/storage"
	"github.com/holomush/plug/pkg/sdk"
)

// Error codes.
const (
	CodeInitFailed            = "FACADE_INIT_FAILED"
	CodeCloseFailed           = "FACADE_CLOSE_FAILED"
	CodeEvaluationUnavailable = "EVALUATION_UNAVAILABLE"
	CodeCIDUnavailable        = "CID_UNAVAILABLE"
	CodeInvalidUserID         = "INVALID_USER_ID"
)

// Option configures a Facade.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	backend   storage.Backend
	document  sdk.Document
	sink      Sink
	evaluator sdk.Evaluator
	now       func() time.Time
}

// WithLogger sets the root logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBackend shares a storage backend owned by the caller. It is not
// closed with the facade, so stored values outlive the epoch.
func WithBackend(backend storage.Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// WithDocument sets the hosting document. By default an empty document with
// the configured origin is created.
func WithDocument(document sdk.Document) Option {
	return func(o *options) {
		o.document = document
	}
}

// WithSink sets where tracked events are delivered. The default logs them.
func WithSink(sink Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithEvaluator sets the expression evaluator. Without one every
// evaluation fails with EVALUATION_UNAVAILABLE.
func WithEvaluator(evaluator sdk.Evaluator) Option {
	return func(o *options) {
		o.evaluator = evaluator
	}
}

// Facade bundles the core services of one epoch.
type Facade struct {
	appID   string
	logger  *slog.Logger
	now     func() time.Time
	backend storage.Backend
	owned   bool

	tracker   *tracker
	evaluator sdk.Evaluator
	events    *eventManager
	tokens    *tokenStore
	user      user
	session   session
	tab       tab
	cids      *cidAssigner
}

// New builds the services described by cfg.
func New(ctx context.Context, cfg sdk.Configuration, opts ...Option) (*Facade, error) {
	o := options{
		logger:    slog.Default(),
		evaluator: unavailableEvaluator{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.WithDefaults()

	var initial *sdk.Token
	if cfg.Token != "" {
		token, err := sdk.ParseToken(cfg.Token)
		if err != nil {
			return nil, oops.Code(CodeInitFailed).With("operation", "parse token").Wrap(err)
		}
		initial = token
	}

	backend, owned := o.backend, false
	if backend == nil {
		opened, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, oops.Code(CodeInitFailed).With("operation", "open storage").With("driver", cfg.Storage.Driver).Wrap(err)
		}
		backend, owned = opened, true
	}

	tabID := cfg.Tab.ID
	if tabID == "" {
		tabID = newID()
	}

	document := o.document
	if document == nil {
		origin := cfg.Document.Origin
		if origin == "" {
			origin = dom.OriginOf(cfg.Tab.URL)
		}
		document = dom.New(origin, dom.WithLogger(o.logger))
	}

	sink := o.sink
	if sink == nil {
		sink = LogSink(o.logger.With("logger", "Tracker"))
	}

	f := &Facade{
		appID:     cfg.AppID,
		logger:    o.logger,
		now:       o.now,
		backend:   backend,
		owned:     owned,
		evaluator: o.evaluator,
		events:    newEventManager(),
		session:   session{id: newID(), startedAt: o.now()},
		tab: tab{
			id:       tabID,
			url:      cfg.Tab.URL,
			referrer: cfg.Tab.Referrer,
			document: document,
		},
	}
	f.tokens = &tokenStore{events: f.events, token: initial}
	f.user = user{tokens: f.tokens}
	f.cids = &cidAssigner{storage: f.BrowserStorage()}
	f.tracker = newTracker(tabID, cfg.Tracker, sink, f.Logger("Tracker"))

	return f, nil
}

// Tracker returns the event tracker.
func (f *Facade) Tracker() sdk.Tracker { return f.tracker }

// Evaluator returns the expression evaluator.
func (f *Facade) Evaluator() sdk.Evaluator { return f.evaluator }

// User returns the visitor behind the current token.
func (f *Facade) User() sdk.User { return f.user }

// Session returns the current session.
func (f *Facade) Session() sdk.Session { return f.session }

// Tab returns the current tab.
func (f *Facade) Tab() sdk.Tab { return f.tab }

// TokenStore returns the token store.
func (f *Facade) TokenStore() sdk.TokenStore { return f.tokens }

// CIDAssigner returns the CID assigner.
func (f *Facade) CIDAssigner() sdk.CIDAssigner { return f.cids }

// EventManager returns the SDK event manager.
func (f *Facade) EventManager() sdk.EventManager { return f.events }

// Logger returns a logger whose "logger" attribute is the dot-joined
// namespace.
func (f *Facade) Logger(namespace ...string) *slog.Logger {
	if len(namespace) == 0 {
		return f.logger
	}
	return f.logger.With("logger", strings.Join(namespace, "."))
}

// TabStorage returns storage private to the current tab.
func (f *Facade) TabStorage(namespace ...string) sdk.Storage {
	return storage.NewNamespaced(f.backend, storage.TabScope(f.tab.id), namespace...)
}

// BrowserStorage returns storage shared by every tab of the browser.
func (f *Facade) BrowserStorage(namespace ...string) sdk.Storage {
	return storage.NewNamespaced(f.backend, storage.ScopeBrowser, namespace...)
}

// Identify switches to a token issued for userID.
func (f *Facade) Identify(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return oops.Code(CodeInvalidUserID).Errorf("user ID must not be empty")
	}
	token, err := sdk.NewUnsignedToken(f.appID, userID, f.now())
	if err != nil {
		return oops.With("operation", "identify").Wrap(err)
	}
	f.tokens.SetToken(token)
	return nil
}

// Anonymize drops the current token.
func (f *Facade) Anonymize() error {
	f.tokens.SetToken(nil)
	return nil
}

// SetToken replaces the current token.
func (f *Facade) SetToken(token *sdk.Token) {
	f.tokens.SetToken(token)
}

// UnsetToken drops the current token.
func (f *Facade) UnsetToken() {
	f.tokens.SetToken(nil)
}

// Close delivers buffered events and releases storage owned by the facade.
// Event listeners are dropped.
func (f *Facade) Close(ctx context.Context) error {
	var errs []error
	if err := f.tracker.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	f.events.close()
	if f.owned {
		f.backend.Close()
	}

	if err := errors.Join(errs...); err != nil {
		return oops.Code(CodeCloseFailed).Wrap(err)
	}
	return nil
}
