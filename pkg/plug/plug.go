// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plug orchestrates the plugin lifecycle.
//
// A Plug runs in epochs. Plug builds the core services, then builds and
// enables every configured plugin in declaration order; Plugged settles once
// every enable has settled, whether it succeeded or not. Unplug disables the
// plugins, closes the core services and leaves the Plug ready for the next
// epoch.
package plug

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/plug/pkg/errutil"
	"github.com/holomush/plug/pkg/future"
	"github.com/holomush/plug/pkg/plugin"
	"github.com/holomush/plug/pkg/sdk"
)

// Option configures a Plug.
type Option func(*Plug)

// WithRegistry sets the registry plugins are looked up in.
func WithRegistry(registry *Registry) Option {
	return func(p *Plug) {
		p.registry = registry
	}
}

// WithFacadeFactory sets how the core services of each epoch are built.
func WithFacadeFactory(factory FacadeFactory) Option {
	return func(p *Plug) {
		p.newFacade = factory
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Plug) {
		p.logger = logger
	}
}

// instance is a live plugin of the current epoch.
type instance struct {
	name   string
	plugin plugin.Plugin
}

// Plug is the plugin lifecycle orchestrator.
type Plug struct {
	registry  *Registry
	newFacade FacadeFactory
	logger    *slog.Logger

	// lifecycle serializes Plug and Unplug.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	facade      Facade
	instances   []instance
	gate        *future.Future[*Plug]
	resolveGate future.Resolver[*Plug]
	epoch       uint64
}

// New creates an unplugged orchestrator.
func New(opts ...Option) *Plug {
	p := &Plug{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = NewRegistry()
	}
	if p.newFacade == nil {
		p.newFacade = DefaultFacadeFactory()
	}
	p.gate, p.resolveGate = future.New[*Plug]()
	return p
}

// Registry returns the plugin registry.
func (p *Plug) Registry() *Registry {
	return p.registry
}

// Extend registers a plugin factory.
func (p *Plug) Extend(name string, factory plugin.Factory) error {
	return p.registry.Register(name, factory)
}

// Epoch returns the number of epochs started so far.
func (p *Plug) Epoch() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.epoch
}

// Plug starts an epoch. It is a no-op while an epoch is active. Plugin
// failures are logged and never returned; the only error is a facade that
// cannot be built.
//
// Plugins see a context that keeps ctx's values but is never canceled.
func (p *Plug) Plug(ctx context.Context, cfg Configuration) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.isPlugged() {
		p.logger.InfoContext(ctx, "already plugged in")
		return nil
	}

	f, err := p.newFacade(ctx, cfg.SDK)
	if err != nil {
		return oops.Code(CodeFacadeInitFailed).With("operation", "plug").Wrap(err)
	}

	p.mu.Lock()
	p.facade = f
	p.epoch++
	epoch := p.epoch
	resolve := p.resolveGate
	p.mu.Unlock()

	Epochs.Inc()
	Active.Set(1)

	pluginCtx := context.WithoutCancel(ctx)
	var pending []transition
	seen := make(map[string]bool, len(cfg.Plugins))
	for _, pc := range cfg.Plugins {
		if seen[pc.Name] {
			recordLifecycle(pc.Name, PhaseInit, StatusDuplicate)
			p.logger.Error("plugin configured more than once", "plugin", pc.Name)
			continue
		}
		seen[pc.Name] = true

		inst, ok := p.build(f, pc)
		if !ok {
			continue
		}

		p.mu.Lock()
		p.instances = append(p.instances, inst)
		p.mu.Unlock()

		pending = append(pending, transition{name: inst.name, pending: p.enable(pluginCtx, inst)})
	}

	go p.settle(epoch, pending, resolve)
	return nil
}

// transition is an in-flight enable or disable.
type transition struct {
	name    string
	pending *plugin.Pending
}

// build looks up and constructs one plugin. Failures are logged.
func (p *Plug) build(f Facade, pc PluginConfiguration) (instance, bool) {
	logger := p.logger.With("plugin", pc.Name)

	factory, ok := p.registry.Lookup(pc.Name)
	if !ok {
		recordLifecycle(pc.Name, PhaseInit, StatusNotFound)
		logger.Error("plugin not registered")
		return instance{}, false
	}

	logger.Debug("initializing plugin")
	built, err := construct(factory, pc, newScope(f, pc.Name))
	if err != nil {
		recordLifecycle(pc.Name, PhaseInit, StatusInvalidOptions)
		errutil.LogError(logger, "plugin initialization failed", err)
		return instance{}, false
	}
	if built == nil {
		recordLifecycle(pc.Name, PhaseInit, StatusSkipped)
		logger.Debug("plugin declined to run")
		return instance{}, false
	}

	recordLifecycle(pc.Name, PhaseInit, StatusSuccess)
	logger.Debug("plugin initialized")
	return instance{name: pc.Name, plugin: built}, true
}

func construct(factory plugin.Factory, pc PluginConfiguration, view plugin.SDK) (built plugin.Plugin, err error) {
	defer recoverPanic(pc.Name, PhaseInit, &err)
	return factory.New(pc.Options, view)
}

func (p *Plug) enable(ctx context.Context, inst instance) *plugin.Pending {
	return guard(inst.name, PhaseEnable, func() *plugin.Pending {
		return inst.plugin.Enable(ctx)
	})
}

func (p *Plug) disable(ctx context.Context, inst instance, d plugin.Disabler) *plugin.Pending {
	return guard(inst.name, PhaseDisable, func() *plugin.Pending {
		return d.Disable(ctx)
	})
}

// guard runs fn and turns a panic into a rejected Pending.
func guard(name, phase string, fn func() *plugin.Pending) *plugin.Pending {
	pending, err := guarded(name, phase, fn)
	if err != nil {
		return plugin.Fail(err)
	}
	return pending
}

func guarded(name, phase string, fn func() *plugin.Pending) (pending *plugin.Pending, err error) {
	defer recoverPanic(name, phase, &err)
	return fn(), nil
}

// settle waits for every enable and resolves the epoch's gate.
func (p *Plug) settle(epoch uint64, pending []transition, resolve future.Resolver[*Plug]) {
	awaitAll(p.logger, PhaseEnable, pending)
	p.logger.Debug("initialization complete", "epoch", epoch)
	resolve(p, nil)
}

// awaitAll waits for every pending operation, then logs each outcome.
func awaitAll(logger *slog.Logger, phase string, pending []transition) {
	completions := make([]*plugin.Pending, len(pending))
	for i, t := range pending {
		completions[i] = t.pending
		if completions[i] == nil {
			completions[i] = future.Ready(struct{}{})
		}
	}

	errs, _ := future.All(completions).Await(context.Background()) //nolint:errcheck // All never rejects
	for i, t := range pending {
		if errs[i] != nil {
			recordLifecycle(t.name, phase, StatusError)
			errutil.LogError(logger, "plugin "+phase+" failed", errs[i], "plugin", t.name)
			continue
		}
		recordLifecycle(t.name, phase, StatusSuccess)
		logger.Debug("plugin "+phase+"d", "plugin", t.name)
	}
}

// Plugged returns the readiness gate of the current epoch. Before the first
// Plug it settles once that Plug has enabled every plugin.
func (p *Plug) Plugged() *future.Future[*Plug] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gate
}

// Flushed settles once the tracker has delivered every event buffered so far.
func (p *Plug) Flushed() (*future.Future[*Plug], error) {
	f, err := p.active()
	if err != nil {
		return nil, err
	}
	return future.Then(f.Tracker().Flushed(), func(struct{}) (*Plug, error) {
		return p, nil
	}), nil
}

// Unplug ends the current epoch. It is a no-op when unplugged. Disable
// failures are logged; a facade close failure is returned after the
// orchestrator has been reset.
func (p *Plug) Unplug(ctx context.Context) (err error) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.RLock()
	f := p.facade
	instances := p.instances
	p.mu.RUnlock()

	if f == nil {
		return nil
	}

	defer func() {
		p.mu.Lock()
		p.facade = nil
		p.instances = nil
		p.gate, p.resolveGate = future.New[*Plug]()
		p.mu.Unlock()

		Active.Set(0)
		p.logger.InfoContext(ctx, "unplugged")
	}()

	pluginCtx := context.WithoutCancel(ctx)
	pending := make([]transition, 0, len(instances))
	for _, inst := range instances {
		d, ok := inst.plugin.(plugin.Disabler)
		if !ok {
			continue
		}
		pending = append(pending, transition{name: inst.name, pending: p.disable(pluginCtx, inst, d)})
	}
	awaitAll(p.logger, PhaseDisable, pending)

	if err := f.Close(ctx); err != nil {
		return oops.Code(CodeFacadeCloseFailed).With("operation", "unplug").Wrap(err)
	}
	return nil
}

func (p *Plug) isPlugged() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.facade != nil
}

func (p *Plug) active() (Facade, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.facade == nil {
		return nil, ErrNotPlugged()
	}
	return p.facade, nil
}

// Tracker returns the active tracker.
func (p *Plug) Tracker() (sdk.Tracker, error) {
	f, err := p.active()
	if err != nil {
		return nil, err
	}
	return f.Tracker(), nil
}

// User returns the active user.
func (p *Plug) User() (sdk.User, error) {
	f, err := p.active()
	if err != nil {
		return nil, err
	}
	return f.User(), nil
}

// Session returns the active session.
func (p *Plug) Session() (sdk.Session, error) {
	f, err := p.active()
	if err != nil {
		return nil, err
	}
	return f.Session(), nil
}

// IsAnonymous reports whether the current visitor is anonymous.
func (p *Plug) IsAnonymous() (bool, error) {
	f, err := p.active()
	if err != nil {
		return false, err
	}
	return f.User().IsAnonymous(), nil
}

// UserID returns the identified user's ID, "" for anonymous visitors.
func (p *Plug) UserID() (string, error) {
	f, err := p.active()
	if err != nil {
		return "", err
	}
	id, _ := f.User().ID()
	return id, nil
}

// Identify switches to the user with the given ID.
func (p *Plug) Identify(userID string) error {
	f, err := p.active()
	if err != nil {
		return err
	}
	return f.Identify(userID)
}

// Anonymize switches to an anonymous visitor.
func (p *Plug) Anonymize() error {
	f, err := p.active()
	if err != nil {
		return err
	}
	return f.Anonymize()
}

// SetToken replaces the current token.
func (p *Plug) SetToken(token *sdk.Token) error {
	f, err := p.active()
	if err != nil {
		return err
	}
	f.SetToken(token)
	return nil
}

// UnsetToken drops the current token.
func (p *Plug) UnsetToken() error {
	f, err := p.active()
	if err != nil {
		return err
	}
	f.UnsetToken()
	return nil
}

// Track records an event.
func (p *Plug) Track(ctx context.Context, eventType string, payload map[string]any) (sdk.TrackedEvent, error) {
	f, err := p.active()
	if err != nil {
		return sdk.TrackedEvent{}, err
	}
	return f.Tracker().Track(ctx, eventType, payload)
}

// Evaluate evaluates expression for the current visitor.
func (p *Plug) Evaluate(ctx context.Context, expression string, opts sdk.EvaluationOptions) (any, error) {
	f, err := p.active()
	if err != nil {
		return nil, err
	}
	return f.Evaluator().Evaluate(ctx, expression, opts)
}
