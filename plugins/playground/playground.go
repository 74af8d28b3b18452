// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package playground connects a tab to the playground companion tool.
//
// When a page is opened from the playground, or was once in the same tab,
// the plugin embeds a hidden frame pointing at the playground and posts it
// the tab ID, a client ID and the current token. The playground answers
// "accepted" once it has taken over. The exchange repeats on every token
// change.
package playground

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/plug/pkg/errutil"
	"github.com/holomush/plug/pkg/plugin"
	"github.com/holomush/plug/pkg/sdk"
)

// Name is the registry name of the plugin.
const Name = "playground"

// Defaults for Options.
const (
	DefaultOrigin       = "https://play.holomush.dev"
	DefaultEndpointPath = "/connect.html"
)

// flagKey marks the tab as connected to the playground.
const flagKey = "playgroundEnabled"

const (
	flagEnabled = "true"
	acceptToken = "accepted"
)

// Options configures the plugin.
type Options struct {
	Origin   string `json:"origin,omitempty" jsonschema:"description=Origin of the playground,format=uri"`
	Endpoint string `json:"endpoint,omitempty" jsonschema:"description=URL of the page the handshake frame loads,format=uri"`
}

// withDefaults fills unset options and reduces Origin to
// scheme://host[:port], the form message origins are compared in.
func (o Options) withDefaults() Options {
	if o.Origin == "" {
		o.Origin = DefaultOrigin
	}
	o.Origin = originOf(o.Origin)
	if o.Endpoint == "" {
		o.Endpoint = o.Origin + DefaultEndpointPath
	}
	return o
}

// originOf returns the origin of raw, or raw unchanged when it has no
// scheme and host.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	return u.Scheme + "://" + u.Host
}

// Factory returns the plugin factory.
func Factory() plugin.Factory {
	return plugin.Define(func(args plugin.Args[Options]) plugin.Plugin {
		return New(args.Options, args.SDK)
	})
}

// Plugin runs the playground handshake.
type Plugin struct {
	origin   string
	endpoint string

	tab     sdk.Tab
	storage sdk.Storage
	tokens  sdk.TokenProvider
	cids    sdk.CIDAssigner
	events  sdk.EventSubscriber
	logger  *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	unsubscribe func()
	disabled    bool

	// inflight counts attempts still assigning a CID. Add is only called
	// under mu while disabled is false.
	inflight sync.WaitGroup
}

// New creates the plugin from services of the given SDK view.
func New(opts Options, services plugin.SDK) *Plugin {
	opts = opts.withDefaults()
	return &Plugin{
		origin:   opts.Origin,
		endpoint: opts.Endpoint,
		tab:      services.Tab(),
		storage:  services.TabStorage(),
		tokens:   services.TokenStore(),
		cids:     services.CIDAssigner(),
		events:   services.EventManager(),
		logger:   services.Logger(),
	}
}

// Enable arms the plugin when the tab came from the playground or was
// connected before, then runs the first handshake. Otherwise it does
// nothing.
func (p *Plugin) Enable(ctx context.Context) *plugin.Pending {
	if !p.armed(ctx) {
		return nil
	}

	p.mu.Lock()
	if p.disabled {
		p.mu.Unlock()
		return nil
	}
	p.ctx = ctx
	p.inflight.Add(1)
	p.mu.Unlock()

	return plugin.Go(func() error {
		defer p.inflight.Done()

		cid, err := p.cids.AssignCID(ctx)
		if err != nil {
			return oops.With("plugin", Name).With("operation", "assign cid").Wrap(err)
		}
		p.notify(cid, p.tokens.Token())
		p.subscribe()
		return nil
	})
}

// Disable stops reacting to token changes, including those that arrive
// while the first attempt is still assigning a CID. It settles once every
// attempt that was assigning a CID has embedded its frame; attempts waiting
// for the playground are left as they are.
func (p *Plugin) Disable(context.Context) *plugin.Pending {
	p.mu.Lock()
	p.disabled = true
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return plugin.Go(func() error {
		p.inflight.Wait()
		return nil
	})
}

// armed reports whether the handshake should run, recording the flag when
// the referrer is the playground. Storage failures are logged and count as
// not connected.
func (p *Plugin) armed(ctx context.Context) bool {
	if strings.HasPrefix(p.tab.Referrer(), p.origin) {
		if err := p.storage.Set(ctx, flagKey, flagEnabled); err != nil {
			errutil.LogError(p.logger, "failed to persist playground flag", err)
		}
		return true
	}

	value, ok, err := p.storage.Get(ctx, flagKey)
	if err != nil {
		errutil.LogError(p.logger, "failed to read playground flag", err)
		return false
	}
	return ok && value == flagEnabled
}

// subscribe listens for token changes unless the plugin was disabled in
// the meantime.
func (p *Plugin) subscribe() {
	unsubscribe := p.events.Subscribe(sdk.EventTokenChanged, p.handleTokenChange)

	p.mu.Lock()
	if p.disabled {
		p.mu.Unlock()
		unsubscribe()
		return
	}
	p.unsubscribe = unsubscribe
	p.mu.Unlock()
}

// handleTokenChange runs a new attempt with a fresh CID and the new token,
// regardless of attempts still in flight.
func (p *Plugin) handleTokenChange(event sdk.Event) {
	changed, ok := event.(sdk.TokenChanged)
	if !ok {
		return
	}

	p.mu.Lock()
	if p.disabled {
		p.mu.Unlock()
		return
	}
	ctx := p.ctx
	p.inflight.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.inflight.Done()

		cid, err := p.cids.AssignCID(ctx)
		if err != nil {
			errutil.LogError(p.logger, "failed to assign CID", err)
			return
		}
		p.notify(cid, changed.NewToken)
	}()
}

func (p *Plugin) notify(cid string, token *sdk.Token) {
	payload := Handshake{TabID: p.tab.ID(), CID: cid}
	if token != nil {
		raw := token.String()
		payload.Token = &raw
	}

	newSession(p.origin, p.tab.Document(), p.logger, payload).start(p.endpoint)
}
