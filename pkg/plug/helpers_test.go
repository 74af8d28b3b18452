// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plug_test

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/plug/internal/facade"
	"github.com/holomush/plug/internal/storage"
	"github.com/holomush/plug/pkg/plug"
	"github.com/holomush/plug/pkg/plugin"
	"github.com/holomush/plug/pkg/sdk"
)

// logEntry is one captured log record.
type logEntry struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

// logRecorder captures records from every logger derived from it.
type logRecorder struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *logRecorder) logger() *slog.Logger {
	return slog.New(&recordingHandler{rec: r})
}

func (r *logRecorder) messages(level slog.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var msgs []string
	for _, e := range r.entries {
		if e.level == level {
			msgs = append(msgs, e.msg)
		}
	}
	return msgs
}

func (r *logRecorder) find(msg string) (logEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func (r *logRecorder) count(msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.msg == msg {
			n++
		}
	}
	return n
}

type recordingHandler struct {
	rec   *logRecorder
	attrs []slog.Attr
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := make(map[string]any)
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	h.rec.entries = append(h.rec.entries, logEntry{level: record.Level, msg: record.Message, attrs: attrs})
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{rec: h.rec, attrs: append(slices.Clone(h.attrs), attrs...)}
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

// stubOptions are the options every stub plugin accepts.
type stubOptions struct {
	Label string `json:"label,omitempty"`
}

// stubPlugin delegates Enable and Disable to functions.
type stubPlugin struct {
	enable  func(ctx context.Context) *plugin.Pending
	disable func(ctx context.Context) *plugin.Pending
}

func (s *stubPlugin) Enable(ctx context.Context) *plugin.Pending {
	if s.enable == nil {
		return nil
	}
	return s.enable(ctx)
}

func (s *stubPlugin) Disable(ctx context.Context) *plugin.Pending {
	if s.disable == nil {
		return nil
	}
	return s.disable(ctx)
}

// enableOnly has no Disable.
type enableOnly struct{}

func (enableOnly) Enable(context.Context) *plugin.Pending { return nil }

// counter counts factory invocations.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// stubFactory returns a factory that counts its calls and builds p.
func stubFactory(calls *counter, p plugin.Plugin) plugin.Factory {
	return plugin.Define(func(plugin.Args[stubOptions]) plugin.Plugin {
		calls.inc()
		return p
	})
}

// trackingFacade wraps the bundled facade and counts builds and closes.
type trackingFacade struct {
	*facade.Facade
	closeErr error
	closes   *counter
}

func (f *trackingFacade) Close(ctx context.Context) error {
	f.closes.inc()
	if err := f.Facade.Close(ctx); err != nil {
		return err
	}
	return f.closeErr
}

// harness builds a Plug over shared memory storage with a captured log.
type harness struct {
	plug     *plug.Plug
	logs     *logRecorder
	backend  *storage.Memory
	builds   *counter
	closes   *counter
	closeErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		logs:    &logRecorder{},
		backend: storage.NewMemory(),
		builds:  &counter{},
		closes:  &counter{},
	}
	h.plug = plug.New(
		plug.WithLogger(h.logs.logger()),
		plug.WithFacadeFactory(func(ctx context.Context, cfg sdk.Configuration) (plug.Facade, error) {
			h.builds.inc()
			f, err := facade.New(ctx, cfg,
				facade.WithLogger(h.logs.logger()),
				facade.WithBackend(h.backend))
			if err != nil {
				return nil, err
			}
			return &trackingFacade{Facade: f, closeErr: h.closeErr, closes: h.closes}, nil
		}),
	)
	t.Cleanup(func() { _ = h.plug.Unplug(context.Background()) })
	return h
}

func testSDKConfig() sdk.Configuration {
	return sdk.Configuration{
		AppID: "app-1",
		Tab:   sdk.TabConfiguration{ID: "tab-1", URL: "https://shop.example/"},
		Tracker: sdk.TrackerConfiguration{
			FlushInterval: time.Hour,
			RetryBase:     time.Millisecond,
		},
	}
}

func configWith(plugins ...plug.PluginConfiguration) plug.Configuration {
	return plug.Configuration{SDK: testSDKConfig(), Plugins: plugins}
}

func awaitPlugged(t *testing.T, p *plug.Plug) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := p.Plugged().Await(ctx)
	require.NoError(t, err)
	require.Same(t, p, got)
}
