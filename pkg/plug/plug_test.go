// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plug_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/plug/pkg/errutil"
	"github.com/holomush/plug/pkg/plug"
	"github.com/holomush/plug/pkg/plugin"
	"github.com/holomush/plug/pkg/sdk"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPlug_TwiceInitializesOnce(t *testing.T) {
	h := newHarness(t)
	calls := &counter{}
	require.NoError(t, h.plug.Extend("a", stubFactory(calls, &stubPlugin{})))

	cfg := configWith(plug.PluginConfiguration{Name: "a"})
	require.NoError(t, h.plug.Plug(context.Background(), cfg))
	require.NoError(t, h.plug.Plug(context.Background(), cfg))

	awaitPlugged(t, h.plug)
	assert.Equal(t, 1, h.builds.get(), "facade built once")
	assert.Equal(t, 1, calls.get(), "factory invoked once")
	assert.Equal(t, uint64(1), h.plug.Epoch())
	assert.Contains(t, h.logs.messages(slog.LevelInfo), "already plugged in")
}

func TestPlugged_WaitsForSlowestEnable(t *testing.T) {
	h := newHarness(t)

	releaseA := make(chan struct{})
	bDone := make(chan struct{})
	require.NoError(t, h.plug.Extend("a", stubFactory(&counter{}, &stubPlugin{
		enable: func(context.Context) *plugin.Pending {
			return plugin.Go(func() error {
				<-releaseA
				return nil
			})
		},
	})))
	require.NoError(t, h.plug.Extend("b", stubFactory(&counter{}, &stubPlugin{
		enable: func(context.Context) *plugin.Pending {
			return plugin.Go(func() error {
				close(bDone)
				return nil
			})
		},
	})))

	require.NoError(t, h.plug.Plug(context.Background(), configWith(
		plug.PluginConfiguration{Name: "a"},
		plug.PluginConfiguration{Name: "b"},
	)))

	<-bDone
	gate := h.plug.Plugged()
	assert.Never(t, gate.Settled, 50*time.Millisecond, 5*time.Millisecond,
		"gate must wait for a")

	close(releaseA)
	awaitPlugged(t, h.plug)
}

func TestPlugged_ResolvesWhenEnableFails(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.plug.Extend("broken", stubFactory(&counter{}, &stubPlugin{
		enable: func(context.Context) *plugin.Pending {
			return plugin.Fail(errors.New("enable exploded"))
		},
	})))
	require.NoError(t, h.plug.Extend("fine", stubFactory(&counter{}, &stubPlugin{})))

	require.NoError(t, h.plug.Plug(context.Background(), configWith(
		plug.PluginConfiguration{Name: "broken"},
		plug.PluginConfiguration{Name: "fine"},
	)))
	awaitPlugged(t, h.plug)

	entry, ok := h.logs.find("plugin enable failed")
	require.True(t, ok)
	assert.Equal(t, slog.LevelError, entry.level)
	assert.Equal(t, "broken", entry.attrs["plugin"])
	assert.Contains(t, h.logs.messages(slog.LevelDebug), "plugin enabled")
}

func TestPlugged_AwaitableBeforePlug(t *testing.T) {
	h := newHarness(t)
	gate := h.plug.Plugged()
	assert.False(t, gate.Settled())

	require.NoError(t, h.plug.Plug(context.Background(), configWith()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := gate.Await(ctx)
	require.NoError(t, err)
	assert.Same(t, h.plug, got)

	again, err := gate.Await(ctx)
	require.NoError(t, err)
	assert.Same(t, h.plug, again, "gate can be awaited repeatedly")
	assert.Contains(t, h.logs.messages(slog.LevelDebug), "initialization complete")
}

func TestPlug_UnknownPluginIsIsolated(t *testing.T) {
	h := newHarness(t)
	calls := &counter{}
	require.NoError(t, h.plug.Extend("known", stubFactory(calls, &stubPlugin{})))

	require.NoError(t, h.plug.Plug(context.Background(), configWith(
		plug.PluginConfiguration{Name: "missing"},
		plug.PluginConfiguration{Name: "known"},
	)))
	awaitPlugged(t, h.plug)

	assert.Equal(t, 1, calls.get())
	entry, ok := h.logs.find("plugin not registered")
	require.True(t, ok)
	assert.Equal(t, slog.LevelError, entry.level)
	assert.Equal(t, "missing", entry.attrs["plugin"])
}

func TestPlug_DuplicateNameBuildsOnce(t *testing.T) {
	h := newHarness(t)
	calls := &counter{}
	enables := &counter{}
	require.NoError(t, h.plug.Extend("a", stubFactory(calls, &stubPlugin{
		enable: func(context.Context) *plugin.Pending {
			enables.inc()
			return nil
		},
	})))

	require.NoError(t, h.plug.Plug(context.Background(), configWith(
		plug.PluginConfiguration{Name: "a", Options: map[string]any{"label": "first"}},
		plug.PluginConfiguration{Name: "a", Options: map[string]any{"label": "second"}},
	)))
	awaitPlugged(t, h.plug)

	assert.Equal(t, 1, calls.get())
	assert.Equal(t, 1, enables.get())
	entry, ok := h.logs.find("plugin configured more than once")
	require.True(t, ok)
	assert.Equal(t, slog.LevelError, entry.level)
	assert.Equal(t, "a", entry.attrs["plugin"])
}

func TestPlug_InvalidOptionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	calls := &counter{}
	require.NoError(t, h.plug.Extend("strict", stubFactory(calls, &stubPlugin{})))
	other := &counter{}
	require.NoError(t, h.plug.Extend("other", stubFactory(other, &stubPlugin{})))

	require.NoError(t, h.plug.Plug(context.Background(), configWith(
		plug.PluginConfiguration{Name: "strict", Options: map[string]any{"unknown": true}},
		plug.PluginConfiguration{Name: "other", Options: map[string]any{"label": "ok"}},
	)))
	awaitPlugged(t, h.plug)

	assert.Equal(t, 0, calls.get(), "build is not reached with invalid options")
	assert.Equal(t, 1, other.get())
	entry, ok := h.logs.find("plugin initialization failed")
	require.True(t, ok)
	assert.Equal(t, plugin.CodeInvalidOptions, entry.attrs["code"])
}

func TestPlug_PanicsAreIsolated(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.plug.Extend("panicky", stubFactory(&counter{}, &stubPlugin{
		enable: func(context.Context) *plugin.Pending { panic("boom") },
	})))
	require.NoError(t, h.plug.Extend("fine", stubFactory(&counter{}, &stubPlugin{})))

	require.NoError(t, h.plug.Plug(context.Background(), configWith(
		plug.PluginConfiguration{Name: "panicky"},
		plug.PluginConfiguration{Name: "fine"},
	)))
	awaitPlugged(t, h.plug)

	entry, ok := h.logs.find("plugin enable failed")
	require.True(t, ok)
	assert.Equal(t, plug.CodePluginPanic, entry.attrs["code"])
}

func TestPlug_NilPluginIsSkipped(t *testing.T) {
	h := newHarness(t)
	calls := &counter{}
	require.NoError(t, h.plug.Extend("declines", stubFactory(calls, nil)))

	require.NoError(t, h.plug.Plug(context.Background(), configWith(plug.PluginConfiguration{Name: "declines"})))
	awaitPlugged(t, h.plug)
	require.NoError(t, h.plug.Unplug(context.Background()))

	assert.Equal(t, 1, calls.get())
	assert.Contains(t, h.logs.messages(slog.LevelDebug), "plugin declined to run")
	assert.Zero(t, h.logs.count("plugin disabled"))
}

func TestPlug_FacadeInitFailure(t *testing.T) {
	p := plug.New(
		plug.WithLogger((&logRecorder{}).logger()),
		plug.WithFacadeFactory(func(context.Context, sdk.Configuration) (plug.Facade, error) {
			return nil, errors.New("no storage")
		}),
	)

	err := p.Plug(context.Background(), configWith())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, plug.CodeFacadeInitFailed)

	_, err = p.Tracker()
	errutil.AssertErrorCode(t, err, plug.CodeNotPlugged)
	assert.False(t, p.Plugged().Settled())
}

func TestUnplug_StartsFreshEpoch(t *testing.T) {
	h := newHarness(t)
	calls := &counter{}
	require.NoError(t, h.plug.Extend("a", stubFactory(calls, &stubPlugin{})))
	cfg := configWith(plug.PluginConfiguration{Name: "a"})

	require.NoError(t, h.plug.Plug(context.Background(), cfg))
	awaitPlugged(t, h.plug)
	first := h.plug.Plugged()

	require.NoError(t, h.plug.Unplug(context.Background()))
	second := h.plug.Plugged()
	assert.NotSame(t, first, second)
	assert.False(t, second.Settled(), "new epoch gate starts unresolved")
	assert.Contains(t, h.logs.messages(slog.LevelInfo), "unplugged")

	require.NoError(t, h.plug.Plug(context.Background(), cfg))
	awaitPlugged(t, h.plug)

	assert.Equal(t, 2, calls.get(), "factory invoked again")
	assert.Equal(t, 2, h.builds.get())
	assert.Equal(t, uint64(2), h.plug.Epoch())
}

func TestUnplug_NoopWhenUnplugged(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.plug.Unplug(context.Background()))
	assert.Zero(t, h.closes.get())
	assert.Zero(t, h.logs.count("unplugged"))
}

func TestUnplug_DisablesInOrderAndIsolatesFailures(t *testing.T) {
	h := newHarness(t)

	var order []string
	record := func(name string, err error) func(context.Context) *plugin.Pending {
		return func(context.Context) *plugin.Pending {
			order = append(order, name)
			if err != nil {
				return plugin.Fail(err)
			}
			return nil
		}
	}
	require.NoError(t, h.plug.Extend("a", stubFactory(&counter{}, &stubPlugin{disable: record("a", errors.New("stuck"))})))
	require.NoError(t, h.plug.Extend("b", stubFactory(&counter{}, enableOnly{})))
	require.NoError(t, h.plug.Extend("c", stubFactory(&counter{}, &stubPlugin{disable: record("c", nil)})))

	require.NoError(t, h.plug.Plug(context.Background(), configWith(
		plug.PluginConfiguration{Name: "a"},
		plug.PluginConfiguration{Name: "b"},
		plug.PluginConfiguration{Name: "c"},
	)))
	awaitPlugged(t, h.plug)

	require.NoError(t, h.plug.Unplug(context.Background()))
	assert.Equal(t, []string{"a", "c"}, order)
	assert.Equal(t, 1, h.closes.get(), "facade closed despite disable failure")

	entry, ok := h.logs.find("plugin disable failed")
	require.True(t, ok)
	assert.Equal(t, "a", entry.attrs["plugin"])
}

func TestUnplug_WaitsForPendingDisable(t *testing.T) {
	h := newHarness(t)

	release := make(chan struct{})
	require.NoError(t, h.plug.Extend("slow", stubFactory(&counter{}, &stubPlugin{
		disable: func(context.Context) *plugin.Pending {
			return plugin.Go(func() error {
				<-release
				return nil
			})
		},
	})))
	require.NoError(t, h.plug.Plug(context.Background(), configWith(plug.PluginConfiguration{Name: "slow"})))
	awaitPlugged(t, h.plug)

	done := make(chan error, 1)
	go func() { done <- h.plug.Unplug(context.Background()) }()

	assert.Never(t, func() bool { return h.closes.get() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.closes.get())
}

func TestUnplug_CloseFailureStillResets(t *testing.T) {
	h := newHarness(t)
	h.closeErr = errors.New("flush failed")
	require.NoError(t, h.plug.Plug(context.Background(), configWith()))
	awaitPlugged(t, h.plug)

	err := h.plug.Unplug(context.Background())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, plug.CodeFacadeCloseFailed)

	_, err = h.plug.User()
	errutil.AssertErrorCode(t, err, plug.CodeNotPlugged)
	assert.False(t, h.plug.Plugged().Settled())

	h.closeErr = nil
	require.NoError(t, h.plug.Plug(context.Background(), configWith()))
	awaitPlugged(t, h.plug)
}

func TestProxies_NotPlugged(t *testing.T) {
	p := plug.New(plug.WithLogger((&logRecorder{}).logger()))
	ctx := context.Background()

	calls := map[string]func() error{
		"Tracker":     func() error { _, err := p.Tracker(); return err },
		"User":        func() error { _, err := p.User(); return err },
		"Session":     func() error { _, err := p.Session(); return err },
		"IsAnonymous": func() error { _, err := p.IsAnonymous(); return err },
		"UserID":      func() error { _, err := p.UserID(); return err },
		"Identify":    func() error { return p.Identify("u") },
		"Anonymize":   p.Anonymize,
		"SetToken":    func() error { return p.SetToken(nil) },
		"UnsetToken":  p.UnsetToken,
		"Track":       func() error { _, err := p.Track(ctx, "pageview", nil); return err },
		"Evaluate":    func() error { _, err := p.Evaluate(ctx, "x", sdk.EvaluationOptions{}); return err },
		"Flushed":     func() error { _, err := p.Flushed(); return err },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, plug.CodeNotPlugged)
			assert.Equal(t, "not plugged in", err.Error())
		})
	}
}

func TestProxies_DelegateToFacade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.plug.Plug(ctx, configWith()))
	awaitPlugged(t, h.plug)

	anonymous, err := h.plug.IsAnonymous()
	require.NoError(t, err)
	assert.True(t, anonymous)

	require.NoError(t, h.plug.Identify("user-9"))
	id, err := h.plug.UserID()
	require.NoError(t, err)
	assert.Equal(t, "user-9", id)

	require.NoError(t, h.plug.Anonymize())
	id, err = h.plug.UserID()
	require.NoError(t, err)
	assert.Empty(t, id)

	token, err := sdk.NewUnsignedToken("app-1", "user-3", time.Now())
	require.NoError(t, err)
	require.NoError(t, h.plug.SetToken(token))
	user, err := h.plug.User()
	require.NoError(t, err)
	assert.False(t, user.IsAnonymous())
	require.NoError(t, h.plug.UnsetToken())
	assert.True(t, user.IsAnonymous())

	session, err := h.plug.Session()
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID())

	event, err := h.plug.Track(ctx, "pageview", map[string]any{"path": "/"})
	require.NoError(t, err)
	assert.Equal(t, "tab-1", event.TabID)

	flushed, err := h.plug.Flushed()
	require.NoError(t, err)
	got, err := flushed.Await(ctx)
	require.NoError(t, err)
	assert.Same(t, h.plug, got)

	_, err = h.plug.Evaluate(ctx, "x", sdk.EvaluationOptions{})
	require.Error(t, err, "bundled facade has no evaluator")
}

func TestScope_NamespacesPluginServices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var view plugin.SDK
	require.NoError(t, h.plug.Extend("probe", plugin.Define(func(args plugin.Args[stubOptions]) plugin.Plugin {
		view = args.SDK
		return &stubPlugin{enable: func(ctx context.Context) *plugin.Pending {
			args.SDK.Logger().Info("hello from probe")
			if err := args.SDK.TabStorage().Set(ctx, "key", "tab"); err != nil {
				return plugin.Fail(err)
			}
			if err := args.SDK.BrowserStorage("sub").Set(ctx, "key", "browser"); err != nil {
				return plugin.Fail(err)
			}
			return nil
		}}
	})))

	require.NoError(t, h.plug.Plug(ctx, configWith(plug.PluginConfiguration{Name: "probe"})))
	awaitPlugged(t, h.plug)
	require.NotNil(t, view)

	entry, ok := h.logs.find("hello from probe")
	require.True(t, ok)
	assert.Equal(t, "Plugin.probe", entry.attrs["logger"])

	value, ok, err := h.backend.Get(ctx, "tab:tab-1", "Plugin.probe.key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tab", value)

	value, ok, err = h.backend.Get(ctx, "browser", "Plugin.probe.sub.key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "browser", value)

	assert.Equal(t, "tab-1", view.Tab().ID())
	assert.NotNil(t, view.Tracker())
	assert.NotNil(t, view.Evaluator())
	assert.NotNil(t, view.User())
	assert.NotNil(t, view.Session())
	assert.NotNil(t, view.TokenStore())
	assert.NotNil(t, view.CIDAssigner())
	assert.NotNil(t, view.EventManager())
}

func TestPlug_AccessorsUsableFromEnable(t *testing.T) {
	h := newHarness(t)
	var seen error
	p := h.plug
	require.NoError(t, h.plug.Extend("reentrant", stubFactory(&counter{}, &stubPlugin{
		enable: func(context.Context) *plugin.Pending {
			_, seen = p.Session()
			return nil
		},
	})))

	require.NoError(t, h.plug.Plug(context.Background(), configWith(plug.PluginConfiguration{Name: "reentrant"})))
	awaitPlugged(t, h.plug)
	assert.NoError(t, seen)
}
