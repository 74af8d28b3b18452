// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration_test

import (
	"context"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/plug/internal/dom"
	"github.com/holomush/plug/internal/facade"
	"github.com/holomush/plug/pkg/plug"
	"github.com/holomush/plug/pkg/sdk"
	"github.com/holomush/plug/plugins/playground"
)

const (
	shopOrigin = "https://shop.example"
	playOrigin = "https://play.example"
)

// companion accepts every handshake and keeps the payloads.
type companion struct {
	mu       sync.Mutex
	received []map[string]any
}

func (c *companion) HandleMessage(event sdk.MessageEvent, parent sdk.Window) {
	c.mu.Lock()
	if data, ok := event.Data.(map[string]any); ok {
		c.received = append(c.received, data)
	}
	c.mu.Unlock()
	_ = parent.PostMessage("accepted", event.Origin)
}

func (c *companion) handshakes() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.received...)
}

var _ = Describe("Playground flag persisted in PostgreSQL", Ordered, func() {
	var (
		doc  *dom.Document
		tool *companion
		p    *plug.Plug
	)

	configuration := func(tabID, referrer string) plug.Configuration {
		return plug.Configuration{
			SDK: sdk.Configuration{
				AppID: "app-int",
				Tab: sdk.TabConfiguration{
					ID:       tabID,
					URL:      shopOrigin + "/cart",
					Referrer: referrer,
				},
				Storage: sdk.StorageConfiguration{
					Driver:      sdk.StoragePostgres,
					DSN:         env.connStr,
					AutoMigrate: true,
				},
			},
			Plugins: []plug.PluginConfiguration{
				{Name: playground.Name, Options: map[string]any{"origin": playOrigin}},
			},
		}
	}

	epoch := func(cfg plug.Configuration) {
		GinkgoHelper()
		Expect(p.Plug(env.ctx, cfg)).To(Succeed())

		ctx, cancel := context.WithTimeout(env.ctx, 10*time.Second)
		defer cancel()
		_, err := p.Plugged().Await(ctx)
		Expect(err).NotTo(HaveOccurred())
	}

	unplug := func() {
		GinkgoHelper()
		ctx, cancel := context.WithTimeout(env.ctx, 10*time.Second)
		defer cancel()
		Expect(p.Unplug(ctx)).To(Succeed())
		doc.Wait()
	}

	BeforeAll(func() {
		doc = dom.New(shopOrigin)
		tool = &companion{}
		Expect(doc.Route(playOrigin, tool)).To(Succeed())

		logger := slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
		registry := plug.NewRegistry()
		Expect(registry.Register(playground.Name, playground.Factory())).To(Succeed())

		p = plug.New(
			plug.WithRegistry(registry),
			plug.WithLogger(logger),
			plug.WithFacadeFactory(plug.DefaultFacadeFactory(
				facade.WithLogger(logger),
				facade.WithDocument(doc),
			)),
		)
	})

	It("arms from the referrer and completes the handshake", func() {
		epoch(configuration("tab-int", playOrigin+"/session"))

		Eventually(tool.handshakes).Should(HaveLen(1))
		first := tool.handshakes()[0]
		Expect(first).To(HaveKeyWithValue("tabId", "tab-int"))
		Expect(first).To(HaveKeyWithValue("token", BeNil()))
		Expect(first["cid"]).NotTo(BeEmpty())

		Eventually(doc.Frames).Should(BeEmpty())
		unplug()
	})

	It("re-arms the same tab from the persisted flag with the stored CID", func() {
		epoch(configuration("tab-int", ""))

		Eventually(tool.handshakes).Should(HaveLen(2))
		all := tool.handshakes()
		Expect(all[1]["cid"]).To(Equal(all[0]["cid"]))
		Expect(all[1]).To(HaveKeyWithValue("tabId", "tab-int"))

		unplug()
	})

	It("stays idle in another tab without a referrer", func() {
		epoch(configuration("tab-other", ""))
		doc.Wait()

		Consistently(tool.handshakes, 200*time.Millisecond).Should(HaveLen(2))
		Expect(doc.Frames()).To(BeEmpty())

		unplug()
	})

	It("sends the identified user's token on token change", func() {
		epoch(configuration("tab-int", ""))
		Eventually(tool.handshakes).Should(HaveLen(3))

		Expect(p.Identify("user-42")).To(Succeed())
		Eventually(tool.handshakes).Should(HaveLen(4))
		Expect(tool.handshakes()[3]["token"]).To(BeAssignableToTypeOf(""))

		unplug()
	})
})
