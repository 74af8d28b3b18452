// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration_test

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/plug/internal/storage"
	"github.com/holomush/plug/pkg/sdk"
)

// migrateUp brings the schema to the latest version.
func migrateUp() {
	m, err := storage.NewMigrator(env.connStr)
	Expect(err).NotTo(HaveOccurred())
	defer func() { Expect(m.Close()).To(Succeed()) }()
	Expect(m.Up()).To(Succeed())
}

var _ = Describe("Storage migrations", Ordered, func() {
	var m *storage.Migrator

	BeforeAll(func() {
		var err error
		m, err = storage.NewMigrator(env.connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		Expect(m.Up()).To(Succeed())
		Expect(m.Close()).To(Succeed())
	})

	It("applies every embedded migration", func() {
		Expect(m.Up()).To(Succeed())

		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		pending, err := m.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("is a no-op when already up to date", func() {
		Expect(m.Up()).To(Succeed())
	})

	It("rolls back to an empty schema", func() {
		Expect(m.Down()).To(Succeed())

		version, _, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		pending, err := m.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(Equal([]uint{1}))
	})
})

var _ = Describe("Postgres storage backend", func() {
	var backend *storage.Postgres

	BeforeEach(func() {
		migrateUp()

		var err error
		backend, err = storage.NewPostgres(env.ctx, env.connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(backend.Close)
	})

	It("round-trips values per scope", func() {
		Expect(backend.Set(env.ctx, storage.TabScope("tab-a"), "k", "a")).To(Succeed())
		Expect(backend.Set(env.ctx, storage.TabScope("tab-b"), "k", "b")).To(Succeed())

		value, ok, err := backend.Get(env.ctx, storage.TabScope("tab-a"), "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal("a"))

		value, ok, err = backend.Get(env.ctx, storage.TabScope("tab-b"), "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal("b"))
	})

	It("overwrites existing keys", func() {
		Expect(backend.Set(env.ctx, storage.ScopeBrowser, "overwrite", "old")).To(Succeed())
		Expect(backend.Set(env.ctx, storage.ScopeBrowser, "overwrite", "new")).To(Succeed())

		value, ok, err := backend.Get(env.ctx, storage.ScopeBrowser, "overwrite")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal("new"))
	})

	It("reports missing and deleted keys as absent", func() {
		_, ok, err := backend.Get(env.ctx, storage.ScopeBrowser, "never-set")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		Expect(backend.Set(env.ctx, storage.ScopeBrowser, "gone", "x")).To(Succeed())
		Expect(backend.Delete(env.ctx, storage.ScopeBrowser, "gone")).To(Succeed())
		_, ok, err = backend.Get(env.ctx, storage.ScopeBrowser, "gone")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		Expect(backend.Delete(env.ctx, storage.ScopeBrowser, "gone")).To(Succeed())
	})

	It("is opened by driver name with auto-migration", func() {
		opened, err := storage.Open(env.ctx, sdk.StorageConfiguration{
			Driver:      sdk.StoragePostgres,
			DSN:         env.connStr,
			AutoMigrate: true,
		})
		Expect(err).NotTo(HaveOccurred())
		defer opened.Close()

		Expect(opened.Set(env.ctx, storage.ScopeBrowser, "opened", "yes")).To(Succeed())
		value, ok, err := backend.Get(env.ctx, storage.ScopeBrowser, "opened")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal("yes"))
	})
})
