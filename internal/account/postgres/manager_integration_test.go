// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

//go:build integration

package postgres_test

import (
	"errors"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/nexusgrid/nexusgrid/internal/account"
	accountpg "github.com/nexusgrid/nexusgrid/internal/account/postgres"
	dcpostgres "github.com/nexusgrid/nexusgrid/internal/datacontainer/postgres"
)

var _ = Describe("Manager on PostgreSQL", func() {
	var (
		mgr *account.Manager
		now time.Time
	)

	BeforeEach(func() {
		truncate()
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		mgr = account.NewManager(
			accountpg.NewRepository(pool),
			dcpostgres.NewDriver(pool),
			account.WithClock(func() time.Time { return now }),
			account.WithPenalty(func(time.Duration) {}),
			account.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)
	})

	It("rejects a second registration of the same name", func() {
		_, err := mgr.RegisterAccount(suiteCtx, "alice", "alice@example.com", "Passw0rd")
		Expect(err).NotTo(HaveOccurred())

		_, err = mgr.RegisterAccount(suiteCtx, "Alice", "", "Passw0rd")
		Expect(account.Reason(err)).To(Equal(account.ReasonUsernameInUse))

		_, err = mgr.RegisterAccount(suiteCtx, "bob", "ALICE@example.com", "Passw0rd")
		Expect(account.Reason(err)).To(Equal(account.ReasonEmailInUse))
	})

	It("shares the namespace between accounts and saves", func() {
		alice, err := mgr.RegisterAccount(suiteCtx, "alice", "", "Passw0rd")
		Expect(err).NotTo(HaveOccurred())
		bob, err := mgr.RegisterAccount(suiteCtx, "bob", "", "Passw0rd")
		Expect(err).NotTo(HaveOccurred())

		_, err = mgr.CreateSave(suiteCtx, alice.ID, "Alice")
		Expect(account.Reason(err)).To(Equal(account.ReasonUsernameInUse))
		knight, err := mgr.CreateSave(suiteCtx, alice.ID, "Knight")
		Expect(err).NotTo(HaveOccurred())

		_, err = mgr.CreateSave(suiteCtx, bob.ID, "knight")
		Expect(account.Reason(err)).To(Equal(account.ReasonUsernameInUse))

		Expect(mgr.DeleteSave(suiteCtx, knight.ID)).To(Succeed())
		taken, err := mgr.IsUsernameTaken(suiteCtx, "KNIGHT")
		Expect(err).NotTo(HaveOccurred())
		Expect(taken).To(BeFalse())

		taken, err = mgr.IsUsernameTaken(suiteCtx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(taken).To(BeTrue())
	})

	It("locks an account after a failed login", func() {
		_, err := mgr.RegisterAccount(suiteCtx, "alice", "", "Passw0rd")
		Expect(err).NotTo(HaveOccurred())

		_, err = mgr.Authenticate(suiteCtx, "alice", "nope-nope")
		Expect(errors.Is(err, account.ErrInvalidCredentials)).To(BeTrue())

		now = now.Add(2 * time.Second)
		_, err = mgr.Authenticate(suiteCtx, "alice", "Passw0rd")
		Expect(errors.Is(err, account.ErrInvalidCredentials)).To(BeTrue())

		now = now.Add(7 * time.Second)
		_, err = mgr.Authenticate(suiteCtx, "alice", "Passw0rd")
		Expect(err).NotTo(HaveOccurred())
	})

	It("migrates a guest in one transaction", func() {
		guest, err := mgr.RegisterGuestAccount(suiteCtx, "steam-42")
		Expect(err).NotTo(HaveOccurred())
		_, err = mgr.CreateSave(suiteCtx, guest.ID, "Hero")
		Expect(err).NotTo(HaveOccurred())

		Expect(mgr.MigrateToNormalAccountFromGuest(suiteCtx, guest.ID, "Hero", "hero@example.com", "Passw0rd")).To(Succeed())

		acc, err := mgr.GetAccountByUsername(suiteCtx, "hero")
		Expect(err).NotTo(HaveOccurred())
		Expect(acc.ID).To(Equal(guest.ID))
		Expect(acc.IsGuest).To(BeFalse())

		ok, err := mgr.VerifyPassword(suiteCtx, guest.ID, "Passw0rd")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("deletes an account with its saves and data", func() {
		alice, err := mgr.RegisterAccount(suiteCtx, "alice", "alice@example.com", "Passw0rd")
		Expect(err).NotTo(HaveOccurred())
		save, err := mgr.CreateSave(suiteCtx, alice.ID, "Knight")
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SaveData(save.ID).SetValue(suiteCtx, "gold", 10)).To(Succeed())

		Expect(mgr.DeleteAccount(suiteCtx, alice.ID)).To(Succeed())

		var rows int
		Expect(pool.QueryRow(suiteCtx, `SELECT count(*) FROM container_entries`).Scan(&rows)).To(Succeed())
		Expect(rows).To(BeZero())

		exists, err := mgr.AccountExists(suiteCtx, alice.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})
})
