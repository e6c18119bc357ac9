// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nexusgrid/nexusgrid/internal/store"
)

var (
	suiteCtx  context.Context
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
)

func TestAccountPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Account Postgres Suite")
}

var _ = BeforeSuite(func() {
	suiteCtx = context.Background()

	var err error
	container, err = postgres.Run(suiteCtx,
		"postgres:16-alpine",
		postgres.WithDatabase("nexusgrid_test"),
		postgres.WithUsername("nexusgrid"),
		postgres.WithPassword("nexusgrid"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	Expect(err).NotTo(HaveOccurred())

	dsn, err := container.ConnectionString(suiteCtx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(dsn)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err = store.Connect(suiteCtx, dsn)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		_ = container.Terminate(suiteCtx)
	}
})

// truncate empties every table between specs.
func truncate() {
	_, err := pool.Exec(suiteCtx, `TRUNCATE accounts, saves, usernames, container_entries CASCADE`)
	Expect(err).NotTo(HaveOccurred())
}
