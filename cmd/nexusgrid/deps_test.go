// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusgrid/nexusgrid/internal/observability"
	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

func postgresConfig(t *testing.T) *Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.Backend = backendPostgres
	cfg.DatabaseURL = "postgres://db/nexusgrid"
	cfg.Keys.Dir = t.TempDir()
	cfg.ConnectAttempts = 3
	return cfg
}

func fastBackoff() retry.Backoff {
	return retry.NewConstant(time.Millisecond)
}

func TestOpenRuntime_WaitsForDatabase(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectClose()

	attempts := 0
	deps := &Deps{
		RetryBackoff: fastBackoff,
		PoolFactory: func(context.Context, string) (Pool, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection refused")
			}
			return mock, nil
		},
	}

	rt, err := openRuntime(context.Background(), postgresConfig(t), deps, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.NotNil(t, rt.Accounts)
	assert.NotNil(t, rt.Tokens)
	assert.NotNil(t, rt.ServerList)

	rec := httptest.NewRecorder()
	observability.NewServer("", rt.readinessChecks()...).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "database: ok\n", rec.Body.String())

	rt.Close()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRuntime_GivesUp(t *testing.T) {
	attempts := 0
	deps := &Deps{
		RetryBackoff: fastBackoff,
		PoolFactory: func(context.Context, string) (Pool, error) {
			attempts++
			return nil, errors.New("connection refused")
		},
	}

	_, err := openRuntime(context.Background(), postgresConfig(t), deps, discardLogger())
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	assert.Equal(t, 4, attempts, "one try plus three retries")
}

func TestOpenRuntime_Memory(t *testing.T) {
	cfg := defaultConfig()
	cfg.Keys.Dir = t.TempDir()

	rt, err := openRuntime(context.Background(), cfg, nil, discardLogger())
	require.NoError(t, err)
	defer rt.Close()
	assert.Empty(t, rt.readinessChecks(), "no backend to probe")

	acc, err := rt.Accounts.RegisterAccount(context.Background(), "alice", "", "Passw0rd")
	require.NoError(t, err)
	sess, err := rt.Sessions.Login(context.Background(), "alice", "Passw0rd")
	require.NoError(t, err)
	access, err := rt.Tokens.Verify(context.Background(), sess.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, access.Principal.ID)
}

func TestOpenRuntime_BadFilterFile(t *testing.T) {
	cfg := defaultConfig()
	cfg.Keys.Dir = t.TempDir()
	cfg.Textfilter.File = "/nonexistent/phrases.yaml"

	_, err := openRuntime(context.Background(), cfg, nil, discardLogger())
	errutil.AssertErrorCode(t, err, "TEXTFILTER_LOAD_FAILED")
}
