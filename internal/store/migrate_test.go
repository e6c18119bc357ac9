// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package store

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

type fakeMigrate struct {
	upErr, downErr, stepsErr, forceErr error
	version                            uint
	dirty                              bool
	versionErr                         error
	closeSrcErr, closeDBErr            error
	steps                              []int
}

func (f *fakeMigrate) Up() error   { return f.upErr }
func (f *fakeMigrate) Down() error { return f.downErr }
func (f *fakeMigrate) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}
func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrate) Force(int) error              { return f.forceErr }
func (f *fakeMigrate) Close() (error, error)        { return f.closeSrcErr, f.closeDBErr }

func TestNewMigrator_RejectsUnknownScheme(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/nexusgrid")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestNewMigrator_RewritesPostgresScheme(t *testing.T) {
	_, err := NewMigrator("postgresql://127.0.0.1:1/nexusgrid?connect_timeout=1")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	assert.NotContains(t, err.Error(), "unknown driver")
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgres://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("pgx5://u@h/db"))
}

func TestMigrator_ErrNoChangeIsSuccess(t *testing.T) {
	fake := &fakeMigrate{upErr: migrate.ErrNoChange, downErr: migrate.ErrNoChange, stepsErr: migrate.ErrNoChange}
	m := &Migrator{m: fake}

	require.NoError(t, m.Up())
	require.NoError(t, m.Down())
	require.NoError(t, m.Steps(0))
	assert.Equal(t, []int{0}, fake.steps)
}

func TestMigrator_WrapsFailures(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name string
		run  func(m *Migrator) error
		fake *fakeMigrate
		code string
	}{
		{"up", func(m *Migrator) error { return m.Up() }, &fakeMigrate{upErr: boom}, "MIGRATION_UP_FAILED"},
		{"down", func(m *Migrator) error { return m.Down() }, &fakeMigrate{downErr: boom}, "MIGRATION_DOWN_FAILED"},
		{"steps", func(m *Migrator) error { return m.Steps(-1) }, &fakeMigrate{stepsErr: boom}, "MIGRATION_STEPS_FAILED"},
		{"force", func(m *Migrator) error { return m.Force(1) }, &fakeMigrate{forceErr: boom}, "MIGRATION_FORCE_FAILED"},
		{"force negative", func(m *Migrator) error { return m.Force(-1) }, &fakeMigrate{}, "INVALID_VERSION"},
		{"close source", func(m *Migrator) error { return m.Close() }, &fakeMigrate{closeSrcErr: boom}, "MIGRATION_CLOSE_FAILED"},
		{"close database", func(m *Migrator) error { return m.Close() }, &fakeMigrate{closeDBErr: boom}, "MIGRATION_CLOSE_FAILED"},
		{"close both", func(m *Migrator) error { return m.Close() }, &fakeMigrate{closeSrcErr: boom, closeDBErr: boom}, "MIGRATION_CLOSE_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&Migrator{m: tt.fake})
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestMigrator_Close_ReportsComponent(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{closeDBErr: errors.New("pool closed")}}
	errutil.AssertErrorContext(t, m.Close(), "component", "database")
}

func TestMigrator_Version(t *testing.T) {
	t.Run("fresh database", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}
		v, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Zero(t, v)
		assert.False(t, dirty)
	})

	t.Run("dirty", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{version: 2, dirty: true}}
		v, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), v)
		assert.True(t, dirty)
	})

	t.Run("failure", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{versionErr: errors.New("lost")}}
		_, _, err := m.Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_PendingAndApplied(t *testing.T) {
	tests := []struct {
		current uint
		pending []uint
		applied []uint
	}{
		{0, []uint{1, 2}, nil},
		{1, []uint{2}, []uint{1}},
		{2, nil, []uint{1, 2}},
	}
	for _, tt := range tests {
		m := &Migrator{m: &fakeMigrate{version: tt.current}}

		pending, err := m.PendingMigrations()
		require.NoError(t, err)
		assert.Equal(t, tt.pending, pending, "pending at version %d", tt.current)

		applied, err := m.AppliedMigrations()
		require.NoError(t, err)
		assert.Equal(t, tt.applied, applied, "applied at version %d", tt.current)
	}
}

func TestMigrator_PendingPropagatesVersionError(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{versionErr: errors.New("lost")}}
	_, err := m.PendingMigrations()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "get pending migrations")
}

func TestMigrator_Status(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{version: 1}}
	status, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, &Status{Version: 1, Name: "000001_accounts", Pending: []uint{2}}, status)
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(2)
	require.NoError(t, err)
	assert.Equal(t, "000002_container_entries", name)

	name, err = MigrationName(99)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestLoadMigrationVersions_SkipsOddNames(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/000003_c.up.sql":   {},
		"migrations/000001_a.up.sql":   {},
		"migrations/000001_a.down.sql": {},
		"migrations/readme.up.sql":     {},
		"migrations/notes.txt":         {},
	}
	got, err := loadMigrationVersions(fsys)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 3}, got)
}

func TestLoadMigrationVersions_MissingDir(t *testing.T) {
	_, err := loadMigrationVersions(fstest.MapFS{})
	errutil.AssertErrorCode(t, err, "MIGRATION_LIST_FAILED")
}
