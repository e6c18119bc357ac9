// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package postgres provides a PostgreSQL account repository.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/account"
)

// poolIface is the subset of pgxpool.Pool used by the repository.
type poolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements account.Repository using PostgreSQL.
type Repository struct {
	pool poolIface
}

// NewRepository creates a new Repository.
func NewRepository(pool poolIface) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, username, email, credential, is_guest, created_at`

// mapError translates unique violations into account sentinels.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "accounts_pkey", "saves_pkey":
		return oops.With("constraint", pgErr.ConstraintName).Wrap(account.ErrIDInUse)
	case "accounts_email_key":
		return oops.With("constraint", pgErr.ConstraintName).Wrap(account.ErrEmailInUse)
	default:
		return oops.With("constraint", pgErr.ConstraintName).Wrap(account.ErrUsernameInUse)
	}
}

func notFound(kind, value string) error {
	return oops.Code("ACCOUNT_NOT_FOUND").With(kind, value).Wrap(account.ErrNotFound)
}

func (r *Repository) inTx(ctx context.Context, operation string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.With("operation", "begin transaction").Wrap(err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.With("operation", operation+": commit").Wrap(mapError(err))
	}
	return nil
}

// reserve claims name for accountID. It succeeds when the name is free or
// already held by the same account.
func reserve(ctx context.Context, tx pgx.Tx, accountID, name string) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO usernames (name_key, account_id) VALUES ($1, $2)
		ON CONFLICT (name_key) DO UPDATE SET account_id = EXCLUDED.account_id
		WHERE usernames.account_id = EXCLUDED.account_id
	`, account.NameKey(name), accountID)
	if err != nil {
		return oops.With("operation", "reserve username").Wrap(mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return oops.With("username", name).Wrap(account.ErrUsernameInUse)
	}
	return nil
}

// release drops the reservation for key unless the account still uses it.
func release(ctx context.Context, tx pgx.Tx, accountID, key string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM usernames
		WHERE name_key = $1 AND account_id = $2
		  AND NOT EXISTS (SELECT 1 FROM accounts WHERE id = $2 AND lower(username) = $1)
		  AND NOT EXISTS (SELECT 1 FROM saves WHERE account_id = $2 AND lower(username) = $1)
	`, key, accountID)
	if err != nil {
		return oops.With("operation", "release username").Wrap(err)
	}
	return nil
}

// CreateAccount stores a new account and reserves its username.
func (r *Repository) CreateAccount(ctx context.Context, a *account.Account) error {
	return r.inTx(ctx, "create account", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, username, email, credential, is_guest, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, a.ID, a.Username, a.Email, a.Credential, a.IsGuest, a.CreatedAt)
		if err != nil {
			return oops.With("operation", "insert account").With("username", a.Username).Wrap(mapError(err))
		}
		return reserve(ctx, tx, a.ID, a.Username)
	})
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.Credential, &a.IsGuest, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount returns the account with id.
func (r *Repository) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("account_id", id)
	}
	if err != nil {
		return nil, oops.With("operation", "get account").With("account_id", id).Wrap(err)
	}
	return a, nil
}

// GetAccountByUsername looks up an account by login name (case-insensitive).
func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*account.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(username) = $1`, account.NameKey(username)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("username", username)
	}
	if err != nil {
		return nil, oops.With("operation", "get account by username").With("username", username).Wrap(err)
	}
	return a, nil
}

// GetAccountIDByEmail looks up an account ID by email (case-insensitive).
func (r *Repository) GetAccountIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT id FROM accounts WHERE lower(email) = lower($1)`, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound("email", email)
	}
	if err != nil {
		return "", oops.With("operation", "get account by email").Wrap(err)
	}
	return id, nil
}

// UsernameOwner returns the account holding the reservation for name.
func (r *Repository) UsernameOwner(ctx context.Context, name string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT account_id FROM usernames WHERE name_key = $1`, account.NameKey(name)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound("username", name)
	}
	if err != nil {
		return "", oops.With("operation", "get username owner").With("username", name).Wrap(err)
	}
	return id, nil
}

func rename(ctx context.Context, tx pgx.Tx, id, username string) error {
	var old string
	err := tx.QueryRow(ctx, `SELECT username FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&old)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("account_id", id)
	}
	if err != nil {
		return oops.With("operation", "lock account").Wrap(err)
	}

	if err := reserve(ctx, tx, id, username); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET username = $2 WHERE id = $1`, id, username); err != nil {
		return oops.With("operation", "update username").Wrap(mapError(err))
	}
	if account.NameKey(old) == account.NameKey(username) {
		return nil
	}
	return release(ctx, tx, id, account.NameKey(old))
}

// UpdateUsername changes an account's login name.
func (r *Repository) UpdateUsername(ctx context.Context, id, username string) error {
	return r.inTx(ctx, "update username", func(tx pgx.Tx) error {
		return rename(ctx, tx, id, username)
	})
}

func (r *Repository) updateOne(ctx context.Context, operation, id, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return oops.With("operation", operation).With("account_id", id).Wrap(mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return notFound("account_id", id)
	}
	return nil
}

// UpdateEmail sets or clears an account's email.
func (r *Repository) UpdateEmail(ctx context.Context, id string, email *string) error {
	return r.updateOne(ctx, "update email", id, `UPDATE accounts SET email = $2 WHERE id = $1`, email)
}

// UpdateCredential replaces an account's credential.
func (r *Repository) UpdateCredential(ctx context.Context, id string, credential []byte) error {
	return r.updateOne(ctx, "update credential", id, `UPDATE accounts SET credential = $2 WHERE id = $1`, credential)
}

// SetGuest sets the guest flag.
func (r *Repository) SetGuest(ctx context.Context, id string, guest bool) error {
	return r.updateOne(ctx, "set guest", id, `UPDATE accounts SET is_guest = $2 WHERE id = $1`, guest)
}

// CommitMigration applies username, email and credential in one transaction.
func (r *Repository) CommitMigration(ctx context.Context, id string, m account.Migration) error {
	return r.inTx(ctx, "commit migration", func(tx pgx.Tx) error {
		if err := rename(ctx, tx, id, m.Username); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE accounts SET email = $2, credential = $3 WHERE id = $1`,
			id, m.Email, m.Credential)
		if err != nil {
			return oops.With("operation", "update migrated account").Wrap(mapError(err))
		}
		return nil
	})
}

// DeleteAccount removes an account. Saves and reservations cascade.
func (r *Repository) DeleteAccount(ctx context.Context, id string) error {
	return r.updateOne(ctx, "delete account", id, `DELETE FROM accounts WHERE id = $1`)
}

// CreateSave stores a new save and reserves its name for the owner.
func (r *Repository) CreateSave(ctx context.Context, s *account.Save) error {
	return r.inTx(ctx, "create save", func(tx pgx.Tx) error {
		if err := reserve(ctx, tx, s.AccountID, s.Username); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO saves (id, account_id, username, created_at)
			VALUES ($1, $2, $3, $4)
		`, s.ID, s.AccountID, s.Username, s.CreatedAt)
		if err != nil {
			return oops.With("operation", "insert save").With("username", s.Username).Wrap(mapError(err))
		}
		return nil
	})
}

func scanSave(row pgx.Row) (*account.Save, error) {
	var s account.Save
	if err := row.Scan(&s.ID, &s.AccountID, &s.Username, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSave returns the save with id.
func (r *Repository) GetSave(ctx context.Context, id string) (*account.Save, error) {
	s, err := scanSave(r.pool.QueryRow(ctx,
		`SELECT id, account_id, username, created_at FROM saves WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("save_id", id)
	}
	if err != nil {
		return nil, oops.With("operation", "get save").With("save_id", id).Wrap(err)
	}
	return s, nil
}

// GetSaveByUsername looks up a save by name (case-insensitive).
func (r *Repository) GetSaveByUsername(ctx context.Context, username string) (*account.Save, error) {
	s, err := scanSave(r.pool.QueryRow(ctx,
		`SELECT id, account_id, username, created_at FROM saves WHERE lower(username) = $1`,
		account.NameKey(username)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("save_username", username)
	}
	if err != nil {
		return nil, oops.With("operation", "get save by username").Wrap(err)
	}
	return s, nil
}

// ListSaveIDs returns the IDs of an account's saves in creation order.
func (r *Repository) ListSaveIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM saves WHERE account_id = $1 ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, oops.With("operation", "list saves").With("account_id", accountID).Wrap(err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, oops.With("operation", "scan save id").Wrap(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate saves").Wrap(err)
	}
	return ids, nil
}

// DeleteSave removes a save and releases its reservation if unused.
func (r *Repository) DeleteSave(ctx context.Context, id string) error {
	return r.inTx(ctx, "delete save", func(tx pgx.Tx) error {
		var accountID, username string
		err := tx.QueryRow(ctx,
			`DELETE FROM saves WHERE id = $1 RETURNING account_id, username`, id).Scan(&accountID, &username)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("save_id", id)
		}
		if err != nil {
			return oops.With("operation", "delete save").With("save_id", id).Wrap(err)
		}
		return release(ctx, tx, accountID, account.NameKey(username))
	})
}

var _ account.Repository = (*Repository)(nil)
