package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var errAccountNotFound = errors.New("account not found")

const accountSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	email          TEXT NOT NULL UNIQUE,
	password_hash  TEXT NOT NULL,
	phone          TEXT NOT NULL DEFAULT '',
	full_name      TEXT NOT NULL DEFAULT '',
	email_verified INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accounts_verified ON accounts(email_verified);
`

type account struct {
	ID            string
	Email         string
	PasswordHash  string
	Phone         string
	FullName      string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// accountStore is the SQLite account table.
type accountStore struct {
	db *sql.DB
}

// openAccounts opens dsn with the sqlite driver and creates the schema.
// SQLite allows one writer; the pool is pinned to one connection, which also
// keeps a ":memory:" database alive for the lifetime of the store.
func openAccounts(ctx context.Context, dsn string) (*accountStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open account db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, accountSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create account schema: %w", err)
	}
	return &accountStore{db: db}, nil
}

func (s *accountStore) Close() error {
	return s.db.Close()
}

const accountColumns = `id, email, password_hash, phone, full_name, email_verified, created_at, updated_at`

func scanAccount(row *sql.Row) (*account, error) {
	var (
		a                account
		verified         int
		created, updated int64
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Phone, &a.FullName, &verified, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.EmailVerified = verified != 0
	a.CreatedAt = time.Unix(created, 0).UTC()
	a.UpdatedAt = time.Unix(updated, 0).UTC()
	return &a, nil
}

func (s *accountStore) ByEmail(ctx context.Context, email string) (*account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email))
}

func (s *accountStore) ByID(ctx context.Context, id string) (*account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

func (s *accountStore) Insert(ctx context.Context, a *account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, a.Phone, a.FullName, boolInt(a.EmailVerified),
		a.CreatedAt.Unix(), a.UpdatedAt.Unix())
	return err
}

// ReplaceUnverified overwrites the sign-up data of an account that never
// confirmed its email. It reports false when the account is verified.
func (s *accountStore) ReplaceUnverified(ctx context.Context, a *account) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, phone = ?, full_name = ?, updated_at = ?
		 WHERE id = ? AND email_verified = 0`,
		a.PasswordHash, a.Phone, a.FullName, a.UpdatedAt.Unix(), a.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *accountStore) MarkVerified(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET email_verified = 1, updated_at = ? WHERE id = ?`, now.Unix(), id)
	return err
}

func (s *accountStore) SetPassword(ctx context.Context, id, hash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, now.Unix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errAccountNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
