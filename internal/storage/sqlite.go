package storage

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

// Storage is the linked-account store and the owner of the user's default
// account/calendar pair.
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the database file at dbPath.
func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return Open(dbPath + "?_foreign_keys=on&_txlock=immediate&_busy_timeout=5000")
}

// Open opens a database from a go-sqlite3 DSN and applies migrations.
func Open(dsn string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; transactions never wait on a second pooled connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			default_account_id TEXT NOT NULL DEFAULT '',
			default_calendar_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			provider_account_id TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			token TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			UNIQUE (user_id, provider_id, provider_account_id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id)`,
		// Token refresh bookkeeping
		`ALTER TABLE accounts ADD COLUMN token_updated_at DATETIME`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// === Users ===

// EnsureUser creates the user row if it does not exist.
func (s *Storage) EnsureUser(ctx context.Context, userID string) error {
	return ensureUser(ctx, s.db, userID)
}

func ensureUser(ctx context.Context, q querier, userID string) error {
	if userID == "" {
		return calerr.Invalid("user", "user id is required")
	}
	_, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, userID)
	return err
}

// GetUser returns the user and their recorded defaults.
func (s *Storage) GetUser(ctx context.Context, userID string) (models.User, error) {
	return getUser(ctx, s.db, userID)
}

func getUser(ctx context.Context, q querier, userID string) (models.User, error) {
	u := models.User{ID: userID}
	err := q.QueryRowContext(ctx,
		`SELECT default_account_id, default_calendar_id FROM users WHERE id = ?`,
		userID,
	).Scan(&u.Defaults.AccountID, &u.Defaults.CalendarID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, &calerr.NotFoundError{Resource: "user", ID: userID}
	}
	return u, err
}

func setDefaults(ctx context.Context, q querier, userID string, d models.DefaultSelection) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET default_account_id = ?, default_calendar_id = ? WHERE id = ?`,
		d.AccountID, d.CalendarID, userID,
	)
	return err
}

// UpdateDefaults runs a read-modify-write of the user's default pair in one
// immediate transaction. fn sees the recorded pair and the user's accounts,
// newest first, and returns the pair to store. Both fields are always written
// together.
func (s *Storage) UpdateDefaults(ctx context.Context, userID string, fn func(cur models.DefaultSelection, accounts []models.Account) (models.DefaultSelection, error)) (models.DefaultSelection, error) {
	var next models.DefaultSelection
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		u, err := getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		accounts, err := listAccounts(ctx, tx, userID)
		if err != nil {
			return err
		}
		next, err = fn(u.Defaults, accounts)
		if err != nil {
			return err
		}
		if next == u.Defaults {
			return nil
		}
		return setDefaults(ctx, tx, userID, next)
	})
	if err != nil {
		return models.DefaultSelection{}, err
	}
	return next, nil
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// === Accounts ===

const accountColumns = `id, user_id, provider_id, provider_account_id, email, name, created_at`

func scanAccount(row interface{ Scan(...any) error }) (models.Account, error) {
	var a models.Account
	var provider string
	err := row.Scan(&a.ID, &a.UserID, &provider, &a.ProviderAccountID, &a.Email, &a.Name, &a.CreatedAt)
	a.ProviderID = models.ProviderID(provider)
	return a, err
}

// ListAccounts returns the user's linked accounts, newest first. Tokens are not loaded.
func (s *Storage) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	return listAccounts(ctx, s.db, userID)
}

func listAccounts(ctx context.Context, q querier, userID string) ([]models.Account, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccount returns one of the user's accounts.
func (s *Storage) GetAccount(ctx context.Context, userID, accountID string) (models.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND id = ?`,
		userID, accountID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, &calerr.NotFoundError{Resource: "account", ID: accountID}
	}
	return a, err
}

// SaveAccount links an account, or refreshes the profile and token of an
// account already linked for the same provider identity. acct.ID and
// acct.CreatedAt are filled in.
func (s *Storage) SaveAccount(ctx context.Context, acct *models.Account, tok *oauth2.Token) error {
	if acct.ProviderAccountID == "" {
		return calerr.Invalid("providerAccountId", "provider account id is required")
	}
	tokenJSON, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, acct.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, user_id, provider_id, provider_account_id, email, name, token, created_at, token_updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, provider_id, provider_account_id) DO UPDATE SET
			   email = excluded.email,
			   name = excluded.name,
			   token = excluded.token,
			   token_updated_at = excluded.token_updated_at`,
			acct.ID, acct.UserID, string(acct.ProviderID), acct.ProviderAccountID, acct.Email, acct.Name, string(tokenJSON), acct.CreatedAt, time.Now().UTC(),
		)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT id, created_at FROM accounts WHERE user_id = ? AND provider_id = ? AND provider_account_id = ?`,
			acct.UserID, string(acct.ProviderID), acct.ProviderAccountID,
		).Scan(&acct.ID, &acct.CreatedAt)
	})
}

// DeleteAccount unlinks an account. When it was the default, the default
// moves to the newest remaining account with its calendar cleared, or is
// unset when none remain. The resulting pair is returned.
func (s *Storage) DeleteAccount(ctx context.Context, userID, accountID string, providerID models.ProviderID) (models.DefaultSelection, error) {
	var next models.DefaultSelection
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM accounts WHERE user_id = ? AND id = ? AND provider_id = ?`,
			userID, accountID, string(providerID),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &calerr.NotFoundError{Resource: "account", ID: accountID}
		}

		u, err := getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		next = u.Defaults
		if u.Defaults.AccountID != accountID {
			return nil
		}

		remaining, err := listAccounts(ctx, tx, userID)
		if err != nil {
			return err
		}
		next = models.DefaultSelection{}
		if len(remaining) > 0 {
			next.AccountID = remaining[0].ID
		}
		return setDefaults(ctx, tx, userID, next)
	})
	if err != nil {
		return models.DefaultSelection{}, err
	}
	return next, nil
}

// === Tokens ===

// LoadToken returns the stored OAuth token of an account.
func (s *Storage) LoadToken(ctx context.Context, accountID string) (*oauth2.Token, error) {
	var tokenJSON string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM accounts WHERE id = ?`, accountID).Scan(&tokenJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &calerr.NotFoundError{Resource: "account", ID: accountID}
	}
	if err != nil {
		return nil, err
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(tokenJSON), &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

// SaveToken replaces the stored OAuth token of an account.
func (s *Storage) SaveToken(ctx context.Context, accountID string, tok *oauth2.Token) error {
	tokenJSON, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET token = ?, token_updated_at = ? WHERE id = ?`,
		string(tokenJSON), time.Now().UTC(), accountID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &calerr.NotFoundError{Resource: "account", ID: accountID}
	}
	return nil
}
