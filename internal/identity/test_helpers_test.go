package identity

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the identity schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "identity-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE accounts (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		) STRICT;

		CREATE TABLE refresh_tokens (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			family_id  TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			expires_at TEXT NOT NULL,
			revoked    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating identity tables: %v", err)
	}

	return db
}

// testProvider creates a LocalProvider over a fresh test database.
func testProvider(t *testing.T) *LocalProvider {
	t.Helper()

	db := testDB(t)
	p, err := NewLocalProvider(LocalProviderConfig{
		Accounts:   NewAccountRepository(db),
		Tokens:     NewTokenRepository(db),
		Secret:     "test-secret-key-for-jwt-signing!",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewLocalProvider() error = %v", err)
	}
	return p
}

// mustRegister creates an account through the provider and returns its credential.
func mustRegister(t *testing.T, p *LocalProvider, email, password string) *Credential {
	t.Helper()

	cred, err := p.CreateAccount(context.Background(), email, password)
	if err != nil {
		t.Fatalf("CreateAccount(%q) error = %v", email, err)
	}
	return cred
}
