package audit

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE audit_logs (
			id         TEXT PRIMARY KEY,
			action     TEXT NOT NULL,
			subject_id TEXT,
			tenant_id  TEXT,
			path       TEXT,
			reason     TEXT,
			details    TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating audit table: %v", err)
	}

	return db
}

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	entry := &Entry{
		Action:    ActionAccessDenied,
		SubjectID: "usr-001",
		TenantID:  "tnt-001",
		Path:      "/admin",
		Reason:    "insufficient-role",
		Details:   map[string]any{"role": "receptionist"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if entry.ID == "" {
		t.Error("Create() should assign an ID")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}

	got := result.Entries[0]
	if got.Action != ActionAccessDenied {
		t.Errorf("Action = %q, want %q", got.Action, ActionAccessDenied)
	}
	if got.Path != "/admin" {
		t.Errorf("Path = %q, want %q", got.Path, "/admin")
	}
	if got.Details["role"] != "receptionist" {
		t.Errorf("Details[role] = %v, want receptionist", got.Details["role"])
	}
}

func TestList_Filters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	seed := []Entry{
		{Action: ActionLogin, SubjectID: "usr-001", TenantID: "tnt-001"},
		{Action: ActionLogin, SubjectID: "usr-002", TenantID: "tnt-002"},
		{Action: ActionAccessDenied, SubjectID: "usr-001", TenantID: "tnt-001", Path: "/reports"},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	byAction, err := repo.List(ctx, Filter{Action: ActionLogin})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if byAction.Total != 2 {
		t.Errorf("login entries = %d, want 2", byAction.Total)
	}

	bySubject, err := repo.List(ctx, Filter{SubjectID: "usr-001"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if bySubject.Total != 2 {
		t.Errorf("usr-001 entries = %d, want 2", bySubject.Total)
	}

	byTenant, err := repo.List(ctx, Filter{TenantID: "tnt-002"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if byTenant.Total != 1 {
		t.Errorf("tnt-002 entries = %d, want 1", byTenant.Total)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	result, err := repo.List(context.Background(), Filter{Limit: 10000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("Limit = %d, want clamped to 200", result.Limit)
	}
}
