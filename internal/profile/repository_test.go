package profile

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the tenancy schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "profile-test-*.db")
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
		CREATE TABLE tenants (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE profiles (
			subject_id   TEXT PRIMARY KEY,
			tenant_id    TEXT NOT NULL,
			role         TEXT NOT NULL DEFAULT 'receptionist',
			display_name TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating tenancy tables: %v", err)
	}

	return db
}

// seedTenant creates a tenant to hang profiles off.
func seedTenant(t *testing.T, db *sql.DB) *Tenant {
	t.Helper()

	tenant := &Tenant{Name: "Bright Smile Dental"}
	if err := NewTenantRepository(db).Create(context.Background(), tenant); err != nil {
		t.Fatalf("creating tenant: %v", err)
	}
	return tenant
}

func TestCreateAndGetProfile(t *testing.T) {
	db := testDB(t)
	tenant := seedTenant(t, db)
	repo := NewRepository(db)
	ctx := context.Background()

	p := &Profile{
		SubjectID:   "usr-001",
		TenantID:    tenant.ID,
		Role:        RoleDentist,
		DisplayName: "Dr. Ada",
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, "usr-001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got.TenantID != tenant.ID {
		t.Errorf("TenantID = %q, want %q", got.TenantID, tenant.ID)
	}
	if got.Role != RoleDentist {
		t.Errorf("Role = %q, want %q", got.Role, RoleDentist)
	}
	if got.DisplayName != "Dr. Ada" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "Dr. Ada")
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	_, err := repo.Get(context.Background(), "usr-missing")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Get() error = %v, want ErrProfileNotFound", err)
	}
}

func TestCreateProfile_Duplicate(t *testing.T) {
	db := testDB(t)
	tenant := seedTenant(t, db)
	repo := NewRepository(db)
	ctx := context.Background()

	p := &Profile{SubjectID: "usr-001", TenantID: tenant.ID, Role: RoleAdmin, DisplayName: "A"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := repo.Create(ctx, &Profile{SubjectID: "usr-001", TenantID: tenant.ID, Role: RoleAdmin, DisplayName: "B"})
	if !errors.Is(err, ErrProfileExists) {
		t.Errorf("Create() error = %v, want ErrProfileExists", err)
	}
}

func TestCreateProfile_InvalidRole(t *testing.T) {
	db := testDB(t)
	tenant := seedTenant(t, db)
	repo := NewRepository(db)

	err := repo.Create(context.Background(), &Profile{
		SubjectID: "usr-001", TenantID: tenant.ID, Role: Role("superuser"), DisplayName: "X",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Create() error = %v, want ErrInvalidRole", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	db := testDB(t)
	tenant := seedTenant(t, db)
	repo := NewRepository(db)
	ctx := context.Background()

	p := &Profile{SubjectID: "usr-001", TenantID: tenant.ID, Role: RoleReceptionist, DisplayName: "Front Desk"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	newName := "Sam at Reception"
	newRole := RoleAdmin
	updated, err := repo.Update(ctx, "usr-001", Patch{DisplayName: &newName, Role: &newRole})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.DisplayName != newName {
		t.Errorf("DisplayName = %q, want %q", updated.DisplayName, newName)
	}
	if updated.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", updated.Role, RoleAdmin)
	}

	// Tenant never moves through Update.
	if updated.TenantID != tenant.ID {
		t.Errorf("TenantID changed to %q, want %q", updated.TenantID, tenant.ID)
	}
}

func TestUpdateProfile_PartialPatch(t *testing.T) {
	db := testDB(t)
	tenant := seedTenant(t, db)
	repo := NewRepository(db)
	ctx := context.Background()

	p := &Profile{SubjectID: "usr-001", TenantID: tenant.ID, Role: RoleDentist, DisplayName: "Dr. Ada"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	newName := "Dr. Ada L."
	updated, err := repo.Update(ctx, "usr-001", Patch{DisplayName: &newName})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Role != RoleDentist {
		t.Errorf("Role = %q, want unchanged %q", updated.Role, RoleDentist)
	}
}

func TestListByTenant_Isolation(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	tenants := NewTenantRepository(db)
	ctx := context.Background()

	a := &Tenant{Name: "Clinic A"}
	b := &Tenant{Name: "Clinic B"}
	if err := tenants.Create(ctx, a); err != nil {
		t.Fatalf("creating tenant: %v", err)
	}
	if err := tenants.Create(ctx, b); err != nil {
		t.Fatalf("creating tenant: %v", err)
	}

	for i, tenantID := range []string{a.ID, a.ID, b.ID} {
		p := &Profile{
			SubjectID:   "usr-00" + string(rune('1'+i)),
			TenantID:    tenantID,
			Role:        RoleReceptionist,
			DisplayName: "Staff",
		}
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	listA, err := repo.ListByTenant(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListByTenant() error = %v", err)
	}
	if len(listA) != 2 {
		t.Errorf("tenant A profiles = %d, want 2", len(listA))
	}

	listB, err := repo.ListByTenant(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListByTenant() error = %v", err)
	}
	if len(listB) != 1 {
		t.Errorf("tenant B profiles = %d, want 1", len(listB))
	}
}

func TestDeleteProfile(t *testing.T) {
	db := testDB(t)
	tenant := seedTenant(t, db)
	repo := NewRepository(db)
	ctx := context.Background()

	p := &Profile{SubjectID: "usr-001", TenantID: tenant.ID, Role: RoleAdmin, DisplayName: "A"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Delete(ctx, "usr-001"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if err := repo.Delete(ctx, "usr-001"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("second Delete() error = %v, want ErrProfileNotFound", err)
	}
}
