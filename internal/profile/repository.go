package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for profile persistence.
type Repository interface {
	Get(ctx context.Context, subjectID string) (*Profile, error)
	Create(ctx context.Context, p *Profile) error
	Update(ctx context.Context, subjectID string, patch Patch) (*Profile, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Profile, error)
	Delete(ctx context.Context, subjectID string) error
}

// TenantRepository defines the interface for tenant persistence.
type TenantRepository interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed profile repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const profileColumns = "subject_id, tenant_id, role, display_name, created_at, updated_at"

// Get retrieves a profile by subject ID.
func (r *SQLiteRepository) Get(ctx context.Context, subjectID string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE subject_id = ?", subjectID)
	return scanProfile(row)
}

// Create inserts a new profile for a subject.
func (r *SQLiteRepository) Create(ctx context.Context, p *Profile) error {
	if !IsValidRole(p.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	p.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (subject_id, tenant_id, role, display_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.SubjectID, p.TenantID, string(p.Role), p.DisplayName, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrProfileExists
		}
		return fmt.Errorf("creating profile: %w", err)
	}

	return nil
}

// Update applies a partial update to a profile's mutable fields and
// returns the updated record. TenantID cannot be changed through Update.
func (r *SQLiteRepository) Update(ctx context.Context, subjectID string, patch Patch) (*Profile, error) {
	current, err := r.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if patch.DisplayName != nil {
		current.DisplayName = *patch.DisplayName
	}
	if patch.Role != nil {
		if !IsValidRole(*patch.Role) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, *patch.Role)
		}
		current.Role = *patch.Role
	}

	now := time.Now().UTC().Format(time.RFC3339)
	current.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET role = ?, display_name = ?, updated_at = ? WHERE subject_id = ?`,
		string(current.Role), current.DisplayName, now, subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return nil, ErrProfileNotFound
	}
	return current, nil
}

// ListByTenant returns all profiles belonging to a tenant.
func (r *SQLiteRepository) ListByTenant(ctx context.Context, tenantID string) ([]Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE tenant_id = ? ORDER BY created_at ASC", tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}

	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// Delete removes a profile by subject ID.
func (r *SQLiteRepository) Delete(ctx context.Context, subjectID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM profiles WHERE subject_id = ?", subjectID)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanProfile scans a profile from a row or rows cursor.
func scanProfile(s scanner) (*Profile, error) {
	var p Profile
	var role string
	var createdAt, updatedAt string

	err := s.Scan(&p.SubjectID, &p.TenantID, &role, &p.DisplayName, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("scanning profile: %w", err)
	}

	p.Role = Role(role)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &p, nil
}

// SQLiteTenantRepository implements TenantRepository using SQLite.
type SQLiteTenantRepository struct {
	db *sql.DB
}

// NewTenantRepository creates a new SQLite-backed tenant repository.
func NewTenantRepository(db *sql.DB) *SQLiteTenantRepository {
	return &SQLiteTenantRepository{db: db}
}

// Create inserts a new tenant. The ID is generated if empty.
func (r *SQLiteTenantRepository) Create(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = "tnt-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	t.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)",
		t.ID, t.Name, now,
	)
	if err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}
	return nil
}

// Get retrieves a tenant by ID.
func (r *SQLiteTenantRepository) Get(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM tenants WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}

	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &t, nil
}
