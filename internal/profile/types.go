package profile

import (
	"errors"
	"time"
)

// Role represents an authorisation tier within a clinic.
type Role string

const (
	// RoleAdmin manages the clinic: staff accounts, settings, billing.
	RoleAdmin Role = "admin"

	// RoleDentist is a practitioner: full clinical records, reports,
	// analytics. No staff or settings management.
	RoleDentist Role = "dentist"

	// RoleReceptionist runs the front desk: patients, appointments,
	// invoices. No reports or clinic administration.
	RoleReceptionist Role = "receptionist"
)

// ValidRoles is the set of roles a profile may carry.
var ValidRoles = []Role{RoleAdmin, RoleDentist, RoleReceptionist}

// IsValidRole returns true if the role is one of the known roles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Profile is the tenant-scoped record for a subject.
type Profile struct {
	SubjectID   string    `json:"subject_id"`
	TenantID    string    `json:"tenant_id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Patch carries the mutable profile fields for partial updates.
// TenantID is deliberately absent: tenancy never changes here.
type Patch struct {
	DisplayName *string `json:"display_name,omitempty"`
	Role        *Role   `json:"role,omitempty"`
}

// Tenant represents an isolated clinic account.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for profile operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists for subject")
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrInvalidRole     = errors.New("invalid role")
)
