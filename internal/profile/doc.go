// Package profile owns the tenant-scoped records mapping a subject to a
// clinic, a role, and a display name. One profile per subject.
//
// The profile store is the single authority for roles: the identity
// provider says who a subject is, this package says which tenant they
// belong to and what they may do there. A subject without a resolvable
// profile can still reach unrestricted routes but never passes a role
// check.
//
// TenantID is immutable through Update; moving a subject between
// clinics is a privileged administrative operation outside this package.
package profile
