package gateway

import (
	"testing"
	"time"

	"github.com/novadent/clinic-core/internal/identity"
	"github.com/novadent/clinic-core/internal/profile"
)

var testEvaluator = Evaluator{LoginPath: "/login", LandingPath: "/dashboard"}

func testSession() *identity.Session {
	return &identity.Session{
		SubjectID: "usr-001",
		Email:     "staff@clinic.example",
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
}

func testProfile(role profile.Role) *profile.Profile {
	return &profile.Profile{
		SubjectID:   "usr-001",
		TenantID:    "tnt-001",
		Role:        role,
		DisplayName: "Staff",
	}
}

func TestEvaluate_PublicAlwaysAllows(t *testing.T) {
	route := Route{Class: ClassPublic}

	combos := []struct {
		name string
		sess *identity.Session
		prof *profile.Profile
	}{
		{"no session", nil, nil},
		{"session without profile", testSession(), nil},
		{"session with profile", testSession(), testProfile(profile.RoleReceptionist)},
	}

	for _, c := range combos {
		d := testEvaluator.Evaluate(route, "/reset-password", c.sess, c.prof)
		if !d.Allowed {
			t.Errorf("%s: public route denied: %+v", c.name, d)
		}
	}
}

func TestEvaluate_AuthOnly(t *testing.T) {
	route := Route{Class: ClassAuthOnly}

	// Anonymous visitors reach the login page.
	if d := testEvaluator.Evaluate(route, "/login", nil, nil); !d.Allowed {
		t.Errorf("anonymous /login denied: %+v", d)
	}

	// Authenticated visitors are sent to the landing page, profile or not.
	d := testEvaluator.Evaluate(route, "/login", testSession(), nil)
	if d.Allowed {
		t.Fatal("authenticated /login should redirect")
	}
	if d.RedirectPath != "/dashboard" {
		t.Errorf("RedirectPath = %q, want /dashboard", d.RedirectPath)
	}
	if d.Reason != ReasonAlreadyAuthenticated {
		t.Errorf("Reason = %q, want %q", d.Reason, ReasonAlreadyAuthenticated)
	}
}

func TestEvaluate_RootRedirectsAuthenticated(t *testing.T) {
	route := Route{Class: ClassProtected}

	d := testEvaluator.Evaluate(route, "/", testSession(), testProfile(profile.RoleDentist))
	if d.Allowed {
		t.Fatal("authenticated / should redirect to landing")
	}
	if d.RedirectPath != "/dashboard" || d.Reason != ReasonAlreadyAuthenticated {
		t.Errorf("decision = %+v, want dashboard/already-authenticated", d)
	}

	// Anonymous / falls through to the unauthenticated redirect.
	d = testEvaluator.Evaluate(route, "/", nil, nil)
	if d.Allowed {
		t.Fatal("anonymous / should redirect to login")
	}
	if d.Reason != ReasonUnauthenticated {
		t.Errorf("Reason = %q, want %q", d.Reason, ReasonUnauthenticated)
	}
}

func TestEvaluate_UnauthenticatedCarriesRedirectTo(t *testing.T) {
	route := Route{Class: ClassAdminRestricted, AllowedRoles: []profile.Role{profile.RoleAdmin}}

	d := testEvaluator.Evaluate(route, "/admin", nil, nil)
	if d.Allowed {
		t.Fatal("anonymous /admin should redirect")
	}
	if d.RedirectPath != "/login?redirectTo=%2Fadmin" {
		t.Errorf("RedirectPath = %q, want /login?redirectTo=%%2Fadmin", d.RedirectPath)
	}
	if d.Reason != ReasonUnauthenticated {
		t.Errorf("Reason = %q, want %q", d.Reason, ReasonUnauthenticated)
	}
}

func TestEvaluate_AdminRestricted(t *testing.T) {
	route := Route{Class: ClassAdminRestricted, AllowedRoles: []profile.Role{profile.RoleAdmin}}

	// Admin passes.
	if d := testEvaluator.Evaluate(route, "/admin", testSession(), testProfile(profile.RoleAdmin)); !d.Allowed {
		t.Errorf("admin denied /admin: %+v", d)
	}

	// Non-admin roles redirect to landing, silently.
	for _, role := range []profile.Role{profile.RoleDentist, profile.RoleReceptionist} {
		d := testEvaluator.Evaluate(route, "/admin", testSession(), testProfile(role))
		if d.Allowed {
			t.Errorf("%s allowed on /admin", role)
		}
		if d.RedirectPath != "/dashboard" || d.Reason != ReasonInsufficientRole {
			t.Errorf("%s decision = %+v, want dashboard/insufficient-role", role, d)
		}
	}
}

func TestEvaluate_RoleRestricted(t *testing.T) {
	route := Route{Class: ClassRoleRestricted, AllowedRoles: []profile.Role{profile.RoleAdmin, profile.RoleDentist}}

	if d := testEvaluator.Evaluate(route, "/reports", testSession(), testProfile(profile.RoleDentist)); !d.Allowed {
		t.Errorf("dentist denied /reports: %+v", d)
	}
	if d := testEvaluator.Evaluate(route, "/reports", testSession(), testProfile(profile.RoleAdmin)); !d.Allowed {
		t.Errorf("admin denied /reports: %+v", d)
	}

	d := testEvaluator.Evaluate(route, "/reports", testSession(), testProfile(profile.RoleReceptionist))
	if d.Allowed {
		t.Fatal("receptionist allowed on /reports")
	}
	if d.Reason != ReasonInsufficientRole {
		t.Errorf("Reason = %q, want %q", d.Reason, ReasonInsufficientRole)
	}
}

func TestEvaluate_MissingProfileAsymmetry(t *testing.T) {
	// A session without a resolvable profile reaches unrestricted routes
	// but never passes a role check.
	protected := Route{Class: ClassProtected}
	if d := testEvaluator.Evaluate(protected, "/patients", testSession(), nil); !d.Allowed {
		t.Errorf("missing profile blocked /patients: %+v", d)
	}

	restricted := Route{Class: ClassAdminRestricted, AllowedRoles: []profile.Role{profile.RoleAdmin}}
	d := testEvaluator.Evaluate(restricted, "/admin", testSession(), nil)
	if d.Allowed {
		t.Fatal("missing profile passed an admin check")
	}
	if d.Reason != ReasonInsufficientRole {
		t.Errorf("Reason = %q, want %q", d.Reason, ReasonInsufficientRole)
	}
}

func TestEvaluate_ReceptionistReachesUnrestricted(t *testing.T) {
	route := Route{Class: ClassProtected}

	d := testEvaluator.Evaluate(route, "/patients", testSession(), testProfile(profile.RoleReceptionist))
	if !d.Allowed {
		t.Errorf("receptionist denied /patients: %+v", d)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	route := Route{Class: ClassRoleRestricted, AllowedRoles: []profile.Role{profile.RoleAdmin, profile.RoleDentist}}
	sess := testSession()
	prof := testProfile(profile.RoleReceptionist)

	first := testEvaluator.Evaluate(route, "/reports", sess, prof)
	second := testEvaluator.Evaluate(route, "/reports", sess, prof)

	if first != second {
		t.Errorf("Evaluate() not idempotent: %+v != %+v", first, second)
	}
}
