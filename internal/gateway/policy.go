package gateway

import (
	"net/url"

	"github.com/novadent/clinic-core/internal/identity"
	"github.com/novadent/clinic-core/internal/profile"
)

// RedirectReason explains why a request was turned away.
type RedirectReason string

const (
	ReasonAlreadyAuthenticated RedirectReason = "already-authenticated"
	ReasonUnauthenticated      RedirectReason = "unauthenticated"
	ReasonInsufficientRole     RedirectReason = "insufficient-role"
)

// AccessDecision is the pure output of the evaluator: either the request
// proceeds, or it is redirected. No side effects are baked in.
type AccessDecision struct {
	Allowed      bool
	RedirectPath string
	Reason       RedirectReason
}

// Allow is the decision that lets a request through.
var Allow = AccessDecision{Allowed: true}

// RedirectTo builds a blocking decision.
func RedirectTo(path string, reason RedirectReason) AccessDecision {
	return AccessDecision{RedirectPath: path, Reason: reason}
}

// Evaluator combines route class, session presence, and role into an
// AccessDecision. It holds only the two configured target paths and is
// safe to share across concurrent requests.
type Evaluator struct {
	// LoginPath is the redirect target for unauthenticated requests.
	LoginPath string

	// LandingPath is the default authenticated landing page, the target
	// for already-authenticated and insufficient-role redirects.
	LandingPath string
}

// Evaluate decides access for one request. Rules apply in fixed order,
// first match wins:
//
//  1. auth-only route with a session: redirect to the landing page.
//  2. the root path with a session: redirect to the landing page.
//  3. non-public route without a session: redirect to login, carrying
//     the original path in a redirectTo query parameter.
//  4. admin-restricted route without the admin role: redirect to landing.
//  5. role-restricted route with a role outside the allowed set:
//     redirect to landing.
//  6. otherwise: allow.
//
// A nil profile never satisfies a role check (rules 4 and 5 fail
// closed), but a missing profile does not block unrestricted routes;
// a freshly provisioned account must not be locked out while its
// profile is still being created. That asymmetry is deliberate.
func (e Evaluator) Evaluate(route Route, path string, session *identity.Session, prof *profile.Profile) AccessDecision {
	authed := session != nil

	if route.Class == ClassAuthOnly && authed {
		return RedirectTo(e.LandingPath, ReasonAlreadyAuthenticated)
	}

	if path == "/" && authed {
		return RedirectTo(e.LandingPath, ReasonAlreadyAuthenticated)
	}

	if route.RequiresSession() && !authed {
		return RedirectTo(e.loginRedirect(path), ReasonUnauthenticated)
	}

	if route.RequiresRole() && !roleAllowed(prof, route.AllowedRoles) {
		return RedirectTo(e.LandingPath, ReasonInsufficientRole)
	}

	return Allow
}

// loginRedirect appends the original path so the post-login flow can
// return the user there.
func (e Evaluator) loginRedirect(originalPath string) string {
	return e.LoginPath + "?redirectTo=" + url.QueryEscape(originalPath)
}

// roleAllowed reports whether the profile's role is in the allowed set.
// An unresolvable profile carries no role and never passes.
func roleAllowed(prof *profile.Profile, allowed []profile.Role) bool {
	if prof == nil {
		return false
	}
	for _, r := range allowed {
		if prof.Role == r {
			return true
		}
	}
	return false
}
