package gateway

import (
	"sort"
	"strings"

	"github.com/novadent/clinic-core/internal/infrastructure/config"
	"github.com/novadent/clinic-core/internal/profile"
)

// RouteClass describes the authorization requirement of a URL path.
type RouteClass string

const (
	// ClassPublic requires no session.
	ClassPublic RouteClass = "public"

	// ClassAuthOnly requires no session AND redirects authenticated
	// visitors away (login, register). Auth-only implies public.
	ClassAuthOnly RouteClass = "auth-only"

	// ClassProtected requires a valid session.
	ClassProtected RouteClass = "protected"

	// ClassAdminRestricted requires a valid session and the admin role.
	ClassAdminRestricted RouteClass = "admin-restricted"

	// ClassRoleRestricted requires a valid session and one of a listed
	// set of roles.
	ClassRoleRestricted RouteClass = "role-restricted"
)

// Route is the classification result for a path.
type Route struct {
	Class RouteClass

	// AllowedRoles is populated for admin- and role-restricted routes.
	AllowedRoles []profile.Role
}

// RequiresSession reports whether the class needs a valid session.
// Admin- and role-restricted routes are themselves protected; the role
// check only applies once session presence is confirmed.
func (r Route) RequiresSession() bool {
	return r.Class != ClassPublic && r.Class != ClassAuthOnly
}

// RequiresRole reports whether the class carries a role check.
func (r Route) RequiresRole() bool {
	return r.Class == ClassAdminRestricted || r.Class == ClassRoleRestricted
}

// routeEntry is one row of the compiled classification table.
type routeEntry struct {
	prefix string
	route  Route
}

// Classifier maps request paths to route classes by longest-prefix
// match over the configured tables. Classification is pure and
// side-effect free; a Classifier is immutable after construction.
type Classifier struct {
	entries []routeEntry // sorted by descending prefix length
}

// NewClassifier compiles the route tables from config into a classifier.
// When one path appears in several tables the most specific fact wins:
// auth-only upgrades public, and restricted prefixes override the
// protected default.
func NewClassifier(cfg config.RoutesConfig) *Classifier {
	byPrefix := make(map[string]Route)

	for _, p := range cfg.Public {
		byPrefix[p] = Route{Class: ClassPublic}
	}
	for _, p := range cfg.AuthOnly {
		byPrefix[p] = Route{Class: ClassAuthOnly}
	}
	for _, p := range cfg.AdminRestricted {
		byPrefix[p] = Route{
			Class:        ClassAdminRestricted,
			AllowedRoles: []profile.Role{profile.RoleAdmin},
		}
	}
	for _, rr := range cfg.RoleRestricted {
		roles := make([]profile.Role, 0, len(rr.Roles))
		for _, r := range rr.Roles {
			roles = append(roles, profile.Role(r))
		}
		byPrefix[rr.Prefix] = Route{
			Class:        ClassRoleRestricted,
			AllowedRoles: roles,
		}
	}

	entries := make([]routeEntry, 0, len(byPrefix))
	for prefix, route := range byPrefix {
		entries = append(entries, routeEntry{prefix: prefix, route: route})
	}

	// Longest prefix first so the most specific entry matches.
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].prefix) != len(entries[j].prefix) {
			return len(entries[i].prefix) > len(entries[j].prefix)
		}
		return entries[i].prefix < entries[j].prefix
	})

	return &Classifier{entries: entries}
}

// Classify returns the route class for a request path.
// Paths matching no configured prefix default to protected.
func (c *Classifier) Classify(path string) Route {
	for _, e := range c.entries {
		if matchesPrefix(path, e.prefix) {
			return e.route
		}
	}
	return Route{Class: ClassProtected}
}

// matchesPrefix reports whether path falls under prefix as a path
// segment boundary: "/reports" matches "/reports" and "/reports/2026"
// but not "/reportsx".
func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
