package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/novadent/clinic-core/internal/audit"
	"github.com/novadent/clinic-core/internal/identity"
	"github.com/novadent/clinic-core/internal/infrastructure/config"
	"github.com/novadent/clinic-core/internal/infrastructure/logging"
	"github.com/novadent/clinic-core/internal/profile"
)

// refreshFraction controls proactive refresh: when less than this share
// of the access token lifetime remains, the gateway rotates the
// credential so the cookie never expires mid-navigation.
const refreshFraction = 4

// Identity is the resolved caller placed on the request context for
// requests the gateway allows through. Profile may be nil when the
// subject is authenticated but not yet provisioned.
type Identity struct {
	Session *identity.Session
	Profile *profile.Profile
}

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	ctxKeyIdentity   contextKey = "gateway_identity"
	ctxKeyPropagator contextKey = "gateway_propagator"
)

// WithIdentity returns a context carrying the resolved caller.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext extracts the resolved caller, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(*Identity)
	return id, ok && id != nil
}

// WithPropagator returns a context carrying the request's propagator.
func WithPropagator(ctx context.Context, p *SessionPropagator) context.Context {
	return context.WithValue(ctx, ctxKeyPropagator, p)
}

// PropagatorFromContext extracts the request-scoped propagator placed
// by the gateway. Handlers stage their cookie writes into it so the
// request finishes with exactly one authoritative credential write.
func PropagatorFromContext(ctx context.Context) (*SessionPropagator, bool) {
	p, ok := ctx.Value(ctxKeyPropagator).(*SessionPropagator)
	return p, ok && p != nil
}

// Deps holds the dependencies required by the gateway.
type Deps struct {
	Routes   config.RoutesConfig
	Session  config.SessionConfig
	Provider identity.Provider
	Profiles profile.Repository
	Audit    audit.Repository // optional: denied decisions are recorded when set
	Logger   *logging.Logger
	Metrics  *Metrics // optional
}

// Gateway evaluates route access for every inbound request and keeps
// the session cookie consistent across the request/response boundary.
// It holds no per-request state; all fields are immutable after New.
type Gateway struct {
	classifier *Classifier
	evaluator  Evaluator
	provider   identity.Provider
	profiles   profile.Repository
	audit      audit.Repository
	logger     *logging.Logger
	metrics    *Metrics
	cookies    CookiePolicy
	timeout    time.Duration
	accessTTL  time.Duration
}

// New creates a gateway from its dependencies.
func New(deps Deps) (*Gateway, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if deps.Profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Gateway{
		classifier: NewClassifier(deps.Routes),
		evaluator: Evaluator{
			LoginPath:   deps.Routes.LoginPath,
			LandingPath: deps.Routes.DefaultLandingPath,
		},
		provider: deps.Provider,
		profiles: deps.Profiles,
		audit:    deps.Audit,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		cookies: CookiePolicy{
			Name:   deps.Session.CookieName,
			Path:   deps.Session.CookiePath,
			Secure: deps.Session.Secure,
		},
		timeout:   deps.Session.UpstreamCallTimeout(),
		accessTTL: deps.Session.AccessTokenLifetime(),
	}, nil
}

// CookiePolicy exposes the configured cookie attributes so auth
// handlers stage their writes with the same policy the gateway uses.
func (g *Gateway) CookiePolicy() CookiePolicy {
	return g.cookies
}

// Handler is the chi middleware enforcing the access policy. Flow:
// classify the path, resolve the session (validating and, near expiry,
// refreshing the credential), resolve the profile, evaluate, then
// proceed or redirect. The propagator wraps the ResponseWriter so the
// staged credential rides on whichever response is written.
func (g *Gateway) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		prop := NewPropagator(g.cookies)
		ww := prop.Wrap(w)
		path := r.URL.Path
		route := g.classifier.Classify(path)

		// Auth endpoints redeem the refresh cookie themselves. Rotating
		// here too would redeem the same raw token twice in one request
		// and trip the provider's reuse detection.
		rotate := !underAuthPath(path)

		var sess *identity.Session
		if token := SessionCookie(r, g.cookies); token != "" {
			sess = g.resolveSession(r, prop, token, rotate)
		} else if rotate && route.RequiresSession() {
			// No access token but maybe a refresh cookie from an
			// expired tab: one rotation attempt before redirecting.
			sess = g.tryRefresh(r, prop)
		}

		var prof *profile.Profile
		if sess != nil {
			prof = g.resolveProfile(r, sess)
		}

		decision := g.evaluator.Evaluate(route, path, sess, prof)
		g.metrics.ObserveDecision(decision)
		if g.metrics != nil {
			g.metrics.Duration.Observe(time.Since(start).Seconds())
		}

		if !decision.Allowed {
			g.recordDenial(r, sess, prof, decision)
			http.Redirect(ww, r, decision.RedirectPath, http.StatusFound)
			return
		}

		ctx := WithIdentity(r.Context(), &Identity{Session: sess, Profile: prof})
		ctx = WithPropagator(ctx, prop)
		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

// underAuthPath reports whether the path is scoped to the auth
// endpoints, which own credential rotation for their own requests.
func underAuthPath(path string) bool {
	return path == refreshCookiePath || strings.HasPrefix(path, refreshCookiePath+"/")
}

// resolveSession validates the access token. Expired tokens get one
// refresh attempt when rotation is permitted; upstream failures are
// logged and treated as "no session" so infrastructure state never
// leaks into route decisions.
func (g *Gateway) resolveSession(r *http.Request, prop *SessionPropagator, token string, rotate bool) *identity.Session {
	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	sess, err := g.provider.ValidateSession(ctx, token)
	switch {
	case err == nil:
		if rotate && sess.TimeToExpiry() < g.accessTTL/refreshFraction {
			if refreshed := g.tryRefresh(r, prop); refreshed != nil {
				return refreshed
			}
		}
		return sess

	case errors.Is(err, identity.ErrSessionExpired):
		g.metrics.ObserveValidationFailure("expired")
		if !rotate {
			return nil
		}
		return g.tryRefresh(r, prop)

	case errors.Is(err, identity.ErrSessionInvalid):
		g.metrics.ObserveValidationFailure("invalid")
		return nil

	default:
		// Fail closed: the caller proceeds as unauthenticated, never 5xx.
		g.metrics.ObserveValidationFailure("upstream")
		g.logger.Error("session validation failed, treating as unauthenticated",
			"error", err,
			"path", r.URL.Path,
		)
		return nil
	}
}

// tryRefresh exchanges the refresh cookie for a new credential pair and
// stages it on the propagator. Returns nil when no refresh is possible.
func (g *Gateway) tryRefresh(r *http.Request, prop *SessionPropagator) *identity.Session {
	raw := RefreshCookie(r, g.cookies)
	if raw == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	cred, err := g.provider.Refresh(ctx, raw)
	if err != nil {
		if errors.Is(err, identity.ErrTokenReuse) {
			g.logger.Warn("refresh token reuse detected, family revoked",
				"path", r.URL.Path,
			)
		}
		g.metrics.ObserveValidationFailure("refresh")
		return nil
	}

	prop.SetCredential(cred)
	return &identity.Session{
		Token:     cred.AccessToken,
		SubjectID: cred.SubjectID,
		Email:     cred.Email,
		ExpiresAt: cred.ExpiresAt,
	}
}

// resolveProfile fetches the caller's profile. A missing or unreachable
// profile resolves to nil: role checks fail closed on nil, but routes
// that require no role stay reachable for mid-provisioning accounts.
func (g *Gateway) resolveProfile(r *http.Request, sess *identity.Session) *profile.Profile {
	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	prof, err := g.profiles.Get(ctx, sess.SubjectID)
	if err != nil {
		if !errors.Is(err, profile.ErrProfileNotFound) {
			g.logger.Error("profile lookup failed, role checks fail closed",
				"error", err,
				"subject_id", sess.SubjectID,
			)
		}
		return nil
	}
	return prof
}

// recordDenial writes an audit entry for role denials. Best effort:
// audit failure never blocks the redirect.
func (g *Gateway) recordDenial(r *http.Request, sess *identity.Session, prof *profile.Profile, d AccessDecision) {
	if d.Reason != ReasonInsufficientRole || g.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action: audit.ActionAccessDenied,
		Path:   r.URL.Path,
		Reason: string(d.Reason),
	}
	if sess != nil {
		entry.SubjectID = sess.SubjectID
	}
	if prof != nil {
		entry.TenantID = prof.TenantID
		entry.Details = map[string]any{"role": string(prof.Role)}
	}

	if err := g.audit.Create(r.Context(), entry); err != nil {
		g.logger.Warn("audit write failed", "error", err)
	}
}
