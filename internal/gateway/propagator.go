package gateway

import (
	"net/http"
	"time"

	"github.com/novadent/clinic-core/internal/identity"
)

// refreshCookieSuffix distinguishes the refresh-token cookie from the
// session cookie. The refresh cookie is scoped to the auth endpoints so
// the long-lived token is not sent on every page request.
const refreshCookieSuffix = "_refresh"

// refreshCookiePath is the only path the refresh cookie travels to.
const refreshCookiePath = "/auth"

// CookiePolicy carries the response-cookie attributes from config.
type CookiePolicy struct {
	Name   string
	Path   string
	Secure bool
}

// SessionPropagator accumulates session cookie writes during a request
// and applies them exactly once when response headers are finalized.
// Within one request the last staged write supersedes earlier ones; a
// propagator is request-scoped and never shared across requests.
type SessionPropagator struct {
	policy  CookiePolicy
	pending map[string]*http.Cookie
	applied bool
}

// NewPropagator creates a propagator for a single request.
func NewPropagator(policy CookiePolicy) *SessionPropagator {
	if policy.Path == "" {
		policy.Path = "/"
	}
	return &SessionPropagator{
		policy:  policy,
		pending: make(map[string]*http.Cookie),
	}
}

// SetCredential stages the session cookie and refresh cookie for a
// freshly issued credential, replacing any earlier staged write.
func (p *SessionPropagator) SetCredential(cred *identity.Credential) {
	p.stage(&http.Cookie{
		Name:     p.policy.Name,
		Value:    cred.AccessToken,
		Path:     p.policy.Path,
		Expires:  cred.ExpiresAt,
		HttpOnly: true,
		Secure:   p.policy.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	p.stage(&http.Cookie{
		Name:     p.policy.Name + refreshCookieSuffix,
		Value:    cred.RefreshToken,
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   p.policy.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Clear stages expired cookies so the client drops both tokens.
func (p *SessionPropagator) Clear() {
	expired := time.Unix(0, 0)
	p.stage(&http.Cookie{
		Name:     p.policy.Name,
		Value:    "",
		Path:     p.policy.Path,
		Expires:  expired,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.policy.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	p.stage(&http.Cookie{
		Name:     p.policy.Name + refreshCookieSuffix,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  expired,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.policy.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// stage records a pending write, overwriting any earlier write for the
// same cookie name.
func (p *SessionPropagator) stage(c *http.Cookie) {
	p.pending[c.Name] = c
}

// Pending reports whether any cookie write is staged and not yet applied.
func (p *SessionPropagator) Pending() bool {
	return !p.applied && len(p.pending) > 0
}

// Apply writes the staged cookies onto the response. It is idempotent:
// only the first call writes, so one authoritative credential reaches
// the client per request no matter how many response paths run.
func (p *SessionPropagator) Apply(w http.ResponseWriter) {
	if p.applied {
		return
	}
	p.applied = true
	for _, c := range p.pending {
		http.SetCookie(w, c)
	}
}

// Wrap returns a ResponseWriter that applies the staged cookies just
// before the first header write, so handlers and redirects alike carry
// the refreshed credential without cooperating explicitly.
func (p *SessionPropagator) Wrap(w http.ResponseWriter) http.ResponseWriter {
	return &propagatingWriter{ResponseWriter: w, propagator: p}
}

// propagatingWriter defers cookie application to response finalization.
type propagatingWriter struct {
	http.ResponseWriter
	propagator *SessionPropagator
}

func (w *propagatingWriter) WriteHeader(status int) {
	w.propagator.Apply(w.ResponseWriter)
	w.ResponseWriter.WriteHeader(status)
}

func (w *propagatingWriter) Write(b []byte) (int, error) {
	// An implicit 200 also finalizes headers.
	w.propagator.Apply(w.ResponseWriter)
	return w.ResponseWriter.Write(b)
}

// SessionCookie extracts the access token from a request, preferring the
// session cookie and falling back to a bearer Authorization header for
// non-browser clients.
func SessionCookie(r *http.Request, policy CookiePolicy) string {
	if c, err := r.Cookie(policy.Name); err == nil && c.Value != "" {
		return c.Value
	}
	const bearerPrefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(bearerPrefix) && h[:len(bearerPrefix)] == bearerPrefix {
		return h[len(bearerPrefix):]
	}
	return ""
}

// RefreshCookie extracts the refresh token from a request, if present.
func RefreshCookie(r *http.Request, policy CookiePolicy) string {
	if c, err := r.Cookie(policy.Name + refreshCookieSuffix); err == nil {
		return c.Value
	}
	return ""
}
