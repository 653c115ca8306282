package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/novadent/clinic-core/internal/audit"
	"github.com/novadent/clinic-core/internal/gateway"
	"github.com/novadent/clinic-core/internal/identity"
	"github.com/novadent/clinic-core/internal/profile"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	TenantID    string `json:"tenant_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// passwordRequest is the request body for PUT /auth/password.
type passwordRequest struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

// sessionResponse is returned by login, register, refresh, and me.
type sessionResponse struct {
	SubjectID string           `json:"subject_id"`
	Email     string           `json:"email"`
	ExpiresAt time.Time        `json:"expires_at"`
	Profile   *profile.Profile `json:"profile,omitempty"`
}

// upstreamCtx bounds provider and profile calls made from handlers.
func (s *Server) upstreamCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.sessCfg.UpstreamCallTimeout())
}

// sessionPropagator returns the request-scoped propagator placed on the
// context by the gateway, so handler cookie writes and any middleware
// writes collapse into one authoritative set. Falls back to a fresh
// propagator when the handler runs without the gateway in front.
func (s *Server) sessionPropagator(r *http.Request) *gateway.SessionPropagator {
	if prop, ok := gateway.PropagatorFromContext(r.Context()); ok {
		return prop
	}
	return gateway.NewPropagator(s.gateway.CookiePolicy())
}

// handleLogin exchanges an email/password pair for a session. The new
// credential is staged onto the response as cookies.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	cred, err := s.provider.ExchangeCredentials(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.recordAudit(r, &audit.Entry{
				Action:  audit.ActionLoginFailed,
				Path:    r.URL.Path,
				Details: map[string]any{"email": req.Email},
			})
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("credential exchange failed", "error", err)
		writeInternalError(w, "login unavailable")
		return
	}

	prof := s.lookupProfile(ctx, cred.SubjectID)

	prop := s.sessionPropagator(r)
	prop.SetCredential(cred)
	prop.Apply(w)

	entry := &audit.Entry{Action: audit.ActionLogin, SubjectID: cred.SubjectID, Path: r.URL.Path}
	if prof != nil {
		entry.TenantID = prof.TenantID
	}
	s.recordAudit(r, entry)

	writeJSON(w, http.StatusOK, sessionResponse{
		SubjectID: cred.SubjectID,
		Email:     cred.Email,
		ExpiresAt: cred.ExpiresAt,
		Profile:   prof,
	})
}

// handleRegister creates an account and provisions its profile. If
// profile provisioning fails after the credential was issued, the
// credential is invalidated and no cookies are set: a caller is never
// left signed in without a resolvable profile.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !identity.IsValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid email address")
		return
	}
	if !identity.IsValidPassword(req.Password) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "password must be at least 8 characters")
		return
	}
	role := profile.Role(req.Role)
	if !profile.IsValidRole(role) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown role")
		return
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	if s.tenants != nil {
		if _, err := s.tenants.Get(ctx, req.TenantID); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown tenant")
			return
		}
	}

	cred, err := s.provider.CreateAccount(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailExists) {
			writeConflict(w, "email already registered")
			return
		}
		s.logger.Error("account creation failed", "error", err)
		writeInternalError(w, "registration unavailable")
		return
	}

	prof := &profile.Profile{
		SubjectID:   cred.SubjectID,
		TenantID:    req.TenantID,
		Role:        role,
		DisplayName: req.DisplayName,
	}
	if err := s.profiles.Create(ctx, prof); err != nil {
		// Roll the session back so the account cannot be used until
		// provisioning succeeds.
		if invErr := s.provider.Invalidate(ctx, cred.RefreshToken); invErr != nil {
			s.logger.Warn("credential rollback failed after profile provisioning error", "error", invErr)
		}
		s.logger.Error("profile provisioning failed", "error", err, "subject_id", cred.SubjectID)
		writeInternalError(w, "registration incomplete: profile could not be provisioned")
		return
	}

	prop := s.sessionPropagator(r)
	prop.SetCredential(cred)
	prop.Apply(w)

	s.recordAudit(r, &audit.Entry{
		Action:    audit.ActionRegister,
		SubjectID: cred.SubjectID,
		TenantID:  req.TenantID,
		Path:      r.URL.Path,
	})

	writeJSON(w, http.StatusCreated, sessionResponse{
		SubjectID: cred.SubjectID,
		Email:     cred.Email,
		ExpiresAt: cred.ExpiresAt,
		Profile:   prof,
	})
}

// handleLogout invalidates the refresh token family and clears both
// cookies. The local session always clears, even when the remote
// invalidation fails.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	policy := s.gateway.CookiePolicy()

	if raw := gateway.RefreshCookie(r, policy); raw != "" {
		ctx, cancel := s.upstreamCtx(r)
		defer cancel()
		if err := s.provider.Invalidate(ctx, raw); err != nil {
			s.logger.Warn("remote session invalidation failed", "error", err)
		}
	}

	if id, ok := gateway.IdentityFromContext(r.Context()); ok && id.Session != nil {
		s.recordAudit(r, &audit.Entry{
			Action:    audit.ActionLogout,
			SubjectID: id.Session.SubjectID,
			Path:      r.URL.Path,
		})
		// Other tabs and devices holding this subject's connections
		// learn the family is gone and can re-check their own session.
		if s.hub != nil {
			s.hub.BroadcastSessionRevoked(id.Session.SubjectID, "logged_out")
		}
	}

	prop := s.sessionPropagator(r)
	prop.Clear()
	prop.Apply(w)

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleRefresh rotates the credential pair using the refresh cookie.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	policy := s.gateway.CookiePolicy()
	raw := gateway.RefreshCookie(r, policy)
	if raw == "" {
		writeUnauthorized(w, "no refresh token")
		return
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	cred, err := s.provider.Refresh(ctx, raw)
	if err != nil {
		prop := s.sessionPropagator(r)
		prop.Clear()
		prop.Apply(w)
		writeUnauthorized(w, "refresh token rejected")
		return
	}

	prop := s.sessionPropagator(r)
	prop.SetCredential(cred)
	prop.Apply(w)

	writeJSON(w, http.StatusOK, sessionResponse{
		SubjectID: cred.SubjectID,
		Email:     cred.Email,
		ExpiresAt: cred.ExpiresAt,
	})
}

// handleMe returns the resolved identity for the current session.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := gateway.IdentityFromContext(r.Context())
	if !ok || id.Session == nil {
		writeUnauthorized(w, "no active session")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SubjectID: id.Session.SubjectID,
		Email:     id.Session.Email,
		ExpiresAt: id.Session.ExpiresAt,
		Profile:   id.Profile,
	})
}

// handleUpdatePassword changes the caller's password. All refresh
// tokens are revoked, so both cookies clear and the caller signs in
// again with the new password.
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := gateway.IdentityFromContext(r.Context())
	if !ok || id.Session == nil {
		writeUnauthorized(w, "no active session")
		return
	}

	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !identity.IsValidPassword(req.New) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "password must be at least 8 characters")
		return
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	if err := s.provider.UpdatePassword(ctx, id.Session.SubjectID, req.Current, req.New); err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeUnauthorized(w, "current password is incorrect")
			return
		}
		s.logger.Error("password update failed", "error", err, "subject_id", id.Session.SubjectID)
		writeInternalError(w, "password update unavailable")
		return
	}

	// Every refresh token is revoked, so connections on other devices
	// must learn their session is gone.
	if s.hub != nil {
		s.hub.BroadcastSessionRevoked(id.Session.SubjectID, "password_changed")
	}

	prop := s.sessionPropagator(r)
	prop.Clear()
	prop.Apply(w)

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_updated"})
}

// lookupProfile fetches a profile, tolerating absence.
func (s *Server) lookupProfile(ctx context.Context, subjectID string) *profile.Profile {
	prof, err := s.profiles.Get(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, profile.ErrProfileNotFound) {
			s.logger.Warn("profile lookup failed", "error", err, "subject_id", subjectID)
		}
		return nil
	}
	return prof
}

// recordAudit writes an audit entry. Best effort: failures are logged,
// never surfaced.
func (s *Server) recordAudit(r *http.Request, entry *audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("audit write failed", "error", err, "action", entry.Action)
	}
}
