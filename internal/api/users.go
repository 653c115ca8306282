package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/novadent/clinic-core/internal/gateway"
	"github.com/novadent/clinic-core/internal/identity"
	"github.com/novadent/clinic-core/internal/profile"
)

// createUserRequest is the request body for POST /users.
type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// updateUserRequest is the request body for PATCH /users/{id}.
type updateUserRequest struct {
	Role        *string `json:"role,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// userResponse combines the account and profile views of a staff member.
type userResponse struct {
	SubjectID   string `json:"subject_id"`
	Email       string `json:"email,omitempty"`
	IsActive    bool   `json:"is_active"`
	TenantID    string `json:"tenant_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// callerTenant resolves the tenant the signed-in admin belongs to.
// Staff management is always scoped to the caller's own clinic.
func callerTenant(r *http.Request) (string, bool) {
	id, ok := gateway.IdentityFromContext(r.Context())
	if !ok || id.Profile == nil {
		return "", false
	}
	return id.Profile.TenantID, true
}

// handleListUsers returns all staff profiles in the caller's clinic.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(r)
	if !ok {
		writeForbidden(w, "no tenant context")
		return
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	profiles, err := s.profiles.ListByTenant(ctx, tenantID)
	if err != nil {
		s.logger.Error("failed to list staff", "error", err, "tenant_id", tenantID)
		writeInternalError(w, "failed to list staff")
		return
	}

	users := make([]userResponse, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		resp := userResponse{
			SubjectID:   p.SubjectID,
			TenantID:    p.TenantID,
			Role:        string(p.Role),
			DisplayName: p.DisplayName,
		}
		if s.accounts != nil {
			if acc, accErr := s.accounts.GetByID(ctx, p.SubjectID); accErr == nil {
				resp.Email = acc.Email
				resp.IsActive = acc.IsActive
			}
		}
		users = append(users, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser provisions a staff account and profile in the
// caller's clinic. No session is issued; the new staff member signs in
// with the supplied password.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(r)
	if !ok {
		writeForbidden(w, "no tenant context")
		return
	}
	if s.accounts == nil {
		writeInternalError(w, "account store not configured")
		return
	}

	var req createUserRequest
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

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hash failed", "error", err)
		writeInternalError(w, "failed to create staff account")
		return
	}

	account := &identity.Account{
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, identity.ErrEmailExists) {
			writeConflict(w, "email already registered")
			return
		}
		s.logger.Error("account creation failed", "error", err)
		writeInternalError(w, "failed to create staff account")
		return
	}

	prof := &profile.Profile{
		SubjectID:   account.ID,
		TenantID:    tenantID,
		Role:        role,
		DisplayName: req.DisplayName,
	}
	if err := s.profiles.Create(ctx, prof); err != nil {
		// Remove the orphaned account so the email can be retried.
		if delErr := s.accounts.Delete(ctx, account.ID); delErr != nil {
			s.logger.Warn("account rollback failed after profile provisioning error", "error", delErr)
		}
		s.logger.Error("profile provisioning failed", "error", err, "subject_id", account.ID)
		writeInternalError(w, "failed to provision staff profile")
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		SubjectID:   account.ID,
		Email:       account.Email,
		IsActive:    true,
		TenantID:    tenantID,
		Role:        string(role),
		DisplayName: req.DisplayName,
	})
}

// handleGetUser returns one staff member in the caller's clinic.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(r)
	if !ok {
		writeForbidden(w, "no tenant context")
		return
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	subjectID := chi.URLParam(r, "id")
	prof, err := s.profiles.Get(ctx, subjectID)
	if err != nil || prof.TenantID != tenantID {
		writeNotFound(w, "staff member not found")
		return
	}

	resp := userResponse{
		SubjectID:   prof.SubjectID,
		TenantID:    prof.TenantID,
		Role:        string(prof.Role),
		DisplayName: prof.DisplayName,
	}
	if s.accounts != nil {
		if acc, accErr := s.accounts.GetByID(ctx, subjectID); accErr == nil {
			resp.Email = acc.Email
			resp.IsActive = acc.IsActive
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpdateUser patches a staff member's role, display name, or
// active flag. Tenant membership is immutable.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(r)
	if !ok {
		writeForbidden(w, "no tenant context")
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	subjectID := chi.URLParam(r, "id")
	prof, err := s.profiles.Get(ctx, subjectID)
	if err != nil || prof.TenantID != tenantID {
		writeNotFound(w, "staff member not found")
		return
	}

	patch := profile.Patch{DisplayName: req.DisplayName}
	if req.Role != nil {
		role := profile.Role(*req.Role)
		if !profile.IsValidRole(role) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown role")
			return
		}
		patch.Role = &role
	}

	updated, err := s.profiles.Update(ctx, subjectID, patch)
	if err != nil {
		s.logger.Error("staff update failed", "error", err, "subject_id", subjectID)
		writeInternalError(w, "failed to update staff member")
		return
	}

	resp := userResponse{
		SubjectID:   updated.SubjectID,
		TenantID:    updated.TenantID,
		Role:        string(updated.Role),
		DisplayName: updated.DisplayName,
	}

	if req.IsActive != nil && s.accounts != nil {
		if err := s.accounts.SetActive(ctx, subjectID, *req.IsActive); err != nil {
			s.logger.Error("active flag update failed", "error", err, "subject_id", subjectID)
			writeInternalError(w, "failed to update staff member")
			return
		}
		// Deactivation revokes sessions: notify connected clients.
		if !*req.IsActive && s.hub != nil {
			s.hub.BroadcastSessionRevoked(subjectID, "account_deactivated")
		}
	}
	if s.accounts != nil {
		if acc, accErr := s.accounts.GetByID(ctx, subjectID); accErr == nil {
			resp.Email = acc.Email
			resp.IsActive = acc.IsActive
		}
	}
	if s.hub != nil {
		s.hub.BroadcastTenant(tenantID, ChannelProfileUpdated, resp)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteUser removes a staff member's profile and account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(r)
	if !ok {
		writeForbidden(w, "no tenant context")
		return
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	subjectID := chi.URLParam(r, "id")
	prof, err := s.profiles.Get(ctx, subjectID)
	if err != nil || prof.TenantID != tenantID {
		writeNotFound(w, "staff member not found")
		return
	}

	if err := s.profiles.Delete(ctx, subjectID); err != nil {
		s.logger.Error("profile delete failed", "error", err, "subject_id", subjectID)
		writeInternalError(w, "failed to remove staff member")
		return
	}
	if s.accounts != nil {
		if err := s.accounts.Delete(ctx, subjectID); err != nil {
			s.logger.Warn("account delete failed", "error", err, "subject_id", subjectID)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastSessionRevoked(subjectID, "account_deleted")
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
