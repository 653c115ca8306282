package api

import (
	"encoding/json"
	"net/http"

	"github.com/novadent/clinic-core/internal/gateway"
	"github.com/novadent/clinic-core/internal/profile"
)

// updateProfileRequest is the request body for PATCH /profile. Only the
// display name is self-service; role changes go through staff management.
type updateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
}

// handleGetProfile returns the signed-in caller's profile.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := gateway.IdentityFromContext(r.Context())
	if !ok || id.Session == nil {
		writeUnauthorized(w, "no active session")
		return
	}
	if id.Profile == nil {
		writeNotFound(w, "profile not provisioned")
		return
	}
	writeJSON(w, http.StatusOK, id.Profile)
}

// handleUpdateProfile applies a partial update to the caller's own profile.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := gateway.IdentityFromContext(r.Context())
	if !ok || id.Session == nil {
		writeUnauthorized(w, "no active session")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	updated, err := s.profiles.Update(ctx, id.Session.SubjectID, profile.Patch{
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.logger.Error("profile update failed", "error", err, "subject_id", id.Session.SubjectID)
		writeInternalError(w, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
