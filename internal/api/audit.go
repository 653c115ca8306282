package api

import (
	"net/http"
	"strconv"

	"github.com/novadent/clinic-core/internal/audit"
	"github.com/novadent/clinic-core/internal/gateway"
)

// handleListAudit returns audit entries for the caller's clinic,
// newest first. Admin-restricted by route configuration.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit log not configured")
		return
	}

	id, ok := gateway.IdentityFromContext(r.Context())
	if !ok || id.Profile == nil {
		writeForbidden(w, "no tenant context")
		return
	}

	filter := audit.Filter{
		TenantID:  id.Profile.TenantID,
		Action:    r.URL.Query().Get("action"),
		SubjectID: r.URL.Query().Get("subject_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	ctx, cancel := s.upstreamCtx(r)
	defer cancel()

	result, err := s.audit.List(ctx, filter)
	if err != nil {
		s.logger.Error("audit list failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
