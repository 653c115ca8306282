package api

import (
	"net/http"

	"github.com/novadent/clinic-core/internal/gateway"
)

// pageResponse is the shell payload for an application page. The
// gateway has already admitted the request; the client shell renders
// the page from this payload plus the resolved identity.
type pageResponse struct {
	Page      string `json:"page"`
	SubjectID string `json:"subject_id,omitempty"`
	Email     string `json:"email,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	Role      string `json:"role,omitempty"`
}

// handlePage serves a shell page payload. Access control happened in
// the gateway; this handler only reflects the resolved identity.
func (s *Server) handlePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := pageResponse{Page: name}
		if id, ok := gateway.IdentityFromContext(r.Context()); ok {
			if id.Session != nil {
				resp.SubjectID = id.Session.SubjectID
				resp.Email = id.Session.Email
			}
			if id.Profile != nil {
				resp.TenantID = id.Profile.TenantID
				resp.Role = string(id.Profile.Role)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
