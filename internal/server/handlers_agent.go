package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/agent"
)

// connectionDescriptor tells a newly-registered agent how to call the
// query surface.
type connectionDescriptor struct {
	BaseURL    string `json:"baseUrl"`
	AuthHeader string `json:"authHeader"`
	Scheme     string `json:"scheme"`
}

type registerResp struct {
	APIKey     string               `json:"apiKey"`
	Connection connectionDescriptor `json:"connectionDescriptor"`
	CreatedAt  time.Time            `json:"createdAt"`
}

type revokeResp struct {
	Revoked   bool   `json:"revoked"`
	InstallID string `json:"installId"`
}

func (s *Server) handleAgentRegister(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	rec, err := s.registry.Register(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Printf("register install=%s: %v", claims.Subject, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.audit.Append("agent register install=%s", claims.Subject)
	writeJSON(w, registerResp{
		APIKey: rec.APIKey,
		Connection: connectionDescriptor{
			BaseURL:    s.cfg.PublicBaseURL + "/v1/data",
			AuthHeader: "Authorization",
			Scheme:     "Bearer",
		},
		CreatedAt: rec.CreatedAt,
	})
}

func (s *Server) handleAgentRevoke(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	_, err := s.registry.Revoke(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, agent.ErrNoActiveKey) {
			writeJSON(w, revokeResp{Revoked: false, InstallID: claims.Subject})
			return
		}
		s.logger.Printf("revoke install=%s: %v", claims.Subject, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.audit.Append("agent revoke install=%s", claims.Subject)
	writeJSON(w, revokeResp{Revoked: true, InstallID: claims.Subject})
}
