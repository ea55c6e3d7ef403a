package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/identity"
)

type challengeReq struct {
	InstallID string `json:"installId,omitempty"`
	PublicKey string `json:"publicKey"`
}

type challengeResp struct {
	InstallID      string    `json:"installId"`
	ChallengeToken string    `json:"challengeToken"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

type exchangeReq struct {
	InstallID      string `json:"installId"`
	PublicKey      string `json:"publicKey"`
	ChallengeToken string `json:"challengeToken"`
	Signature      string `json:"signature"`
}

type exchangeResp struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	if !s.rlChallengeIP.allow(clientIP(r)) {
		tooMany(w, 60)
		return
	}

	var req challengeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	pub, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil || len(pub) == 0 {
		writeError(w, http.StatusBadRequest, "publicKey must be base64")
		return
	}

	res, err := s.protocol.Challenge(r.Context(), req.InstallID, pub)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, challengeResp{
		InstallID:      res.InstallID,
		ChallengeToken: res.ChallengeToken,
		ExpiresAt:      res.ExpiresAt,
	})
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.rlExchangeIP.allow(ip) {
		tooMany(w, 60)
		return
	}

	var req exchangeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.InstallID == "" || req.PublicKey == "" || req.ChallengeToken == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "installId, publicKey, challengeToken and signature required")
		return
	}
	if !s.rlExchangeInstall.allow(req.InstallID) {
		tooMany(w, 60)
		return
	}

	pub, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "publicKey must be base64")
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "signature must be base64")
		return
	}

	res, err := s.protocol.Exchange(r.Context(), req.InstallID, pub, req.ChallengeToken, sig)
	if err != nil {
		if errors.Is(err, identity.ErrAuthentication) {
			s.audit.Append("exchange denied install=%s ip=%s", req.InstallID, ip)
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.audit.Append("exchange ok install=%s", req.InstallID)
	writeJSON(w, exchangeResp{AccessToken: res.AccessToken, ExpiresAt: res.ExpiresAt})
}
