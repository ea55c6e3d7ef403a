package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/agent"
	cr "github.com/AdithyaKothamasu/Sleep-lab/internal/crypto"
	"github.com/AdithyaKothamasu/Sleep-lab/internal/records"
)

type syncReq struct {
	Days []records.DayPayload `json:"days"`
}

type syncResp struct {
	Synced   int       `json:"synced"`
	SyncedAt time.Time `json:"syncedAt"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req syncReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	rec, err := s.registry.FindByInstall(r.Context(), claims.Subject)
	if err != nil {
		// Authenticated but never registered an agent key: there is no
		// DEK to encrypt under yet.
		writeError(w, http.StatusForbidden, "agent registration required")
		return
	}
	dek, err := s.registry.UnwrapDEK(rec)
	if err != nil {
		s.logger.Printf("sync install=%s: unwrap DEK: %v", claims.Subject, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer cr.Zero(dek)

	n, syncedAt, err := s.data.Sync(r.Context(), claims.Subject, dek, req.Days)
	if err != nil {
		s.dataError(w, r, err)
		return
	}
	writeJSON(w, syncResp{Synced: n, SyncedAt: syncedAt})
}

func (s *Server) handleSleepRecent(w http.ResponseWriter, r *http.Request) {
	sess := agentFrom(r)
	days, err := daysParam(r, 7)
	if err != nil {
		writeError(w, http.StatusBadRequest, "days must be an integer")
		return
	}
	out, err := s.data.Recent(r.Context(), sess.installID, sess.dek, days)
	if err != nil {
		s.dataError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"days": out, "count": len(out)})
}

func (s *Server) handleSleepByDate(w http.ResponseWriter, r *http.Request) {
	sess := agentFrom(r)
	date := mux.Vars(r)["date"]

	day, err := s.data.ByDate(r.Context(), sess.installID, sess.dek, date)
	if err != nil {
		s.dataError(w, r, err)
		return
	}
	writeJSON(w, day)
}

func (s *Server) handleSleepRange(w http.ResponseWriter, r *http.Request) {
	sess := agentFrom(r)
	q := r.URL.Query()

	out, err := s.data.RangeQuery(r.Context(), sess.installID, sess.dek, q.Get("from"), q.Get("to"))
	if err != nil {
		s.dataError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"days": out, "count": len(out)})
}

func (s *Server) handleSleepStats(w http.ResponseWriter, r *http.Request) {
	sess := agentFrom(r)
	days, err := daysParam(r, 7)
	if err != nil {
		writeError(w, http.StatusBadRequest, "days must be an integer")
		return
	}
	stats, err := s.data.StatsWindow(r.Context(), sess.installID, sess.dek, days)
	if err != nil {
		s.dataError(w, r, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := agentFrom(r)
	days, err := daysParam(r, 7)
	if err != nil {
		writeError(w, http.StatusBadRequest, "days must be an integer")
		return
	}
	out, err := s.data.Events(r.Context(), sess.installID, sess.dek, days)
	if err != nil {
		s.dataError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"days": out, "count": len(out)})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	writeJSON(w, s.analyzer.Analyze(r.Context(), payload))
}

// dataError maps service failures onto the status-code contract. Crypto
// failures stay opaque: never partial plaintext, never a reason.
func (s *Server) dataError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, records.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, records.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, cr.ErrDecrypt), errors.Is(err, cr.ErrUnwrap):
		s.logger.Printf("%s %s: crypto failure: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	case errors.Is(err, agent.ErrNoActiveKey):
		writeError(w, http.StatusForbidden, "agent registration required")
	default:
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
