package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) routes() {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Routes are registered on the root router with full paths instead of a
	// /v1 PathPrefix subrouter: with a subrouter, gorilla/mux loses the
	// method-mismatch state while trying sibling routes, so method-mismatched
	// requests get 404 instead of 405.
	r.HandleFunc("/v1/auth/challenge", s.handleChallenge).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/exchange", s.handleExchange).Methods(http.MethodPost)

	r.Handle("/v1/agent/register", s.requireAccess("agent", s.handleAgentRegister)).Methods(http.MethodPost)
	r.Handle("/v1/agent/revoke", s.requireAccess("agent", s.handleAgentRevoke)).Methods(http.MethodDelete)

	r.Handle("/v1/data/sync", s.requireAccess("sync", s.handleSync)).Methods(http.MethodPost)

	// Fixed sleep paths go before the {date} catch-all.
	r.Handle("/v1/data/sleep", s.requireAgentKey(s.handleSleepRecent)).Methods(http.MethodGet)
	r.Handle("/v1/data/sleep/range", s.requireAgentKey(s.handleSleepRange)).Methods(http.MethodGet)
	r.Handle("/v1/data/sleep/stats", s.requireAgentKey(s.handleSleepStats)).Methods(http.MethodGet)
	r.Handle("/v1/data/sleep/{date}", s.requireAgentKey(s.handleSleepByDate)).Methods(http.MethodGet)
	r.Handle("/v1/data/events", s.requireAgentKey(s.handleEvents)).Methods(http.MethodGet)

	r.Handle("/v1/patterns/analyze", s.requireAccess("patterns", s.handleAnalyze)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
