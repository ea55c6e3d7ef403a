package server

import (
	"context"
	"net/http"
	"strings"

	cr "github.com/AdithyaKothamasu/Sleep-lab/internal/crypto"
	"github.com/AdithyaKothamasu/Sleep-lab/internal/token"
)

type ctxKey int

const (
	claimsCtxKey ctxKey = iota + 1
	agentCtxKey
)

// agentSession is the resolved identity of an API-key request: the
// install and its unwrapped DEK, alive only for the request.
type agentSession struct {
	installID string
	dek       []byte
}

func claimsFrom(r *http.Request) *token.Claims {
	c, _ := r.Context().Value(claimsCtxKey).(*token.Claims)
	return c
}

func agentFrom(r *http.Request) *agentSession {
	a, _ := r.Context().Value(agentCtxKey).(*agentSession)
	return a
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(h, "Bearer "), true
}

// requireAccess gates a handler on a valid access token carrying the
// named operation in its scope.
func (s *Server) requireAccess(op string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.codec.Verify(raw)
		if err != nil {
			s.logger.Printf("%s %s: access token: %v", r.Method, r.URL.Path, err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if claims.Type != token.TypeAccess || !scopeAllows(claims.Extra["scope"], op) {
			s.logger.Printf("%s %s: token type/scope rejected", r.Method, r.URL.Path)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsCtxKey, claims)))
	})
}

// requireAgentKey gates a handler on a valid (non-revoked) API key and
// resolves it to the install plus its unwrapped DEK. The DEK is zeroed
// when the handler returns.
func (s *Server) requireAgentKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		rec, err := s.registry.Validate(r.Context(), raw)
		if err != nil {
			s.logger.Printf("%s %s: api key rejected", r.Method, r.URL.Path)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		dek, err := s.registry.UnwrapDEK(rec)
		if err != nil {
			// A stored key that no longer unwraps is a server-side key
			// mismatch, not a caller problem worth explaining.
			s.logger.Printf("%s %s: unwrap DEK install=%s: %v", r.Method, r.URL.Path, rec.InstallID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		defer cr.Zero(dek)

		sess := &agentSession{installID: rec.InstallID, dek: dek}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), agentCtxKey, sess)))
	})
}

func scopeAllows(scope, op string) bool {
	for _, f := range strings.Fields(scope) {
		if f == op {
			return true
		}
	}
	return false
}
