package server

import (
	"net/http"
	"strings"

	"llmgateway/internal/security"
	"llmgateway/pkg/domain"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, s.loginLimiter, s.loginKey(r), "too many login attempts") {
		s.audit(r, security.EventLogin, security.OutcomeRateLimited)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	session, err := s.app.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.audit(r, security.EventLogin, security.OutcomeFail, "username", strings.TrimSpace(req.Username))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, security.EventLogin, security.OutcomeSuccess, "principal", session.Identity.Principal, "role", session.Identity.Role)
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	if err := s.app.Logout(token); err != nil {
		s.audit(r, security.EventLogout, security.OutcomeFail)
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, security.EventLogout, security.OutcomeSuccess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}
