package server

import (
	"net/http"

	"llmgateway/internal/security"
	"llmgateway/pkg/domain"
)

type adminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) decodeAdminRequest(w http.ResponseWriter, r *http.Request) (adminRequest, bool) {
	var req adminRequest
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return req, false
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return req, false
	}
	return req, true
}

func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	req, ok := s.decodeAdminRequest(w, r)
	if !ok {
		return
	}
	admin, err := s.app.CreateAdmin(r.Context(), identity, req.Username, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, security.EventAdminWrite, security.OutcomeSuccess, "action", "create", "target", admin.Username)
	writeJSON(w, http.StatusCreated, admin)
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	admins, err := s.app.ListAdmins(r.Context(), identity)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeList(w, admins)
}

func (s *Server) handleDeleteAdmin(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	req, ok := s.decodeAdminRequest(w, r)
	if !ok {
		return
	}
	if err := s.app.DeleteAdmin(r.Context(), identity, req.Username); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, security.EventAdminWrite, security.OutcomeSuccess, "action", "delete", "target", req.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateAdminPassword(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	req, ok := s.decodeAdminRequest(w, r)
	if !ok {
		return
	}
	if err := s.app.UpdateAdminPassword(r.Context(), identity, req.Username, req.Password); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, security.EventAdminWrite, security.OutcomeSuccess, "action", "update_password", "target", req.Username)
	w.WriteHeader(http.StatusNoContent)
}
