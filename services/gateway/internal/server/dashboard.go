package server

import (
	"net/http"
	"strings"

	"llmgateway/pkg/domain"
	"llmgateway/services/gateway/internal/app"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.app.ListEntries(r.Context(), identity)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if entries == nil {
			entries = []domain.DashboardEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodPost:
		var in app.EntryInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		entry, err := s.app.CreateEntry(r.Context(), identity, in)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	default:
		methodNotAllowed(w)
	}
}

// handleDashboardEntry serves /api/dashboard/{id} and /api/dashboard/{id}/attach-file.
func (s *Server) handleDashboardEntry(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/dashboard/"), "/")
	id, sub, _ := strings.Cut(rest, "/")
	switch {
	case sub == "attach-file":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if err := s.app.AttachFile(r.Context(), identity, id, r.URL.Query().Get("filename")); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "attached"})
	case sub != "":
		writeError(w, http.StatusNotFound, "not found")
	case r.Method == http.MethodPut:
		var in app.EntryInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		entry, err := s.app.UpdateEntry(r.Context(), identity, id, in)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case r.Method == http.MethodDelete:
		if err := s.app.DeleteEntry(r.Context(), identity, id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}
