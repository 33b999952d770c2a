package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"llmgateway/pkg/domain"
)

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat streams the upstream answer as plain text. Headers are committed
// before the first chunk, so failures after that point are only logged.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !s.allowRate(w, s.llmLimiter, identity.Principal, "too many requests") {
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	emit := func(text string) error {
		if err := r.Context().Err(); err != nil {
			return err
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}
	turn, err := s.app.Chat(r.Context(), identity, req.Message, emit)
	if err != nil {
		logger(r).Error("chat turn not stored", "err", err)
		return
	}
	logger(r).Debug("chat turn stored", "turn_id", turn.ID, "answer_len", len(turn.Answer))
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	turns, err := s.app.History(r.Context(), identity, r.URL.Query().Get("principal"), limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if turns == nil {
		turns = []domain.ChatTurn{}
	}
	writeJSON(w, http.StatusOK, turns)
}
