package server

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"llmgateway/pkg/ai"
	"llmgateway/pkg/domain"
)

func TestChatStreamsAndRecordsHistory(t *testing.T) {
	h := newHarness(t, chunks("Hel", "lo", "!"))
	token := h.login(t, rootUser, rootPassword)

	resp := h.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q, want text/plain", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Hello!" {
		t.Fatalf("body = %q, want %q", body, "Hello!")
	}

	resp = h.do(t, http.MethodGet, "/api/chat/history?limit=5", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history expected 200, got %d", resp.StatusCode)
	}
	var turns []domain.ChatTurn
	decode(t, resp, &turns)
	if len(turns) != 1 || turns[0].Question != "hi" || turns[0].Answer != "Hello!" {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestChatUpstreamFailureIsInBand(t *testing.T) {
	h := newHarness(t, failing(http.StatusInternalServerError))
	token := h.login(t, rootUser, rootPassword)
	resp := h.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(body), ai.ErrorMarkerPrefix) {
		t.Fatalf("body = %q, want error marker", body)
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	h := newHarness(t, answer("unused"))
	if resp := h.do(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "hi"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous chat expected 401, got %d", resp.StatusCode)
	}
	token := h.login(t, rootUser, rootPassword)
	if resp := h.do(t, http.MethodGet, "/api/chat", token, nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET chat expected 405, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodGet, "/api/chat/history?limit=ten", token, nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit expected 400, got %d", resp.StatusCode)
	}
}
