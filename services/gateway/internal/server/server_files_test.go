package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"llmgateway/pkg/ai"
	"llmgateway/pkg/domain"
	"llmgateway/pkg/extract"
	"llmgateway/services/gateway/internal/app"
)

func TestUploadThenSummarize(t *testing.T) {
	h := newHarness(t, answer("short summary"))
	token := h.login(t, rootUser, rootPassword)

	resp := h.upload(t, token, "notes.txt", "a long document")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload expected 201, got %d", resp.StatusCode)
	}
	var doc domain.StoredDocument
	decode(t, resp, &doc)
	if doc.ChatID != "chat-1" || doc.OriginalName != "notes.txt" {
		t.Fatalf("doc = %+v", doc)
	}

	resp = h.do(t, http.MethodGet, "/api/files/list?chat_id=chat-1", token, nil)
	var list struct {
		Items []domain.StoredDocument `json:"items"`
		Count int                     `json:"count"`
	}
	decode(t, resp, &list)
	if list.Count != 1 || list.Items[0].StoredName != doc.StoredName {
		t.Fatalf("list = %+v", list)
	}

	resp = h.do(t, http.MethodPost, "/api/files/summarize", token, map[string]string{"filename": doc.StoredName})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summarize expected 200, got %d", resp.StatusCode)
	}
	var rec domain.SummaryRecord
	decode(t, resp, &rec)
	if rec.Summary != "short summary" || rec.ProcessedBy != "test-model" {
		t.Fatalf("record = %+v", rec)
	}

	resp = h.do(t, http.MethodGet, "/api/files/summary-history?filename="+doc.StoredName, token, nil)
	var history []domain.SummaryRecord
	decode(t, resp, &history)
	if len(history) != 1 {
		t.Fatalf("history = %d, want 1", len(history))
	}
}

func TestPipelineErrorStatuses(t *testing.T) {
	h := newHarness(t, answer("unused"))
	token := h.login(t, rootUser, rootPassword)

	resp := h.upload(t, token, "tool.exe", "MZ")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload expected 201, got %d", resp.StatusCode)
	}
	var doc domain.StoredDocument
	decode(t, resp, &doc)
	if resp := h.do(t, http.MethodPost, "/api/files/summarize", token, map[string]string{"filename": doc.StoredName}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unsupported format expected 400, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodPost, "/api/files/summarize", token, map[string]string{"filename": "missing.txt"}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing document expected 404, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodPost, "/api/files/process", token, map[string]string{"filename": doc.StoredName, "action": "detect_intent"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("detect_intent via process expected 400, got %d", resp.StatusCode)
	}
}

func TestSummarizeUpstreamFailureIsBadGateway(t *testing.T) {
	h := newHarness(t, failing(http.StatusInternalServerError))
	token := h.login(t, rootUser, rootPassword)
	var doc domain.StoredDocument
	decode(t, h.upload(t, token, "notes.txt", "text"), &doc)
	if resp := h.do(t, http.MethodPost, "/api/files/summarize", token, map[string]string{"filename": doc.StoredName}); resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("upstream failure expected 502, got %d", resp.StatusCode)
	}
}

func TestUploadTooLarge(t *testing.T) {
	h := newHarness(t, answer("unused"), func(cfg *Config) {
		cfg.MaxUploadBytes = 16
	})
	token := h.login(t, rootUser, rootPassword)
	big := make([]byte, 1<<20+64<<10)
	if resp := h.upload(t, token, "big.txt", string(big)); resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversize upload expected 413, got %d", resp.StatusCode)
	}
}

func TestDashboardRoutes(t *testing.T) {
	h := newHarness(t, answer("unused"))
	token := h.login(t, rootUser, rootPassword)

	resp := h.do(t, http.MethodPost, "/api/dashboard", token, map[string]string{"title": "Week 1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create expected 201, got %d", resp.StatusCode)
	}
	var entry domain.DashboardEntry
	decode(t, resp, &entry)

	var doc domain.StoredDocument
	decode(t, h.upload(t, token, "notes.txt", "text"), &doc)
	attach := fmt.Sprintf("/api/dashboard/%s/attach-file?filename=%s", entry.ID, doc.StoredName)
	if resp := h.do(t, http.MethodPost, attach, token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("attach expected 200, got %d", resp.StatusCode)
	}
	resp = h.do(t, http.MethodPut, "/api/dashboard/"+entry.ID, token, map[string]string{"title": "Week 1 (final)"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update expected 200, got %d", resp.StatusCode)
	}
	decode(t, resp, &entry)
	if entry.Title != "Week 1 (final)" || len(entry.FileIDs) != 1 {
		t.Fatalf("entry = %+v", entry)
	}
	if resp := h.do(t, http.MethodDelete, "/api/dashboard/not-an-id", token, nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid id expected 400, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodDelete, "/api/dashboard/"+entry.ID, token, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete expected 204, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodDelete, "/api/dashboard/"+entry.ID, token, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete expected 404, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"auth", &app.AuthError{Reason: "missing token"}, http.StatusUnauthorized},
		{"not found", &app.NotFoundError{Kind: "document", Key: "x"}, http.StatusNotFound},
		{"validation", &app.ValidationError{Field: "url", Reason: "bad"}, http.StatusBadRequest},
		{"empty", &app.EmptyContentError{Name: "a.txt"}, http.StatusBadRequest},
		{"unsupported", &extract.UnsupportedFormatError{Extension: ".exe"}, http.StatusBadRequest},
		{"extraction", &extract.ExtractionError{Format: ".pdf", Err: errors.New("broken")}, http.StatusBadRequest},
		{"exists", fmt.Errorf("create: %w", app.ErrAdminExists), http.StatusConflict},
		{"upstream", &app.UpstreamError{Status: 500, Err: &ai.StatusError{Code: 500}}, http.StatusBadGateway},
		{"upstream timeout", &app.UpstreamError{Err: &ai.UnavailableError{Err: errors.New("deadline"), Timeout: true}}, http.StatusGatewayTimeout},
		{"persist", &app.PersistError{Record: "summary", Attempts: 3, Err: errors.New("down")}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("%s: statusFor = %d, want %d", tc.name, got, tc.want)
		}
	}
}
