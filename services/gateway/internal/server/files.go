package server

import (
	"errors"
	"net/http"

	"llmgateway/pkg/domain"
	"llmgateway/services/gateway/internal/app"
)

// multipart framing allowance on top of the file limit
const formOverheadBytes = 1 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+formOverheadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	doc, err := s.app.UploadDocument(r.Context(), identity, header.Filename, r.FormValue("chat_id"), file)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.app.ListDocuments(r.Context(), identity, r.URL.Query().Get("chat_id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeList(w, docs)
}

func (s *Server) handleSummaryHistory(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	recs, err := s.app.SummaryHistory(r.Context(), identity, r.URL.Query().Get("filename"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if recs == nil {
		recs = []domain.SummaryRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type processRequest struct {
	Filename       string `json:"filename"`
	Action         string `json:"action"`
	Instruction    string `json:"instruction"`
	TargetLanguage string `json:"targetLanguage"`
	Formality      string `json:"formality"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	req, ok := s.pipelineRequest(w, r, identity)
	if !ok {
		return
	}
	s.writeRecord(w, r, func() (domain.SummaryRecord, error) {
		return s.app.Process(r.Context(), identity, app.ProcessRequest{
			StoredName:     req.Filename,
			Action:         domain.Action(req.Action),
			Instruction:    req.Instruction,
			TargetLanguage: req.TargetLanguage,
			Formality:      req.Formality,
		})
	})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	req, ok := s.pipelineRequest(w, r, identity)
	if !ok {
		return
	}
	s.writeRecord(w, r, func() (domain.SummaryRecord, error) {
		return s.app.Summarize(r.Context(), identity, req.Filename)
	})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	req, ok := s.pipelineRequest(w, r, identity)
	if !ok {
		return
	}
	s.writeRecord(w, r, func() (domain.SummaryRecord, error) {
		return s.app.Translate(r.Context(), identity, req.Filename, req.TargetLanguage, req.Formality)
	})
}

type intentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleDetectIntent(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req intentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !s.allowRate(w, s.llmLimiter, identity.Principal, "too many requests") {
		return
	}
	intent, err := s.app.DetectIntent(r.Context(), identity, req.Text)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

type scrapeRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleBlogScrape(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !s.allowRate(w, s.llmLimiter, identity.Principal, "too many requests") {
		return
	}
	s.writeRecord(w, r, func() (domain.SummaryRecord, error) {
		return s.app.SummarizeURL(r.Context(), identity, req.URL)
	})
}

// pipelineRequest decodes a document pipeline body and applies the LLM quota.
func (s *Server) pipelineRequest(w http.ResponseWriter, r *http.Request, identity domain.Identity) (processRequest, bool) {
	var req processRequest
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return req, false
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return req, false
	}
	if !s.allowRate(w, s.llmLimiter, identity.Principal, "too many requests") {
		return req, false
	}
	return req, true
}

func (s *Server) writeRecord(w http.ResponseWriter, r *http.Request, run func() (domain.SummaryRecord, error)) {
	rec, err := run()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
