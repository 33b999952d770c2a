package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"llmgateway/pkg/domain"
	"llmgateway/pkg/extract"
	"llmgateway/pkg/store"
)

func TestSummarizeRoundTripTruncatesPrompt(t *testing.T) {
	env := newTestEnv(t, answer("a short summary"))
	content := strings.Repeat("abcdefghij", 500)
	doc := env.upload(t, alice, "notes.txt", content)

	rec, err := env.app.Summarize(context.Background(), alice, doc.StoredName)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	reqs := env.upstream.all()
	if len(reqs) != 1 {
		t.Fatalf("upstream calls = %d, want 1", len(reqs))
	}
	want := summaryPromptPrefix + content[:3000]
	if reqs[0].Prompt != want {
		t.Fatalf("prompt length = %d, want %d", len(reqs[0].Prompt), len(want))
	}
	if reqs[0].Stream {
		t.Fatalf("summaries must not stream")
	}
	if rec.Summary != "a short summary" || rec.ProcessedBy != "test-model" || rec.Action != domain.ActionSummarize {
		t.Fatalf("record = %+v", rec)
	}
	if rec.OriginalName != "notes.txt" || rec.StoredName != doc.StoredName {
		t.Fatalf("record names = %q, %q", rec.OriginalName, rec.StoredName)
	}
	history, _ := env.app.SummaryHistory(context.Background(), alice, doc.StoredName)
	if len(history) != 1 || history[0].ID != rec.ID {
		t.Fatalf("summary history = %+v", history)
	}
}

func TestSummarizeBlankDocumentIsEmptyContent(t *testing.T) {
	env := newTestEnv(t, answer("unused"))
	doc := env.upload(t, alice, "blank.txt", "  \n\t \n")

	_, err := env.app.Summarize(context.Background(), alice, doc.StoredName)
	var empty *EmptyContentError
	if !errors.As(err, &empty) {
		t.Fatalf("error = %v, want *EmptyContentError", err)
	}
	if n := len(env.upstream.all()); n != 0 {
		t.Fatalf("upstream calls = %d, want 0", n)
	}
	if recs, _ := env.store.ListSummaries(context.Background(), "alice", ""); len(recs) != 0 {
		t.Fatalf("no summary should be stored, got %d", len(recs))
	}
}

func TestSummarizeUnsupportedFormatNeverCallsUpstream(t *testing.T) {
	env := newTestEnv(t, answer("unused"))
	doc := env.upload(t, alice, "setup.exe", "MZ")

	_, err := env.app.Summarize(context.Background(), alice, doc.StoredName)
	var unsupported *extract.UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("error = %v, want *UnsupportedFormatError", err)
	}
	if unsupported.Extension != ".exe" {
		t.Fatalf("extension = %q, want .exe", unsupported.Extension)
	}
	if n := len(env.upstream.all()); n != 0 {
		t.Fatalf("upstream calls = %d, want 0", n)
	}
}

func TestSummarizeOtherOwnersDocumentIsNotFound(t *testing.T) {
	env := newTestEnv(t, answer("unused"))
	doc := env.upload(t, alice, "notes.txt", "private")

	_, err := env.app.Summarize(context.Background(), bob, doc.StoredName)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
}

func TestSummarizeUpstreamStatusIsUpstreamError(t *testing.T) {
	env := newTestEnv(t, failWith(http.StatusInternalServerError, "out of memory"))
	doc := env.upload(t, alice, "notes.txt", "content")

	_, err := env.app.Summarize(context.Background(), alice, doc.StoredName)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upstream.Status != http.StatusInternalServerError || upstream.Detail != "out of memory" {
		t.Fatalf("upstream error = %+v", upstream)
	}
	if upstream.Timeout() {
		t.Fatalf("status error is not a timeout")
	}
	if recs, _ := env.store.ListSummaries(context.Background(), "alice", ""); len(recs) != 0 {
		t.Fatalf("no summary should be stored, got %d", len(recs))
	}
}

func TestSummarizeUpstreamTimeout(t *testing.T) {
	slow := func(w http.ResponseWriter, r upstreamRequest) {
		time.Sleep(200 * time.Millisecond)
		answer("late")(w, r)
	}
	env := newTestEnv(t, slow, func(cfg *Config) {
		cfg.SummarizeTimeout = 20 * time.Millisecond
	})
	doc := env.upload(t, alice, "notes.txt", "content")

	_, err := env.app.Summarize(context.Background(), alice, doc.StoredName)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || !upstream.Timeout() {
		t.Fatalf("error = %v, want upstream timeout", err)
	}
}

func TestSummarizeFetchesMissingFileFromObjectStore(t *testing.T) {
	objects := newMemoryObjects()
	env := newTestEnv(t, answer("from mirror"), func(cfg *Config) {
		cfg.Objects = objects
	})
	doc := env.upload(t, alice, "notes.txt", "mirrored text")
	if err := env.files.Delete(doc.StoredName); err != nil {
		t.Fatalf("delete local copy: %v", err)
	}

	rec, err := env.app.Summarize(context.Background(), alice, doc.StoredName)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if rec.Summary != "from mirror" {
		t.Fatalf("summary = %q", rec.Summary)
	}
	if !strings.HasSuffix(env.upstream.all()[0].Prompt, "mirrored text") {
		t.Fatalf("prompt should carry mirrored content")
	}
}

func TestSummarizeMissingFileWithoutMirrorIsNotFound(t *testing.T) {
	env := newTestEnv(t, answer("unused"))
	doc := env.upload(t, alice, "notes.txt", "text")
	_ = env.files.Delete(doc.StoredName)

	_, err := env.app.Summarize(context.Background(), alice, doc.StoredName)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) || notFound.Kind != "file" {
		t.Fatalf("error = %v, want file NotFoundError", err)
	}
}

func TestTranslateUsesPersonaPromptAndRecordsOptions(t *testing.T) {
	env := newTestEnv(t, answer("Bonjour"))
	doc := env.upload(t, alice, "hello.md", "Hello there")

	rec, err := env.app.Translate(context.Background(), alice, doc.StoredName, "French", "Informal")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	prompt := env.upstream.all()[0].Prompt
	for _, want := range []string{"professional translator", "into French", "informal register", "Hello there"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt %q missing %q", prompt, want)
		}
	}
	if rec.Action != domain.ActionTranslate || rec.Options["targetLanguage"] != "French" || rec.Options["formality"] != "informal" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestTranslateDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t, answer("ok"))
	doc := env.upload(t, alice, "hello.txt", "Hola")

	rec, err := env.app.Translate(context.Background(), alice, doc.StoredName, "", "")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if rec.Options["targetLanguage"] != "English" || rec.Options["formality"] != "formal" {
		t.Fatalf("options = %v", rec.Options)
	}

	_, err = env.app.Translate(context.Background(), alice, doc.StoredName, "German", "pirate")
	var validation *ValidationError
	if !errors.As(err, &validation) || validation.Field != "formality" {
		t.Fatalf("error = %v, want formality ValidationError", err)
	}
}

func TestTranslateMissingDocumentWinsOverBadFormality(t *testing.T) {
	env := newTestEnv(t, answer("ok"))
	doc := env.upload(t, alice, "hello.txt", "Hola")

	for _, owner := range []domain.Identity{alice, bob} {
		name := "missing.txt"
		if owner == bob {
			name = doc.StoredName
		}
		_, err := env.app.Translate(context.Background(), owner, name, "German", "pirate")
		var notFound *NotFoundError
		if !errors.As(err, &notFound) || notFound.Kind != "document" {
			t.Fatalf("%s: error = %v, want document NotFoundError", owner.Principal, err)
		}
	}
	if reqs := env.upstream.all(); len(reqs) != 0 {
		t.Fatalf("upstream requests = %d, want 0", len(reqs))
	}
}

func TestProcessClassifiesInstructionFirst(t *testing.T) {
	reply := func(w http.ResponseWriter, r upstreamRequest) {
		if strings.HasPrefix(r.Prompt, "Classify") {
			answer(" Translate.\n")(w, r)
			return
		}
		answer("translated")(w, r)
	}
	env := newTestEnv(t, reply)
	doc := env.upload(t, alice, "doc.txt", "text to translate")

	rec, err := env.app.Process(context.Background(), alice, ProcessRequest{
		StoredName:     doc.StoredName,
		Instruction:    "please translate this",
		TargetLanguage: "Spanish",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec.Action != domain.ActionTranslate {
		t.Fatalf("action = %q, want translate", rec.Action)
	}
	if n := len(env.upstream.all()); n != 2 {
		t.Fatalf("upstream calls = %d, want 2", n)
	}
}

func TestProcessDefaultsToSummarize(t *testing.T) {
	env := newTestEnv(t, answer("summary"))
	doc := env.upload(t, alice, "doc.txt", "text")

	rec, err := env.app.Process(context.Background(), alice, ProcessRequest{StoredName: doc.StoredName})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec.Action != domain.ActionSummarize {
		t.Fatalf("action = %q, want summarize", rec.Action)
	}
}

func TestProcessRejectsDetectIntentAndUnknownActions(t *testing.T) {
	env := newTestEnv(t, answer("unused"))
	doc := env.upload(t, alice, "doc.txt", "text")
	for _, action := range []domain.Action{domain.ActionDetectIntent, "explode"} {
		_, err := env.app.Process(context.Background(), alice, ProcessRequest{StoredName: doc.StoredName, Action: action})
		var validation *ValidationError
		if !errors.As(err, &validation) || validation.Field != "action" {
			t.Fatalf("action %q error = %v, want action ValidationError", action, err)
		}
	}
	if n := len(env.upstream.all()); n != 0 {
		t.Fatalf("upstream calls = %d, want 0", n)
	}
}

func TestSummaryPersistenceRetried(t *testing.T) {
	var flaky *flakyStore
	env := newTestEnv(t, answer("summary"), func(cfg *Config) {
		flaky = &flakyStore{MemoryStore: cfg.Store.(*store.MemoryStore), failures: 1}
		cfg.Store = flaky
	})
	doc := env.upload(t, alice, "doc.txt", "text")
	if _, err := env.app.Summarize(context.Background(), alice, doc.StoredName); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if flaky.calls != 2 {
		t.Fatalf("insert calls = %d, want 2", flaky.calls)
	}
}

func TestSummaryLostAckReturnsRecord(t *testing.T) {
	var lost *lostAckStore
	env := newTestEnv(t, answer("summary"), func(cfg *Config) {
		lost = &lostAckStore{MemoryStore: cfg.Store.(*store.MemoryStore)}
		cfg.Store = lost
	})
	doc := env.upload(t, alice, "doc.txt", "text")
	rec, err := env.app.Summarize(context.Background(), alice, doc.StoredName)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	stored, _ := env.store.ListSummaries(context.Background(), "alice", doc.StoredName)
	if len(stored) != 1 || stored[0].ID != rec.ID {
		t.Fatalf("stored summaries = %+v, want one with id %q", stored, rec.ID)
	}
}

func TestPipelineOutcome(t *testing.T) {
	cases := map[string]error{
		"success":            nil,
		"not_found":          &NotFoundError{Kind: "document"},
		"empty_content":      &EmptyContentError{},
		"unsupported_format": &extract.UnsupportedFormatError{Extension: ".exe"},
		"extraction_error":   &extract.ExtractionError{Format: "pdf", Err: errors.New("bad")},
		"upstream_error":     &UpstreamError{Status: 500},
		"persist_error":      &PersistError{Record: "summary"},
		"error":              errors.New("other"),
	}
	for want, err := range cases {
		if got := pipelineOutcome(err); got != want {
			t.Fatalf("pipelineOutcome(%v) = %q, want %q", err, got, want)
		}
	}
}
