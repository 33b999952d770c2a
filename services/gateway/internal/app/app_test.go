package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"llmgateway/internal/usertoken"
	"llmgateway/pkg/ai"
	"llmgateway/pkg/domain"
	"llmgateway/pkg/extract"
	"llmgateway/pkg/store"
	"llmgateway/services/gateway/internal/storage"
)

var (
	alice = domain.Identity{Principal: "alice", Role: domain.RoleAdmin}
	bob   = domain.Identity{Principal: "bob", Role: domain.RoleAdmin}
	root  = domain.Identity{Principal: "root", Role: domain.RoleSuperAdmin}
)

type upstreamRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type upstreamLog struct {
	mu       sync.Mutex
	requests []upstreamRequest
}

func (l *upstreamLog) all() []upstreamRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]upstreamRequest(nil), l.requests...)
}

type replyFunc func(http.ResponseWriter, upstreamRequest)

func newUpstream(t *testing.T, reply replyFunc) (string, *upstreamLog) {
	t.Helper()
	log := &upstreamLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req upstreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		log.mu.Lock()
		log.requests = append(log.requests, req)
		log.mu.Unlock()
		reply(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv.URL, log
}

func answer(text string) replyFunc {
	return func(w http.ResponseWriter, _ upstreamRequest) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"response": text, "done": true})
	}
}

func streamOf(chunks ...string) replyFunc {
	return func(w http.ResponseWriter, _ upstreamRequest) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, c := range chunks {
			line, _ := json.Marshal(map[string]any{"response": c, "done": false})
			fmt.Fprintf(w, "%s\n", line)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}
}

func failWith(status int, msg string) replyFunc {
	return func(w http.ResponseWriter, _ upstreamRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
	}
}

type testEnv struct {
	app      *App
	store    *store.MemoryStore
	files    *storage.FileStore
	upstream *upstreamLog
}

func newTestEnv(t *testing.T, reply replyFunc, mutate ...func(*Config)) *testEnv {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	tokens, err := usertoken.NewManager(usertoken.Config{Secret: "test-secret", Revoker: store.NewMemoryTokenRevoker()})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	url, log := newUpstream(t, reply)
	mem := store.NewMemoryStore()
	cfg := Config{
		Store:              mem,
		Generator:          ai.NewOllamaClient(url),
		Extractor:          extract.NewDefaultRegistry(extract.Options{TempDir: t.TempDir()}),
		Files:              files,
		Tokens:             tokens,
		Model:              "test-model",
		SuperadminUsername: "root",
		SuperadminPassword: "root-secret",
		// test pages are served from loopback
		HTTPClient:         &http.Client{},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	a.sleep = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return &testEnv{app: a, store: mem, files: files, upstream: log}
}

func (e *testEnv) upload(t *testing.T, owner domain.Identity, name, content string) domain.StoredDocument {
	t.Helper()
	doc, err := e.app.UploadDocument(context.Background(), owner, name, "", strings.NewReader(content))
	if err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
	return doc
}

// flakyStore fails the first n post-LLM inserts.
type flakyStore struct {
	*store.MemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return true
	}
	return false
}

func (f *flakyStore) InsertChatTurn(ctx context.Context, turn domain.ChatTurn) error {
	if f.fail() {
		return errors.New("connection reset")
	}
	return f.MemoryStore.InsertChatTurn(ctx, turn)
}

func (f *flakyStore) InsertSummary(ctx context.Context, rec domain.SummaryRecord) error {
	if f.fail() {
		return errors.New("connection reset")
	}
	return f.MemoryStore.InsertSummary(ctx, rec)
}

// lostAckStore writes the first post-LLM insert but reports it as failed,
// like a commit whose reply was lost on the wire.
type lostAckStore struct {
	*store.MemoryStore
	mu    sync.Mutex
	calls int
}

func (l *lostAckStore) ack(err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls == 1 && err == nil {
		return context.DeadlineExceeded
	}
	return err
}

func (l *lostAckStore) InsertChatTurn(ctx context.Context, turn domain.ChatTurn) error {
	return l.ack(l.MemoryStore.InsertChatTurn(ctx, turn))
}

func (l *lostAckStore) InsertSummary(ctx context.Context, rec domain.SummaryRecord) error {
	return l.ack(l.MemoryStore.InsertSummary(ctx, rec))
}

// memoryObjects is an in-memory ObjectStore.
type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: make(map[string][]byte)}
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = buf.Bytes()
	m.mu.Unlock()
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key, localPath string) error {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("object %s not found", key)
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected empty config to fail")
	}
}

func TestNewRejectsHalfConfiguredSuperadmin(t *testing.T) {
	env := newTestEnv(t, answer("ok"))
	cfg := Config{
		Store:              env.store,
		Generator:          env.app.generator,
		Extractor:          env.app.extractor,
		Files:              env.files,
		Tokens:             env.app.tokens,
		SuperadminUsername: "root",
	}
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected superadmin without password to fail")
	}
}

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 3, "hel"},
		{"hello", 10, "hello"},
		{"héllo", 2, "hé"},
		{"日本語テキスト", 3, "日本語"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncateRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
