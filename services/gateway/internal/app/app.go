package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"llmgateway/internal/metrics"
	"llmgateway/internal/usertoken"
	"llmgateway/pkg/ai"
	"llmgateway/pkg/extract"
	objectstore "llmgateway/pkg/storage"
	"llmgateway/pkg/store"
	"llmgateway/services/gateway/internal/storage"
)

const (
	defaultModel            = "llama3.2"
	defaultStreamTimeout    = 60 * time.Second
	defaultSummarizeTimeout = 60 * time.Second
	defaultIntentTimeout    = 10 * time.Second
	defaultBlogTimeout      = 15 * time.Second
	defaultMaxPromptChars   = 3000
	defaultTargetLanguage   = "English"
	defaultFormality        = "formal"
	defaultPersistAttempts  = 3
	defaultPersistBackoff   = 200 * time.Millisecond
	defaultPersistMaxDelay  = 2 * time.Second
	defaultMaxUploadBytes   = 50 << 20
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store     store.Store
	Generator ai.Generator
	Extractor *extract.Registry
	Files     *storage.FileStore
	// Objects mirrors uploads when set.
	Objects objectstore.ObjectStore
	Tokens  *usertoken.Manager
	Metrics *metrics.Metrics

	Model              string
	SuperadminUsername string
	SuperadminPassword string

	StreamTimeout    time.Duration
	SummarizeTimeout time.Duration
	IntentTimeout    time.Duration
	BlogTimeout      time.Duration

	MaxPromptChars        int
	DefaultTargetLanguage string
	DefaultFormality      string

	PersistAttempts int
	PersistBackoff  time.Duration
	PersistMaxDelay time.Duration

	MaxUploadBytes    int64
	AllowedExtensions []string

	// HTTPClient fetches pages for URL summarization. The default refuses
	// non-public addresses.
	HTTPClient *http.Client
}

// App is the core application service wiring storage, extraction and the LLM upstream.
type App struct {
	store     store.Store
	generator ai.Generator
	extractor *extract.Registry
	files     *storage.FileStore
	objects   objectstore.ObjectStore
	tokens    *usertoken.Manager
	metrics   *metrics.Metrics

	model              string
	superadminUsername string
	superadminPassword string

	streamTimeout    time.Duration
	summarizeTimeout time.Duration
	intentTimeout    time.Duration
	blogTimeout      time.Duration

	maxPromptChars        int
	defaultTargetLanguage string
	defaultFormality      string

	persistAttempts int
	persistBackoff  time.Duration
	persistMaxDelay time.Duration

	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	httpClient        *http.Client

	now   func() time.Time
	sleep func(time.Duration) <-chan time.Time
}

// New validates cfg and fills defaults.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator required")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("extractor required")
	}
	if cfg.Files == nil {
		return nil, errors.New("file store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token manager required")
	}
	superUser := strings.TrimSpace(cfg.SuperadminUsername)
	if (superUser == "") != (cfg.SuperadminPassword == "") {
		return nil, fmt.Errorf("superadmin username and password must be set together")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newPageClient()
	}
	a := &App{
		store:                 cfg.Store,
		generator:             cfg.Generator,
		extractor:             cfg.Extractor,
		files:                 cfg.Files,
		objects:               cfg.Objects,
		tokens:                cfg.Tokens,
		metrics:               cfg.Metrics,
		model:                 model,
		superadminUsername:    superUser,
		superadminPassword:    cfg.SuperadminPassword,
		streamTimeout:         orDuration(cfg.StreamTimeout, defaultStreamTimeout),
		summarizeTimeout:      orDuration(cfg.SummarizeTimeout, defaultSummarizeTimeout),
		intentTimeout:         orDuration(cfg.IntentTimeout, defaultIntentTimeout),
		blogTimeout:           orDuration(cfg.BlogTimeout, defaultBlogTimeout),
		maxPromptChars:        cfg.MaxPromptChars,
		defaultTargetLanguage: orString(cfg.DefaultTargetLanguage, defaultTargetLanguage),
		defaultFormality:      orString(cfg.DefaultFormality, defaultFormality),
		persistAttempts:       cfg.PersistAttempts,
		persistBackoff:        orDuration(cfg.PersistBackoff, defaultPersistBackoff),
		persistMaxDelay:       orDuration(cfg.PersistMaxDelay, defaultPersistMaxDelay),
		maxUploadBytes:        cfg.MaxUploadBytes,
		allowedExtensions:     normalizeExtensions(cfg.AllowedExtensions),
		httpClient:            httpClient,
		now:                   time.Now,
		sleep:                 time.After,
	}
	if a.maxPromptChars <= 0 {
		a.maxPromptChars = defaultMaxPromptChars
	}
	if a.persistAttempts <= 0 {
		a.persistAttempts = defaultPersistAttempts
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = defaultMaxUploadBytes
	}
	return a, nil
}

// Model returns the upstream model name recorded as processedBy.
func (a *App) Model() string {
	return a.model
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orString(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

// normalizeExtensions returns nil for an empty list, which allows every extension.
func normalizeExtensions(exts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// truncateRunes keeps at most n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
