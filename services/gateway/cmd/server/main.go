package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"llmgateway/internal/metrics"
	"llmgateway/internal/ratelimit"
	"llmgateway/internal/security"
	"llmgateway/internal/usertoken"
	"llmgateway/internal/util"
	"llmgateway/pkg/ai"
	"llmgateway/pkg/extract"
	objectstore "llmgateway/pkg/storage"
	"llmgateway/pkg/store"
	"llmgateway/services/gateway/internal/app"
	"llmgateway/services/gateway/internal/config"
	"llmgateway/services/gateway/internal/server"
	"llmgateway/services/gateway/internal/storage"
)

const defaultSessionTTL = 6 * time.Hour

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	durations, err := parseDurations(cfg)
	if err != nil {
		log.Fatalf("failed to parse durations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer closeStore()

	var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
	if cfg.RedisAddr != "" {
		revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword, durations.sessionTTL)
	}
	tokens, err := usertoken.NewManager(usertoken.Config{
		Secret:  cfg.SecretKey,
		Issuer:  cfg.JWTIssuer,
		TTL:     durations.sessionTTL,
		Leeway:  durations.jwtLeeway,
		Revoker: revoker,
	})
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}

	m := metrics.New()
	extractor := extract.NewDefaultRegistry(extract.Options{
		PdftotextCommand: cfg.PdftotextCommand,
		OCRCommand:       cfg.OCRCommand,
		OCRLanguage:      cfg.OCRLanguage,
	})
	extractor.Observe(m.Extraction)
	generator := ai.NewOllamaClient(cfg.OllamaBaseURL,
		ai.WithMaxConcurrent(cfg.MaxConcurrentLLM),
		ai.WithObserver(m.Upstream),
	)

	uploadDir := cfg.UploadDir
	if uploadDir == "" {
		uploadDir = "uploaded_files"
	}
	files, err := storage.NewFileStore(uploadDir)
	if err != nil {
		log.Fatalf("failed to init upload dir: %v", err)
	}
	var objects objectstore.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := objectstore.NewMinioStore(objectstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to init minio: %v", err)
		}
		objects = minioStore
	}

	appCore, err := app.New(app.Config{
		Store:                 dataStore,
		Generator:             generator,
		Extractor:             extractor,
		Files:                 files,
		Objects:               objects,
		Tokens:                tokens,
		Metrics:               m,
		Model:                 cfg.Model,
		SuperadminUsername:    cfg.SuperadminUsername,
		SuperadminPassword:    cfg.SuperadminPassword,
		StreamTimeout:         durations.streamTimeout,
		SummarizeTimeout:      durations.summarizeTimeout,
		IntentTimeout:         durations.intentTimeout,
		BlogTimeout:           durations.blogTimeout,
		MaxPromptChars:        cfg.MaxPromptChars,
		DefaultTargetLanguage: cfg.DefaultTargetLanguage,
		DefaultFormality:      cfg.DefaultFormality,
		PersistAttempts:       cfg.PersistAttempts,
		PersistBackoff:        durations.persistBackoff,
		PersistMaxDelay:       durations.persistMaxDelay,
		MaxUploadBytes:        cfg.MaxUploadBytes,
		AllowedExtensions:     cfg.AllowedExtensions,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trusted proxies: %v", err)
	}
	httpServer, err := server.New(server.Config{
		App:             appCore,
		Metrics:         m,
		LoginLimiter:    loginLimiter(cfg, logger),
		LLMLimiter:      ratelimit.NewLocalLimiter(cfg.LLMRatePerSecond, cfg.LLMBurst),
		Alerter:         security.NewAuditAlerter(cfg.RedisAddr, cfg.RedisPassword, "llmgateway:alert"),
		TrustedProxies:  trusted,
		CORSAllowOrigin: cfg.CORSAllowOrigin,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "store", cfg.StoreBackend, "model", appCore.Model())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
	slog.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.FileConfig) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case config.StoreMongo:
		s, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Close(closeCtx)
		}, nil
	default:
		slog.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
}

// loginLimiter prefers the shared Redis window and falls back to a
// per-process bucket when Redis is not configured.
func loginLimiter(cfg config.FileConfig, logger *slog.Logger) ratelimit.Limiter {
	perMinute := cfg.LoginRateLimitPerMinute
	if perMinute == 0 {
		perMinute = 10
	}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "llmgateway:ratelimit:login", perMinute, time.Minute)
		if err == nil {
			return limiter
		}
		logger.Warn("redis login limiter unavailable, using local limiter", "err", err)
	}
	return ratelimit.NewLocalLimiter(float64(perMinute)/60, perMinute)
}

type parsedDurations struct {
	sessionTTL       time.Duration
	jwtLeeway        time.Duration
	streamTimeout    time.Duration
	summarizeTimeout time.Duration
	intentTimeout    time.Duration
	blogTimeout      time.Duration
	persistBackoff   time.Duration
	persistMaxDelay  time.Duration
}

func parseDurations(cfg config.FileConfig) (parsedDurations, error) {
	var out parsedDurations
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"sessionTTL", cfg.SessionTTL, &out.sessionTTL},
		{"jwtLeeway", cfg.JWTLeeway, &out.jwtLeeway},
		{"streamTimeout", cfg.StreamTimeout, &out.streamTimeout},
		{"summarizeTimeout", cfg.SummarizeTimeout, &out.summarizeTimeout},
		{"intentTimeout", cfg.IntentTimeout, &out.intentTimeout},
		{"blogTimeout", cfg.BlogTimeout, &out.blogTimeout},
		{"persistBackoff", cfg.PersistBackoff, &out.persistBackoff},
		{"persistMaxDelay", cfg.PersistMaxDelay, &out.persistMaxDelay},
	}
	for _, f := range fields {
		d, err := config.ParseDuration(f.name, f.value)
		if err != nil {
			return out, err
		}
		*f.dst = d
	}
	if out.sessionTTL == 0 {
		out.sessionTTL = defaultSessionTTL
	}
	return out, nil
}

