package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is read when Load is called with an empty path.
const ConfigPath = "config.yaml"

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreBackend  string `yaml:"storeBackend"`
	DatabaseURL   string `yaml:"databaseURL"`
	MongoURI      string `yaml:"mongoURI"`
	MongoDatabase string `yaml:"mongoDatabase"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SecretKey          string `yaml:"secretKey"`
	JWTIssuer          string `yaml:"jwtIssuer"`
	JWTLeeway          string `yaml:"jwtLeeway"`
	SessionTTL         string `yaml:"sessionTTL"`
	SuperadminUsername string `yaml:"superadminUsername"`
	SuperadminPassword string `yaml:"superadminPassword"`

	OllamaBaseURL         string `yaml:"ollamaBaseURL"`
	Model                 string `yaml:"model"`
	MaxConcurrentLLM      int    `yaml:"maxConcurrentLLM"`
	StreamTimeout         string `yaml:"streamTimeout"`
	SummarizeTimeout      string `yaml:"summarizeTimeout"`
	IntentTimeout         string `yaml:"intentTimeout"`
	BlogTimeout           string `yaml:"blogTimeout"`
	MaxPromptChars        int    `yaml:"maxPromptChars"`
	DefaultTargetLanguage string `yaml:"defaultTargetLanguage"`
	DefaultFormality      string `yaml:"defaultFormality"`

	PersistAttempts int    `yaml:"persistAttempts"`
	PersistBackoff  string `yaml:"persistBackoff"`
	PersistMaxDelay string `yaml:"persistMaxDelay"`

	UploadDir         string   `yaml:"uploadDir"`
	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	PdftotextCommand  string   `yaml:"pdftotextCommand"`
	OCRCommand        string   `yaml:"ocrCommand"`
	OCRLanguage       string   `yaml:"ocrLanguage"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	LLMRatePerSecond        float64  `yaml:"llmRatePerSecond"`
	LLMBurst                int      `yaml:"llmBurst"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	CORSAllowOrigin         string   `yaml:"corsAllowOrigin"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if strings.TrimSpace(cfg.StoreBackend) == "" {
		cfg.StoreBackend = StoreMemory
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString(&cfg.Port, "GATEWAY_PORT")
	setString(&cfg.LogLevel, "GATEWAY_LOG_LEVEL")
	setString(&cfg.StoreBackend, "GATEWAY_STORE_BACKEND")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.MongoURI, "MONGO_URI")
	setString(&cfg.MongoDatabase, "GATEWAY_MONGO_DATABASE")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.SecretKey, "SECRET_KEY")
	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.JWTLeeway, "JWT_LEEWAY")
	setString(&cfg.SessionTTL, "GATEWAY_SESSION_TTL")
	setString(&cfg.SuperadminUsername, "SUPERADMIN_USERNAME")
	setString(&cfg.SuperadminPassword, "SUPERADMIN_PASSWORD")
	setString(&cfg.OllamaBaseURL, "OLLAMA_BASE_URL")
	setString(&cfg.Model, "GATEWAY_MODEL")
	setString(&cfg.UploadDir, "GATEWAY_UPLOAD_DIR")
	setString(&cfg.MinioEndpoint, "GATEWAY_MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "GATEWAY_MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "GATEWAY_MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "GATEWAY_MINIO_BUCKET")
	setString(&cfg.CORSAllowOrigin, "GATEWAY_CORS_ALLOW_ORIGIN")
	if v := os.Getenv("GATEWAY_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("GATEWAY_MAX_CONCURRENT_LLM"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.MaxConcurrentLLM = n
		}
	}
	if v := os.Getenv("GATEWAY_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("GATEWAY_LLM_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.LLMRatePerSecond = f
		}
	}
	if v := os.Getenv("GATEWAY_MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("GATEWAY_ALLOWED_EXTENSIONS"); v != "" {
		cfg.AllowedExtensions = splitCSV(v)
	}
	if v := os.Getenv("GATEWAY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return errors.New("config: secretKey is required (set in config.yaml or SECRET_KEY)")
	}
	if strings.TrimSpace(cfg.OllamaBaseURL) == "" {
		return errors.New("config: ollamaBaseURL is required (set in config.yaml or OLLAMA_BASE_URL)")
	}
	if (cfg.SuperadminUsername == "") != (cfg.SuperadminPassword == "") {
		return errors.New("config: superadminUsername and superadminPassword must be set together")
	}
	switch cfg.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres store (set in config.yaml or DATABASE_URL)")
		}
	case StoreMongo:
		if strings.TrimSpace(cfg.MongoURI) == "" {
			return errors.New("config: mongoURI is required for the mongo store (set in config.yaml or MONGO_URI)")
		}
	default:
		return fmt.Errorf("config: unknown storeBackend %q (memory, postgres or mongo)", cfg.StoreBackend)
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.LLMRatePerSecond < 0 || cfg.LLMBurst < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 || cfg.MaxPromptChars < 0 || cfg.MaxConcurrentLLM < 0 || cfg.PersistAttempts < 0 {
		return errors.New("config: sizes and counts must be >= 0")
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	durations := map[string]string{
		"jwtLeeway":        cfg.JWTLeeway,
		"sessionTTL":       cfg.SessionTTL,
		"streamTimeout":    cfg.StreamTimeout,
		"summarizeTimeout": cfg.SummarizeTimeout,
		"intentTimeout":    cfg.IntentTimeout,
		"blogTimeout":      cfg.BlogTimeout,
		"persistBackoff":   cfg.PersistBackoff,
		"persistMaxDelay":  cfg.PersistMaxDelay,
	}
	for name, value := range durations {
		if _, err := ParseDuration(name, value); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses an optional duration string. Empty means zero, which
// callers treat as "use the default".
func ParseDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}
