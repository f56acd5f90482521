// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"`     // json|console
	Sampling bool   `yaml:"sampling" env:"LOG_SAMPLING"` // enable sampling in prod
}

type AIConfig struct {
	GeminiKey       string            `yaml:"gemini_key" env:"GOOGLE_API_KEY"`
	GeminiURL       string            `yaml:"gemini_url" env:"GEMINI_BASE_URL"`
	DefaultModel    string            `yaml:"default_model" env:"GEMINI_MODEL"`
	OpenAIKey       string            `yaml:"openai_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string            `yaml:"openai_base_url" env:"OPENAI_BASE_URL"` // OpenAI-compatible gateways
	OpenAIModel     string            `yaml:"openai_model" env:"OPENAI_MODEL"`
	DefaultProvider string            `yaml:"default_provider" env:"AI_DEFAULT_PROVIDER"` // gemini|openai
	ModelProviders  map[string]string `yaml:"model_providers"`                            // model -> provider
	ConcurrentLimit int               `yaml:"concurrent_limit" env:"AI_CONCURRENT_LIMIT"` // max concurrent AI calls
	MaxOutputTokens int               `yaml:"max_output_tokens" env:"AI_MAX_OUTPUT_TOKENS"`
	DeleteAfterUse  bool              `yaml:"delete_after_use" env:"AI_DELETE_AFTER_USE"` // drop remote files once analyzed
}

type PollerConfig struct {
	Interval time.Duration `yaml:"interval" env:"POLL_INTERVAL"`
	Timeout  time.Duration `yaml:"timeout" env:"POLL_TIMEOUT"`
	MaxPolls int           `yaml:"max_polls" env:"POLL_MAX_POLLS"`
	// MaxTransient is nil when unset; an explicit 0 disables retries.
	MaxTransient *int `yaml:"max_transient" env:"POLL_MAX_TRANSIENT"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver" env:"STORE_DRIVER"` // sqlite|postgres
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns" env:"DATABASE_MAX_CONNS"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL"`
}

type APIConfig struct {
	Port           int      `yaml:"port" env:"API_PORT"`
	JWTSecret      string   `yaml:"jwt_secret" env:"API_JWT_SECRET"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"API_ALLOWED_ORIGINS"`
	UploadDir      string   `yaml:"upload_dir" env:"UPLOAD_DIR"`
	MaxUploadMB    int64    `yaml:"max_upload_mb" env:"API_MAX_UPLOAD_MB"`
	// RateLimit is requests per minute per subject on /v1; 0 disables it.
	// It needs redis.
	RateLimit int `yaml:"rate_limit" env:"API_RATE_LIMIT"`
}

type WorkerConfig struct {
	Count int           `yaml:"count" env:"WORKER_COUNT"`
	Tick  time.Duration `yaml:"tick" env:"WORKER_TICK"`
	// StaleAfter is how long a record may sit in 'processing' without an
	// update before it is requeued. It is kept above poller.timeout.
	StaleAfter time.Duration `yaml:"stale_after" env:"WORKER_STALE_AFTER"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token" env:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `yaml:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`
}

type AgentConfig struct {
	MaxSteps int `yaml:"max_steps" env:"AGENT_MAX_STEPS"`
}

// ManualsConfig drives manual ingestion and lookup. Chunks always live in
// a sqlite file, whatever store.driver says.
type ManualsConfig struct {
	Path         string  `yaml:"path" env:"MANUALS_DB"`
	EmbedModel   string  `yaml:"embed_model" env:"EMBED_MODEL"`
	ChunkWords   int     `yaml:"chunk_words" env:"MANUALS_CHUNK_WORDS"`
	ChunkOverlap int     `yaml:"chunk_overlap" env:"MANUALS_CHUNK_OVERLAP"`
	MinScore     float64 `yaml:"min_score" env:"MANUALS_MIN_SCORE"` // cosine floor for recall; -1 keeps every best match
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	AI       AIConfig       `yaml:"ai"`
	Poller   PollerConfig   `yaml:"poller"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	API      APIConfig      `yaml:"api"`
	Worker   WorkerConfig   `yaml:"worker"`
	Notify   NotifyConfig   `yaml:"notify"`
	Agent    AgentConfig    `yaml:"agent"`
	Manuals  ManualsConfig  `yaml:"manuals"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the optional YAML file at path, loads a .env file when
// present, overlays environment variables and applies defaults.
// A missing file is fine when optional is true.
func LoadConfig(path string, dev, optional bool) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case optional && errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gemini-2.5-flash"
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.AI.DefaultProvider == "" {
		cfg.AI.DefaultProvider = "gemini"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 8192
	}
	if cfg.Poller.Interval <= 0 {
		cfg.Poller.Interval = 2 * time.Second
	}
	if cfg.Poller.Timeout <= 0 {
		cfg.Poller.Timeout = 10 * time.Minute
	}
	if cfg.Poller.MaxTransient == nil {
		n := 3
		cfg.Poller.MaxTransient = &n
	} else if *cfg.Poller.MaxTransient < 0 {
		*cfg.Poller.MaxTransient = 0
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "opsvision.db"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if len(cfg.API.AllowedOrigins) == 0 {
		cfg.API.AllowedOrigins = []string{"*"}
	}
	if cfg.API.UploadDir == "" {
		cfg.API.UploadDir = filepath.Join(os.TempDir(), "opsvision-uploads")
	}
	if cfg.API.MaxUploadMB <= 0 {
		cfg.API.MaxUploadMB = 512
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.Tick <= 0 {
		cfg.Worker.Tick = time.Second
	}
	if cfg.Worker.StaleAfter <= cfg.Poller.Timeout {
		cfg.Worker.StaleAfter = 2 * cfg.Poller.Timeout
	}
	if cfg.Agent.MaxSteps <= 0 {
		cfg.Agent.MaxSteps = 6
	}
	if cfg.Manuals.Path == "" {
		cfg.Manuals.Path = filepath.Join(filepath.Dir(cfg.Store.SQLitePath), "opsvision-manuals.db")
	}
	if cfg.Manuals.EmbedModel == "" {
		cfg.Manuals.EmbedModel = "gemini-embedding-001"
	}
	if cfg.Manuals.ChunkWords <= 0 {
		cfg.Manuals.ChunkWords = 120
	}
	if cfg.Manuals.ChunkOverlap < 0 || cfg.Manuals.ChunkOverlap >= cfg.Manuals.ChunkWords {
		cfg.Manuals.ChunkOverlap = 0
	}
	if cfg.Manuals.MinScore == 0 {
		cfg.Manuals.MinScore = 0.6
	}
}

// ValidateMedia checks what the video and image flows need.
func (cfg *Config) ValidateMedia() error {
	if cfg.AI.GeminiKey == "" {
		return errors.New("ai.gemini_key (GOOGLE_API_KEY) is required")
	}
	return nil
}

// ValidateServer checks what cmd/app needs on top of ValidateMedia.
func (cfg *Config) ValidateServer() error {
	if err := cfg.ValidateMedia(); err != nil {
		return err
	}
	switch cfg.Store.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Database.URL == "" {
			return errors.New("database.url is required for store.driver=postgres")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", cfg.Store.Driver)
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID == 0 {
		return errors.New("notify.telegram_chat_id is required when notify.telegram_token is set")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
