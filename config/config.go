// Package config loads edumesh settings: defaults, then a YAML or TOML file,
// then a .env file, then environment variables. The result is validated
// before it is returned.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/edumesh/logging"
)

type Config struct {
	App       AppConfig       `yaml:"app" toml:"app"`
	Model     ModelConfig     `yaml:"model" toml:"model"`
	Retrieval RetrievalConfig `yaml:"retrieval" toml:"retrieval"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Memory    MemoryConfig    `yaml:"memory" toml:"memory"`
	Logging   logging.Config  `yaml:"logging" toml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
}

type AppConfig struct {
	Name string `yaml:"name" toml:"name" validate:"required"`
	// Retention is "summary" or "raw".
	Retention     string `yaml:"retention" toml:"retention" validate:"oneof=summary raw"`
	DefaultUserID string `yaml:"default_user_id" toml:"default_user_id" validate:"required"`
	MaxModelCalls int    `yaml:"max_model_calls" toml:"max_model_calls" validate:"gte=0"`
	Streaming     bool   `yaml:"streaming" toml:"streaming"`
	// EngineID identifies a managed agent deployment. Informational only.
	EngineID string `yaml:"engine_id" toml:"engine_id"`
}

type ModelConfig struct {
	Provider    string  `yaml:"provider" toml:"provider" validate:"oneof=gemini openai anthropic mock"`
	Name        string  `yaml:"name" toml:"name"`
	Temperature float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens" validate:"gte=0"`
	APIKey      string  `yaml:"api_key" toml:"api_key"`
	Project     string  `yaml:"project" toml:"project"`
	Location    string  `yaml:"location" toml:"location"`
}

type RetrievalConfig struct {
	Backend           string  `yaml:"backend" toml:"backend" validate:"oneof=local pinecone"`
	Corpus            string  `yaml:"corpus" toml:"corpus" validate:"required"`
	TopK              int     `yaml:"top_k" toml:"top_k" validate:"gt=0"`
	DistanceThreshold float64 `yaml:"distance_threshold" toml:"distance_threshold" validate:"gte=0,lte=2"`
	// CorpusFile is a JSON corpus loaded by the local backend.
	CorpusFile     string `yaml:"corpus_file" toml:"corpus_file"`
	PineconeAPIKey string `yaml:"pinecone_api_key" toml:"pinecone_api_key"`
	PineconeIndex  string `yaml:"pinecone_index" toml:"pinecone_index" validate:"required_if=Backend pinecone"`
	PineconeHost   string `yaml:"pinecone_host" toml:"pinecone_host"`
	// Embedder is "gemini" or "openai".
	Embedder       string `yaml:"embedder" toml:"embedder" validate:"oneof=gemini openai"`
	EmbeddingModel string `yaml:"embedding_model" toml:"embedding_model"`
}

type SessionConfig struct {
	Backend  string        `yaml:"backend" toml:"backend" validate:"oneof=memory sqlite redis"`
	Path     string        `yaml:"path" toml:"path" validate:"required_if=Backend sqlite"`
	URL      string        `yaml:"url" toml:"url" validate:"required_if=Backend redis"`
	TTL      time.Duration `yaml:"ttl" toml:"ttl" validate:"gte=0"`
	CacheTTL time.Duration `yaml:"cache_ttl" toml:"cache_ttl" validate:"gte=0"`
}

type MemoryConfig struct {
	Backend string `yaml:"backend" toml:"backend" validate:"oneof=memory sqlite"`
	Path    string `yaml:"path" toml:"path" validate:"required_if=Backend sqlite"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" toml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`
}

// Default returns a Config with all defaults applied. It runs fully in
// process: mock model, local corpus and in-memory stores.
func Default() Config {
	return Config{
		App: AppConfig{
			Name:          "edumesh",
			Retention:     "summary",
			DefaultUserID: "anonymous",
			MaxModelCalls: 20,
		},
		Model: ModelConfig{Provider: "mock", Temperature: 0.2, MaxTokens: 2048, Location: "us-central1"},
		Retrieval: RetrievalConfig{
			Backend:           "local",
			Corpus:            "education_textbooks_unified",
			TopK:              10,
			DistanceThreshold: 0.5,
			Embedder:          "gemini",
		},
		Session:   SessionConfig{Backend: "memory", Path: "sessions.db"},
		Memory:    MemoryConfig{Backend: "memory", Path: "memory.db"},
		Logging:   logging.DefaultConfig(),
		Telemetry: TelemetryConfig{ServiceName: "edumesh"},
		Server:    ServerConfig{Addr: ":8080", ReadTimeout: 30 * time.Second, WriteTimeout: 2 * time.Minute},
	}
}

// LoadOptions tunes Load.
type LoadOptions struct {
	// EnvFiles are read with godotenv before overrides are applied. Missing
	// files are ignored. Defaults to ".env".
	EnvFiles []string
}

// Load reads config: defaults -> file -> .env -> env vars (env wins). An
// empty path skips the file step. The file format follows the extension:
// .yaml/.yml or .toml.
func Load(path string, optFns ...func(o *LoadOptions)) (Config, error) {
	opts := LoadOptions{EnvFiles: []string{".env"}}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := Default()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode yaml config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode toml config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Model.Project, "GOOGLE_CLOUD_PROJECT")
	setString(&cfg.Model.Location, "GOOGLE_CLOUD_LOCATION")
	setString(&cfg.Model.Name, "AGENT_MODEL")
	setString(&cfg.App.EngineID, "AGENT_ENGINE_ID")
	setString(&cfg.Session.URL, "REDIS_URL")
	setString(&cfg.Retrieval.PineconeAPIKey, "PINECONE_API_KEY")

	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case "gemini":
			setString(&cfg.Model.APIKey, "GOOGLE_API_KEY")
		case "openai":
			setString(&cfg.Model.APIKey, "OPENAI_API_KEY")
		case "anthropic":
			setString(&cfg.Model.APIKey, "ANTHROPIC_API_KEY")
		}
	}

	setString(&cfg.Model.Provider, "EDUMESH_MODEL_PROVIDER")
	setString(&cfg.Model.APIKey, "EDUMESH_MODEL_API_KEY")
	setString(&cfg.App.Retention, "EDUMESH_RETENTION")
	setString(&cfg.Retrieval.Backend, "EDUMESH_RETRIEVAL_BACKEND")
	setString(&cfg.Retrieval.CorpusFile, "EDUMESH_CORPUS_FILE")
	setString(&cfg.Session.Backend, "EDUMESH_SESSION_BACKEND")
	setString(&cfg.Session.Path, "EDUMESH_SESSION_PATH")
	setString(&cfg.Memory.Backend, "EDUMESH_MEMORY_BACKEND")
	setString(&cfg.Logging.Level, "EDUMESH_LOG_LEVEL")
	setString(&cfg.Server.Addr, "EDUMESH_ADDR")

	if v := os.Getenv("EDUMESH_TELEMETRY_ENABLED"); v == "true" || v == "1" {
		cfg.Telemetry.Enabled = true
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
