package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
	AllowedOrigins      string `yaml:"allowed_origins,omitempty"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DataConfig locates the Q&A source files.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// ChunkerConfig configures how answers are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	ChunkSizeWords    int    `yaml:"chunk_size_words"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder.
type GeminiEmbedderConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type         string                `yaml:"type"`
	BatchSize    int                   `yaml:"batch_size"`
	Concurrency  int                   `yaml:"concurrency"`
	TimeoutSecs  int                   `yaml:"timeout_secs"`
	RequestsPerS float64               `yaml:"requests_per_second"`
	OpenAI       *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini       *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type"`
	PersistDir string        `yaml:"persist_dir"`
	Collection string        `yaml:"collection"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// RetrievalConfig controls how much context reaches the generator.
type RetrievalConfig struct {
	NResults int `yaml:"n_results"`
}

// GeminiLLMConfig configures the hosted Gemini generator.
type GeminiLLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OpenAILLMConfig configures an OpenAI-compatible chat generator.
type OpenAILLMConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// LLMConfig selects the answer generator.
type LLMConfig struct {
	Provider          string           `yaml:"provider"`
	Temperature       *float64         `yaml:"temperature,omitempty"`
	MaxOutputTokens   int              `yaml:"max_output_tokens"`
	TimeoutSecs       int              `yaml:"timeout_secs"`
	RequestsPerS      float64          `yaml:"requests_per_second"`
	BreakerThreshold  int              `yaml:"breaker_threshold"`
	BreakerResetSecs  int              `yaml:"breaker_reset_secs"`
	ExtractiveMaxSent int              `yaml:"extractive_max_sentences"`
	Gemini            *GeminiLLMConfig `yaml:"gemini,omitempty"`
	OpenAI            *OpenAILLMConfig `yaml:"openai,omitempty"`
}

// RateLimitConfig limits /ask requests per client IP.
type RateLimitConfig struct {
	Requests      int `yaml:"requests"`
	TimeframeSecs int `yaml:"timeframe_secs"`
}

// Window returns the rate limit window.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.TimeframeSecs) * time.Second
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig selects the answer cache.
type CacheConfig struct {
	Type    string       `yaml:"type"`
	TTLSecs int          `yaml:"ttl_secs"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Data        DataConfig        `yaml:"data"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	LLM         LLMConfig         `yaml:"llm"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Cache       CacheConfig       `yaml:"cache"`
	Log         LogConfig         `yaml:"log"`

	// Secrets are only ever taken from the environment or .env.
	GeminiAPIKey string `yaml:"-"`
	OpenAIAPIKey string `yaml:"-"`
}

// Load reads a config from a specified path. If the file does not exist, defaults are used.
// Environment overrides are applied and the result is validated.
func Load(path string) (*AppConfig, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/qarag/config.yaml.
// If neither exists the defaults are used. The returned path is empty in that case.
func LoadDefault() (*AppConfig, string, error) {
	candidates := []string{"config.yaml"}
	if userPath, err := DefaultUserConfigPath(); err == nil {
		candidates = append(candidates, userPath)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	cfg, err := Load("")
	return cfg, "", err
}

// Save writes the config to the given path atomically, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath returns ~/.config/qarag/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "qarag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func readFile(path string) (*AppConfig, error) {
	if path == "" {
		return &AppConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &AppConfig{}, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 10
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "words"
	}
	if cfg.Chunker.ChunkSizeWords == 0 {
		cfg.Chunker.ChunkSizeWords = 300
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 4
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedder.Type == "gemini" {
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.BaseURL == "" {
			cfg.Embedder.Gemini.BaseURL = geminiBaseURL
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.PersistDir == "" {
		cfg.VectorStore.PersistDir = "vector_store"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "islamqa_collection_v1"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.Retrieval.NResults == 0 {
		cfg.Retrieval.NResults = 5
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.Temperature == nil {
		t := 0.2
		cfg.LLM.Temperature = &t
	}
	if cfg.LLM.MaxOutputTokens == 0 {
		cfg.LLM.MaxOutputTokens = 1024
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.LLM.BreakerThreshold == 0 {
		cfg.LLM.BreakerThreshold = 5
	}
	if cfg.LLM.BreakerResetSecs == 0 {
		cfg.LLM.BreakerResetSecs = 30
	}
	if cfg.LLM.ExtractiveMaxSent == 0 {
		cfg.LLM.ExtractiveMaxSent = 4
	}
	if cfg.LLM.Gemini == nil {
		cfg.LLM.Gemini = &GeminiLLMConfig{}
	}
	if cfg.LLM.Gemini.BaseURL == "" {
		cfg.LLM.Gemini.BaseURL = geminiBaseURL
	}
	if cfg.LLM.Gemini.Model == "" {
		cfg.LLM.Gemini.Model = "gemini-1.5-flash-latest"
	}
	if cfg.LLM.Provider == "openai" {
		if cfg.LLM.OpenAI == nil {
			cfg.LLM.OpenAI = &OpenAILLMConfig{}
		}
		if cfg.LLM.OpenAI.BaseURL == "" {
			cfg.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.OpenAI.APIKeyEnv == "" {
			cfg.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.OpenAI.Model == "" {
			cfg.LLM.OpenAI.Model = "gpt-4o-mini"
		}
	}

	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 20
	}
	if cfg.RateLimit.TimeframeSecs == 0 {
		cfg.RateLimit.TimeframeSecs = 60
	}

	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "none"
	}
	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = 3600
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.Redis == nil {
		cfg.Cache.Redis = &RedisConfig{Addr: "localhost:6379"}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
