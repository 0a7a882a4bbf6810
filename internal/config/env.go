package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"qarag/internal/log"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none)
// into the process environment. Variables already set are left untouched
// and missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv applies environment overrides. Keys use the upper-case setting
// names found in existing .env files.
func applyEnv(cfg *AppConfig, lookup lookupFunc) {
	logger := log.WithComponent("config")

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			logger.Warn().
				Str("event", "config.env_invalid").
				Str("key", key).
				Str("value", v).
				Int("fallback", *dst).
				Msg("invalid integer in environment, keeping current value")
			return
		}
		*dst = n
	}

	str("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	str("GEMINI_MODEL_NAME", &cfg.LLM.Gemini.Model)
	str("DATA_DIR", &cfg.Data.Dir)
	str("CHROMA_PERSIST_DIR", &cfg.VectorStore.PersistDir)
	str("PERSIST_DIR", &cfg.VectorStore.PersistDir)
	str("COLLECTION_NAME", &cfg.VectorStore.Collection)
	num("N_RESULTS_RETRIEVAL", &cfg.Retrieval.NResults)
	num("CHUNK_SIZE_WORDS", &cfg.Chunker.ChunkSizeWords)
	num("RATE_LIMIT_REQUESTS", &cfg.RateLimit.Requests)
	num("RATE_LIMIT_TIMEFRAME_SECONDS", &cfg.RateLimit.TimeframeSecs)
	str("LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("EMBEDDING_MODEL_NAME"); ok && v != "" {
		switch {
		case cfg.Embedder.OpenAI != nil && cfg.Embedder.Type == "openai":
			cfg.Embedder.OpenAI.Model = v
		case cfg.Embedder.Gemini != nil && cfg.Embedder.Type == "gemini":
			cfg.Embedder.Gemini.Model = v
		default:
			logger.Debug().
				Str("key", "EMBEDDING_MODEL_NAME").
				Str("embedder", cfg.Embedder.Type).
				Msg("embedder has no model, ignoring")
		}
	}

	keyEnv := "OPENAI_API_KEY"
	if cfg.LLM.OpenAI != nil && cfg.LLM.OpenAI.APIKeyEnv != "" {
		keyEnv = cfg.LLM.OpenAI.APIKeyEnv
	}
	str(keyEnv, &cfg.OpenAIAPIKey)

	if cfg.Cache.Redis != nil {
		str("REDIS_ADDR", &cfg.Cache.Redis.Addr)
	}
	if cfg.VectorStore.Qdrant != nil {
		str("QDRANT_URL", &cfg.VectorStore.Qdrant.URL)
		str("QDRANT_API_KEY", &cfg.VectorStore.Qdrant.APIKey)
	}
}
