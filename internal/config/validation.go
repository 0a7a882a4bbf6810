package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	validChunkers  = []string{"words", "sentence"}
	validEmbedders = []string{"tfidf", "openai", "gemini"}
	validStores    = []string{"sqlite", "memory", "qdrant"}
	validLLMs      = []string{"gemini", "openai", "extractive"}
	validCaches    = []string{"none", "memory", "redis"}
)

// Validate reports every configuration problem at once.
func (c *AppConfig) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed []string) {
		if !slices.Contains(allowed, value) {
			errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %v)", field, value, allowed))
		}
	}
	positive := func(field string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %d", field, v))
		}
	}

	oneOf("chunker.type", c.Chunker.Type, validChunkers)
	oneOf("embedder.type", c.Embedder.Type, validEmbedders)
	oneOf("vector_store.type", c.VectorStore.Type, validStores)
	oneOf("llm.provider", c.LLM.Provider, validLLMs)
	oneOf("cache.type", c.Cache.Type, validCaches)

	positive("server.port", c.Server.Port)
	positive("chunker.chunk_size_words", c.Chunker.ChunkSizeWords)
	positive("retrieval.n_results", c.Retrieval.NResults)
	positive("rate_limit.requests", c.RateLimit.Requests)
	positive("rate_limit.timeframe_secs", c.RateLimit.TimeframeSecs)
	positive("embedder.batch_size", c.Embedder.BatchSize)
	positive("embedder.concurrency", c.Embedder.Concurrency)

	if c.VectorStore.Collection == "" {
		errs = append(errs, errors.New("vector_store.collection: must not be empty"))
	}

	switch c.LLM.Provider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for llm.provider gemini"))
		}
	case "openai":
		// local OpenAI-compatible servers (Ollama, vLLM) take no key
		if c.OpenAIAPIKey == "" && (c.LLM.OpenAI == nil || strings.Contains(c.LLM.OpenAI.BaseURL, "api.openai.com")) {
			errs = append(errs, errors.New("an OpenAI API key is required for llm.provider openai"))
		}
	}
	if c.Embedder.Type == "gemini" && c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required for embedder.type gemini"))
	}

	return errors.Join(errs...)
}
