package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, "islamqa_collection_v1", cfg.VectorStore.Collection)
	assert.Equal(t, 5, cfg.Retrieval.NResults)
	assert.Equal(t, 300, cfg.Chunker.ChunkSizeWords)
	assert.Equal(t, 20, cfg.RateLimit.Requests)
	assert.Equal(t, 60, cfg.RateLimit.TimeframeSecs)
	assert.Equal(t, "gemini-1.5-flash-latest", cfg.LLM.Gemini.Model)
	assert.Equal(t, "k", cfg.GeminiAPIKey)
}

func TestLoadRequiresGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
data:
  dir: /srv/qa
retrieval:
  n_results: 8
llm:
  provider: extractive
vector_store:
  type: memory
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("N_RESULTS_RETRIEVAL", "3")
	t.Setenv("COLLECTION_NAME", "custom")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/qa", cfg.Data.Dir)
	assert.Equal(t, 3, cfg.Retrieval.NResults, "env wins over file")
	assert.Equal(t, "custom", cfg.VectorStore.Collection)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
}

func TestApplyEnvInvalidIntegerKeepsValue(t *testing.T) {
	cfg := Default()
	env := map[string]string{"CHUNK_SIZE_WORDS": "lots", "RATE_LIMIT_REQUESTS": "7"}
	applyEnv(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Equal(t, 300, cfg.Chunker.ChunkSizeWords)
	assert.Equal(t, 7, cfg.RateLimit.Requests)
}

func TestApplyEnvEmbeddingModel(t *testing.T) {
	cfg := &AppConfig{Embedder: EmbedderConfig{Type: "gemini"}}
	applyConfigDefaults(cfg)
	env := map[string]string{"EMBEDDING_MODEL_NAME": "embedding-001"}
	applyEnv(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Equal(t, "embedding-001", cfg.Embedder.Gemini.Model)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "extractive"
	cfg.Embedder.Type = "bert"
	cfg.Retrieval.NResults = -1
	cfg.Cache.Type = "disk"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "embedder.type")
	assert.Contains(t, msg, "retrieval.n_results")
	assert.Contains(t, msg, "cache.type")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.LLM.Provider = "extractive"
	cfg.Server.Port = 9001
	cfg.GeminiAPIKey = "secret"
	require.NoError(t, Save(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret", "secrets must never be written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, loaded.Server.Port)
	assert.Equal(t, "extractive", loaded.LLM.Provider)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("QARAG_TEST_DOTENV=from-file\n"), 0o600))

	t.Setenv("QARAG_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("QARAG_TEST_DOTENV"))
	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("QARAG_TEST_DOTENV"))
}

func TestApplyEnvPersistDirAlias(t *testing.T) {
	cfg := Default()
	env := map[string]string{"CHROMA_PERSIST_DIR": "/var/lib/chroma"}
	applyEnv(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Equal(t, "/var/lib/chroma", cfg.VectorStore.PersistDir)

	env["PERSIST_DIR"] = "/var/lib/qarag"
	applyEnv(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Equal(t, "/var/lib/qarag", cfg.VectorStore.PersistDir, "PERSIST_DIR wins")
}

func TestLoadKeepsZeroTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: extractive\n  temperature: 0\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.Zero(t, *cfg.LLM.Temperature)

	cfg = Default()
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM.Temperature, 1e-9)
}

func TestValidateOpenAIKeyOnlyForHostedAPI(t *testing.T) {
	cfg := &AppConfig{LLM: LLMConfig{Provider: "openai", OpenAI: &OpenAILLMConfig{BaseURL: "http://localhost:11434/v1", Model: "llama3"}}}
	applyConfigDefaults(cfg)
	assert.NoError(t, cfg.Validate(), "local servers need no key")

	cfg.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI API key")
}
