package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"qarag/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath, logLevel = "", ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, mutate func(*config.AppConfig)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Dir = filepath.Join(dir, "data")
	cfg.VectorStore.PersistDir = filepath.Join(dir, "vector_store")
	cfg.VectorStore.Collection = "test_qa"
	cfg.LLM.Provider = "extractive"
	if mutate != nil {
		mutate(cfg)
	}
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	require.NoError(t, os.MkdirAll(cfg.Data.Dir, 0o755))
	return path
}

func TestBuildDB(t *testing.T) {
	path := writeConfig(t, nil)
	dataDir := filepath.Join(filepath.Dir(path), "data")
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "qa.json"), []byte(`{
		"Prayer": {"questions": [
			{"question": "How many prayers?", "answer": "Five daily prayers.", "url": "https://x/1"},
			{"question": "how many prayers?", "answer": "duplicate", "url": ""}
		]}
	}`), 0o644))

	out, err := execute(t, "--config", path, "--log-level", "error", "build-db")
	require.NoError(t, err)
	assert.Contains(t, out, "Success! Built DB 'test_qa' with 1 chunks from 1 unique questions.")
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "vector_store", "vectors.db"))

	out, err = execute(t, "--config", path, "--log-level", "error", "ask", "how", "many", "prayers")
	require.NoError(t, err)
	assert.Contains(t, out, "Five daily prayers.")
	assert.Contains(t, out, "https://x/1")
}

func TestBuildDBNoData(t *testing.T) {
	path := writeConfig(t, nil)
	_, err := execute(t, "--config", path, "--log-level", "error", "build-db")
	assert.ErrorContains(t, err, "no usable Q&A data")
}

func TestAskWithoutBuild(t *testing.T) {
	path := writeConfig(t, nil)
	_, err := execute(t, "--config", path, "--log-level", "error", "ask", "anything")
	assert.ErrorContains(t, err, "did you run build-db")
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	out, err := execute(t, "init-config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	var cfg config.AppConfig
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "islamqa_collection_v1", cfg.VectorStore.Collection)

	_, err = execute(t, "init-config", path)
	assert.ErrorContains(t, err, "already exists")
	_, err = execute(t, "init-config", "--force", path)
	assert.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "qarag dev (commit: none, built: unknown)\n", out)
}
