package embedding

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"qarag/internal/domain"
)

// StatePath is where a collection's embedder vocabulary is persisted.
func StatePath(persistDir, collection string) string {
	return filepath.Join(persistDir, collection+".embedder.json")
}

// SaveState writes the embedder state atomically. Stateless embedders are a no-op.
func SaveState(e domain.Embedder, path string) error {
	se, ok := e.(domain.StatefulEmbedder)
	if !ok {
		return nil
	}
	data, err := se.State()
	if err != nil {
		return fmt.Errorf("%s: export state: %w", e.Name(), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

// LoadState restores a previously saved state. Stateless embedders are a no-op.
func LoadState(e domain.Embedder, path string) error {
	se, ok := e.(domain.StatefulEmbedder)
	if !ok {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: no saved state at %s (run build-db): %w", e.Name(), path, domain.ErrNotPrepared)
	}
	if err != nil {
		return err
	}
	return se.Restore(data)
}
