package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"qarag/internal/domain"
	"qarag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Vectors are expected to be L2-normalised.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.chunks = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("%w: got %d, collection has %d", domain.ErrDimensionMismatch, len(v), s.dimension)
		}
	}
	index := make(map[string]int, len(s.chunks))
	for i, ch := range s.chunks {
		index[ch.ID] = i
	}
	for i, ch := range chunks {
		if j, ok := index[ch.ID]; ok {
			s.chunks[j] = ch
			s.vectors[j] = vectors[i]
			continue
		}
		index[ch.ID] = len(s.chunks)
		s.chunks = append(s.chunks, ch)
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	return vectorstore.TopK(s.chunks, s.vectors, vector, topK), nil
}

func (s *Storage) SearchText(_ context.Context, query string, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vectorstore.LexicalTopK(s.chunks, query, topK), nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.chunks = nil
	return nil
}

func (s *Storage) Close() error     { return nil }
func (s *Storage) Persistent() bool { return false }
