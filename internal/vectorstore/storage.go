package vectorstore

import (
	"context"

	"qarag/internal/domain"
)

// Storage persists vectors for one collection and supports similarity search.
type Storage interface {
	// Init (re)creates the collection for vectors of the given dimension.
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	// Clear drops the collection.
	Clear(ctx context.Context) error
	Close() error
}

// TextSearcher is implemented by stores that can rank chunks lexically
// when the query embedding carries no signal.
type TextSearcher interface {
	SearchText(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
}

// Persistent is implemented by stores whose contents survive a restart.
type Persistent interface {
	Persistent() bool
}

// DefaultTopK is used when a caller passes topK <= 0.
const DefaultTopK = 5
