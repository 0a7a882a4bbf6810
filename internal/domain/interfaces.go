package domain

import "context"

// QAItem is a single deduplicated question/answer pair read from a source file.
type QAItem struct {
	Question string
	Answer   string
	Source   string
	Category string
	File     string
}

// Chunk is one indexed window of an answer, prefixed by its question.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Source     string
	Index      int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Prompt is the input handed to a Generator.
type Prompt struct {
	System   string
	User     string
	Question string
	Context  []SearchResult
}

// Answer is the fully assembled response to a query.
type Answer struct {
	Query   string
	Text    string
	Sources []SearchResult
	Cached  bool
}

// Embedder converts free text into numeric vector representations.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// StatefulEmbedder is implemented by embedders whose vocabulary must survive a restart.
type StatefulEmbedder interface {
	Embedder
	State() ([]byte, error)
	Restore(data []byte) error
}

// Chunker splits an answer into pieces suitable for retrieval indexing.
type Chunker interface {
	Chunk(text string) []string
}

// Generator streams an answer for the given prompt, calling emit for every text fragment.
type Generator interface {
	Name() string
	Stream(ctx context.Context, prompt Prompt, emit func(text string) error) error
}

// StreamHandler receives the parts of an answer as they become available.
type StreamHandler interface {
	OnSources(results []SearchResult) error
	OnToken(text string) error
}
