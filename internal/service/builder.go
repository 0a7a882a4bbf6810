package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/cheggaaa/pb/v3"

	"qarag/internal/domain"
	"qarag/internal/embedding"
	"qarag/internal/ingest"
	"qarag/internal/log"
	"qarag/internal/metrics"
	"qarag/internal/vectorstore"
)

// upsertBatch bounds the number of points sent to the store in one call.
const upsertBatch = 256

// Stats summarises a finished build.
type Stats struct {
	Chunks    int
	Questions int
	Files     int
	Skipped   int
}

// Builder turns Q&A items into an indexed collection.
type Builder struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     vectorstore.Storage
	statePath string
	opts      embedding.Options

	// Progress receives a progress bar while embedding. Nil disables it.
	Progress io.Writer
}

// NewBuilder returns a Builder. An empty statePath skips persisting the embedder state.
func NewBuilder(chunker domain.Chunker, embedder domain.Embedder, store vectorstore.Storage, statePath string, opts embedding.Options) *Builder {
	return &Builder{chunker: chunker, embedder: embedder, store: store, statePath: statePath, opts: opts}
}

// BuildDir loads every source file in dir and builds the collection from it.
func (b *Builder) BuildDir(ctx context.Context, dir string) (Stats, error) {
	items, rep, err := ingest.LoadDir(dir)
	if err != nil {
		return Stats{Skipped: len(rep.Skipped)}, err
	}
	stats, err := b.Build(ctx, items)
	stats.Files = rep.Files
	stats.Skipped = len(rep.Skipped)
	return stats, err
}

// Chunks splits items into indexed chunks numbered id_0, id_1, ... across the whole build.
func (b *Builder) Chunks(items []domain.QAItem) []domain.Chunk {
	var chunks []domain.Chunk
	for _, it := range items {
		docID := hashString(strings.ToLower(it.Question))
		for i, part := range b.chunker.Chunk(it.Answer) {
			chunks = append(chunks, domain.Chunk{
				ID:         fmt.Sprintf("id_%d", len(chunks)),
				DocumentID: docID,
				Text:       fmt.Sprintf("Question: %s\nAnswer: %s", it.Question, part),
				Source:     it.Source,
				Index:      i,
			})
		}
	}
	return chunks
}

// Build embeds all chunks of items and replaces the collection with them.
// The existing collection is only dropped once every chunk is embedded.
func (b *Builder) Build(ctx context.Context, items []domain.QAItem) (Stats, error) {
	logger := log.WithComponentFromContext(ctx, "builder")
	chunks := b.Chunks(items)
	if len(chunks) == 0 {
		return Stats{}, fmt.Errorf("no chunks created: %w", domain.ErrNoData)
	}
	stats := Stats{Chunks: len(chunks), Questions: len(items)}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := b.embedder.Prepare(texts); err != nil {
		return stats, fmt.Errorf("prepare %s: %w", b.embedder.Name(), err)
	}

	logger.Info().Str("event", "build.embedding").Int("chunks", len(chunks)).Str("embedder", b.embedder.Name()).Msg("embedding chunks")
	opts := b.opts
	if b.Progress != nil {
		bar := pb.New(len(chunks)).SetWriter(b.Progress).Start()
		defer bar.Finish()
		onBatch := opts.OnBatch
		opts.OnBatch = func(n int) {
			bar.Add(n)
			if onBatch != nil {
				onBatch(n)
			}
		}
	}
	vectors, err := embedding.EmbedAll(ctx, b.embedder, texts, opts)
	if err != nil {
		return stats, err
	}
	metrics.AddEmbedded(b.embedder.Name(), len(texts))

	if err := b.store.Clear(ctx); err != nil {
		return stats, fmt.Errorf("drop collection: %w", err)
	}
	if err := b.store.Init(ctx, len(vectors[0])); err != nil {
		return stats, fmt.Errorf("create collection: %w", err)
	}
	for start := 0; start < len(chunks); start += upsertBatch {
		end := min(start+upsertBatch, len(chunks))
		if err := b.store.Upsert(ctx, chunks[start:end], vectors[start:end]); err != nil {
			return stats, fmt.Errorf("upsert chunks %d-%d: %w", start, end, err)
		}
	}
	// The vocabulary only replaces the saved one once its vectors are stored.
	if b.statePath != "" {
		if err := embedding.SaveState(b.embedder, b.statePath); err != nil {
			return stats, fmt.Errorf("save embedder state: %w", err)
		}
	}
	metrics.SetIndexedChunks(len(chunks))
	logger.Info().
		Str("event", "build.completed").
		Int("chunks", stats.Chunks).
		Int("questions", stats.Questions).
		Int("dimension", len(vectors[0])).
		Msg("collection built")
	return stats, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
