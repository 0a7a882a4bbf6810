// Package embedding selects embedders and runs batched, concurrent embedding.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"qarag/internal/config"
	"qarag/internal/domain"
	"qarag/internal/embedding/gemini"
	"qarag/internal/embedding/openai"
	"qarag/internal/embedding/tfidf"
)

// New assembles the embedder selected by cfg.
func New(cfg *config.AppConfig) (domain.Embedder, error) {
	ec := cfg.Embedder
	timeout := time.Duration(ec.TimeoutSecs) * time.Second
	switch ec.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if ec.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:      ec.OpenAI.BaseURL,
			APIKeyEnv:    ec.OpenAI.APIKeyEnv,
			Model:        ec.OpenAI.Model,
			Timeout:      timeout,
			RequestsPerS: ec.RequestsPerS,
		})
	case "gemini":
		gc := gemini.Config{APIKey: cfg.GeminiAPIKey, Timeout: timeout, RequestsPerS: ec.RequestsPerS}
		if ec.Gemini != nil {
			gc.BaseURL = ec.Gemini.BaseURL
			gc.Model = ec.Gemini.Model
		}
		return gemini.NewClient(gc)
	default:
		return nil, fmt.Errorf("unknown embedder: %s", ec.Type)
	}
}

// Options controls EmbedAll.
type Options struct {
	BatchSize   int
	Concurrency int
	// OnBatch is called after each batch completes with the number of texts embedded.
	// It may be called from multiple goroutines.
	OnBatch func(n int)
}

// EmbedAll embeds texts in batches, running up to Concurrency batches at
// once. The first failure cancels the remaining batches. Returned vectors are
// L2-normalised and aligned with texts.
func EmbedAll(ctx context.Context, e domain.Embedder, texts []string, opts Options) ([][]float64, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < len(texts); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(texts))
		g.Go(func() error {
			batch, err := e.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(batch))
			}
			for i, v := range batch {
				vectors[start+i] = Normalize(v)
			}
			if opts.OnBatch != nil {
				opts.OnBatch(end - start)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery embeds a single text and normalises it.
func EmbedQuery(ctx context.Context, e domain.Embedder, text string) ([]float64, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return Normalize(vecs[0]), nil
}

// Normalize scales v to unit length in place and returns it. Zero vectors are returned unchanged.
func Normalize(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
	return v
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
