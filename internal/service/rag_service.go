// Package service builds collections and answers questions against them.
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qarag/internal/cache"
	"qarag/internal/domain"
	"qarag/internal/embedding"
	"qarag/internal/llm"
	"qarag/internal/log"
	"qarag/internal/metrics"
	"qarag/internal/resilience"
	"qarag/internal/vectorstore"
)

// Options tunes RAGService.
type Options struct {
	Collection string
	TopK       int
	CacheTTL   time.Duration
}

// RAGService answers questions from the indexed collection.
type RAGService struct {
	embedder  domain.Embedder
	store     vectorstore.Storage
	generator domain.Generator
	cache     cache.Cache
	breaker   *resilience.CircuitBreaker
	opts      Options
}

// NewRAGService wires the pipeline. cache and breaker may be nil.
func NewRAGService(embedder domain.Embedder, store vectorstore.Storage, generator domain.Generator, c cache.Cache, breaker *resilience.CircuitBreaker, opts Options) *RAGService {
	if c == nil {
		c = cache.NoOp{}
	}
	if opts.TopK <= 0 {
		opts.TopK = vectorstore.DefaultTopK
	}
	return &RAGService{embedder: embedder, store: store, generator: generator, cache: c, breaker: breaker, opts: opts}
}

type cachedSource struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type cachedAnswer struct {
	Text    string         `json:"text"`
	Sources []cachedSource `json:"sources"`
}

// CacheKey identifies a query within a collection.
func CacheKey(collection, query string) string {
	h := sha1.Sum([]byte(collection + strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(h[:])
}

// Ask retrieves context for query, streams the generated answer through h
// and returns the assembled answer. Sources are always delivered before the
// first token.
func (s *RAGService) Ask(ctx context.Context, query string, h domain.StreamHandler) (*domain.Answer, error) {
	start := time.Now()
	logger := log.WithComponentFromContext(ctx, "rag")
	if h == nil {
		h = domain.HandlerFuncs{}
	}

	q := strings.TrimSpace(query)
	if q == "" {
		metrics.RecordAsk("invalid")
		return nil, domain.ErrInvalidQuery
	}

	key := CacheKey(s.opts.Collection, q)
	if ans, ok := s.fromCache(ctx, key, q); ok {
		metrics.RecordAsk("cached")
		if err := h.OnSources(ans.Sources); err != nil {
			return nil, err
		}
		if err := h.OnToken(ans.Text); err != nil {
			return nil, err
		}
		logger.Info().Str("event", "ask.completed").Bool("cached", true).Dur("latency", time.Since(start)).Msg("answered from cache")
		return ans, nil
	}

	results, err := s.Retrieve(ctx, q)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	if err := h.OnSources(results); err != nil {
		return nil, err
	}

	var text strings.Builder
	genStart := time.Now()
	prompt := llm.BuildPrompt(q, results)
	stream := func() error {
		return s.generator.Stream(ctx, prompt, func(tok string) error {
			text.WriteString(tok)
			if err := h.OnToken(tok); err != nil {
				// the reader failed, not the model
				return fmt.Errorf("%w: %w", resilience.ErrAborted, err)
			}
			return nil
		})
	}
	if s.breaker != nil {
		err = s.breaker.Execute(stream)
	} else {
		err = stream()
	}
	if err != nil {
		metrics.ObserveGeneration(s.generator.Name(), "error", time.Since(genStart))
		s.recordFailure(err)
		logger.Warn().Err(err).Str("event", "ask.generation_failed").Str("generator", s.generator.Name()).Msg("generation failed")
		return nil, fmt.Errorf("generate: %w", err)
	}
	metrics.ObserveGeneration(s.generator.Name(), "ok", time.Since(genStart))

	ans := &domain.Answer{Query: q, Text: text.String(), Sources: results}
	s.toCache(ctx, key, ans)
	metrics.RecordAsk("ok")
	logger.Info().
		Str("event", "ask.completed").
		Bool("cached", false).
		Int("sources", len(results)).
		Dur("latency", time.Since(start)).
		Msg("answered")
	return ans, nil
}

// Retrieve returns up to TopK chunks relevant to query, best first. Vector
// search is used unless the query embedding carries no signal, in which case
// stores that support it are searched lexically. Results scoring zero or
// less are dropped.
func (s *RAGService) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	start := time.Now()
	mode := "vector"

	vec, err := embedding.EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	var results []domain.SearchResult
	if !embedding.IsZero(vec) {
		results, err = s.store.Search(ctx, vec, s.opts.TopK)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
	}
	if !anyPositive(results) {
		if ts, ok := s.store.(vectorstore.TextSearcher); ok {
			mode = "lexical"
			results, err = ts.SearchText(ctx, query, s.opts.TopK)
			if err != nil {
				return nil, fmt.Errorf("lexical search: %w", err)
			}
		}
	}
	metrics.ObserveRetrieval(mode, time.Since(start))

	kept := results[:0]
	for _, r := range results {
		if r.Score > 0 {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		n, err := s.store.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
		if n == 0 {
			return nil, domain.ErrEmptyCollection
		}
	}
	return kept, nil
}

// Count reports how many chunks are indexed.
func (s *RAGService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *RAGService) fromCache(ctx context.Context, key, query string) (*domain.Answer, bool) {
	data, ok := s.cache.Get(ctx, key)
	metrics.RecordCacheLookup(ok)
	if !ok {
		return nil, false
	}
	var c cachedAnswer
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, false
	}
	ans := &domain.Answer{Query: query, Text: c.Text, Cached: true}
	for _, src := range c.Sources {
		ans.Sources = append(ans.Sources, domain.SearchResult{
			Chunk: domain.Chunk{ID: src.ID, DocumentID: src.DocumentID, Source: src.Source, Text: src.Text},
			Score: src.Score,
		})
	}
	return ans, true
}

func (s *RAGService) toCache(ctx context.Context, key string, ans *domain.Answer) {
	if s.opts.CacheTTL <= 0 {
		return
	}
	c := cachedAnswer{Text: ans.Text}
	for _, r := range ans.Sources {
		c.Sources = append(c.Sources, cachedSource{
			ID:         r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Source:     r.Chunk.Source,
			Text:       r.Chunk.Text,
			Score:      r.Score,
		})
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, data, s.opts.CacheTTL)
}

func (s *RAGService) recordFailure(err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyCollection):
		metrics.RecordAsk("empty")
	case errors.Is(err, context.Canceled), errors.Is(err, resilience.ErrAborted):
		metrics.RecordAsk("canceled")
	default:
		metrics.RecordAsk("error")
	}
}

func anyPositive(results []domain.SearchResult) bool {
	for _, r := range results {
		if r.Score > 0 {
			return true
		}
	}
	return false
}
