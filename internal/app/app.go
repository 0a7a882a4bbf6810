// Package app assembles the components selected by the configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"qarag/internal/api"
	"qarag/internal/cache"
	"qarag/internal/chunker"
	"qarag/internal/config"
	"qarag/internal/domain"
	"qarag/internal/embedding"
	"qarag/internal/llm"
	"qarag/internal/log"
	"qarag/internal/metrics"
	"qarag/internal/resilience"
	"qarag/internal/service"
	"qarag/internal/vectorstore"
	"qarag/internal/vectorstore/memory"
	"qarag/internal/vectorstore/qdrant"
	"qarag/internal/vectorstore/sqlite"
)

// ErrNotBuilt is returned when serving from a persistent store that holds no chunks.
var ErrNotBuilt = errors.New("collection is empty, did you run build-db?")

// App holds the wired components. Close releases them.
type App struct {
	Config    *config.AppConfig
	Embedder  domain.Embedder
	Store     vectorstore.Storage
	Generator domain.Generator
	Cache     cache.Cache
	Breaker   *resilience.CircuitBreaker
	RAG       *service.RAGService
}

// OpenStore opens the vector store selected by cfg. embedderName is recorded
// with the collection where the store supports it.
func OpenStore(cfg *config.AppConfig, embedderName string) (vectorstore.Storage, error) {
	vc := cfg.VectorStore
	switch vc.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite", "":
		s, err := sqlite.Open(sqlite.Config{Dir: vc.PersistDir, Collection: vc.Collection, Embedder: embedderName})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "qdrant":
		if vc.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		s, err := qdrant.NewStorage(qdrant.Config{
			URL:        vc.Qdrant.URL,
			APIKey:     vc.Qdrant.APIKey,
			Collection: vc.Collection,
			Timeout:    time.Duration(vc.Qdrant.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vc.Type)
	}
}

// NewBuilder wires a Builder for cfg. The returned store must be closed by the caller.
func NewBuilder(cfg *config.AppConfig, progress io.Writer) (*service.Builder, vectorstore.Storage, error) {
	emb, err := embedding.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}
	store, err := OpenStore(cfg, emb.Name())
	if err != nil {
		return nil, nil, fmt.Errorf("vector store: %w", err)
	}
	b, err := newBuilder(cfg, emb, store)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	b.Progress = progress
	return b, store, nil
}

func newBuilder(cfg *config.AppConfig, emb domain.Embedder, store vectorstore.Storage) (*service.Builder, error) {
	ch, err := chunker.New(cfg.Chunker.Type, cfg.Chunker.ChunkSizeWords, cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	statePath := ""
	if p, ok := store.(vectorstore.Persistent); ok && p.Persistent() {
		statePath = embedding.StatePath(cfg.VectorStore.PersistDir, cfg.VectorStore.Collection)
	}
	return service.NewBuilder(ch, emb, store, statePath, embedding.Options{
		BatchSize:   cfg.Embedder.BatchSize,
		Concurrency: cfg.Embedder.Concurrency,
	}), nil
}

// Open wires the query pipeline. A persistent store must already hold the
// collection and the embedder state is restored from disk. A memory store is
// built from the data directory first.
func Open(ctx context.Context, cfg *config.AppConfig) (_ *App, err error) {
	logger := log.WithComponentFromContext(ctx, "app")
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Embedder, err = embedding.New(cfg); err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if a.Store, err = OpenStore(cfg, a.Embedder.Name()); err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	if p, ok := a.Store.(vectorstore.Persistent); ok && p.Persistent() {
		n, err := a.Store.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("vector store: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%s: %w", cfg.VectorStore.Collection, ErrNotBuilt)
		}
		if err := checkEmbedder(ctx, a.Store, a.Embedder); err != nil {
			return nil, err
		}
		if err := embedding.LoadState(a.Embedder, embedding.StatePath(cfg.VectorStore.PersistDir, cfg.VectorStore.Collection)); err != nil {
			return nil, fmt.Errorf("restore embedder: %w", err)
		}
		metrics.SetIndexedChunks(n)
		logger.Info().Str("event", "app.collection_loaded").Str("collection", cfg.VectorStore.Collection).Int("chunks", n).Msg("collection loaded")
	} else {
		b, err := newBuilder(cfg, a.Embedder, a.Store)
		if err != nil {
			return nil, err
		}
		stats, err := b.BuildDir(ctx, cfg.Data.Dir)
		if err != nil {
			return nil, fmt.Errorf("build in-memory collection: %w", err)
		}
		logger.Info().Str("event", "app.collection_built").Int("chunks", stats.Chunks).Int("questions", stats.Questions).Msg("in-memory collection built")
	}

	if a.Generator, err = llm.New(cfg); err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if a.Cache, err = cache.New(cfg.Cache); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.Breaker = resilience.NewCircuitBreaker("llm", cfg.LLM.BreakerThreshold, time.Duration(cfg.LLM.BreakerResetSecs)*time.Second)
	a.RAG = service.NewRAGService(a.Embedder, a.Store, a.Generator, a.Cache, a.Breaker, service.Options{
		Collection: cfg.VectorStore.Collection,
		TopK:       cfg.Retrieval.NResults,
		CacheTTL:   time.Duration(cfg.Cache.TTLSecs) * time.Second,
	})
	return a, nil
}

// checkEmbedder refuses to query a collection built by a different embedder.
func checkEmbedder(ctx context.Context, store vectorstore.Storage, emb domain.Embedder) error {
	s, ok := store.(*sqlite.Storage)
	if !ok {
		return nil
	}
	meta, found, err := s.Meta(ctx)
	if err != nil || !found || meta.Embedder == "" {
		return err
	}
	if meta.Embedder != emb.Name() {
		return fmt.Errorf("collection %s was built with %s but %s is configured, rebuild with build-db", meta.Name, meta.Embedder, emb.Name())
	}
	return nil
}

// Server returns the HTTP server for a.
func (a *App) Server(addr string) (*api.Server, error) {
	var origins []string
	for _, o := range strings.Split(a.Config.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return api.New(api.Config{
		Addr:            addr,
		Collection:      a.Config.VectorStore.Collection,
		RateLimit:       a.Config.RateLimit.Requests,
		RateWindow:      a.Config.RateLimit.Window(),
		ShutdownTimeout: time.Duration(a.Config.Server.ShutdownTimeoutSecs) * time.Second,
		AllowedOrigins:  origins,
	}, a.RAG)
}

// Close releases the cache and the store.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
