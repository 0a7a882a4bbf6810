package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qarag/internal/cache"
	"qarag/internal/chunker"
	"qarag/internal/domain"
	"qarag/internal/embedding"
	"qarag/internal/embedding/tfidf"
	"qarag/internal/llm"
	"qarag/internal/resilience"
	"qarag/internal/vectorstore/memory"
	"qarag/internal/vectorstore/sqlite"
)

var items = []domain.QAItem{
	{Question: "What is zakat?", Answer: "Zakat is an obligatory charity paid once a year on savings.", Source: "https://x/zakat"},
	{Question: "When does fasting start?", Answer: "Fasting starts at dawn and ends at sunset during Ramadan.", Source: "fasting.json"},
	{Question: "How many daily prayers are there?", Answer: "There are five daily prayers spread over the day.", Source: "https://x/prayer"},
}

type fakeGenerator struct {
	tokens []string
	err    error
	calls  int
	prompt domain.Prompt
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Stream(_ context.Context, p domain.Prompt, emit func(string) error) error {
	f.calls++
	f.prompt = p
	for _, t := range f.tokens {
		if err := emit(t); err != nil {
			return err
		}
	}
	return f.err
}

func build(t *testing.T, store *memory.Storage) *tfidf.Embedder {
	t.Helper()
	emb := tfidf.NewEmbedder()
	b := NewBuilder(chunker.NewWordChunker(300), emb, store, filepath.Join(t.TempDir(), "state.json"), embedding.Options{BatchSize: 2, Concurrency: 2})
	stats, err := b.Build(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, Stats{Chunks: 3, Questions: 3}, stats)
	return emb
}

func TestChunksNumberingAndFormat(t *testing.T) {
	b := NewBuilder(chunker.NewWordChunker(3), nil, nil, "", embedding.Options{})
	chunks := b.Chunks([]domain.QAItem{
		{Question: "Q1", Answer: "one two three four", Source: "s1"},
		{Question: "Q2", Answer: "five", Source: "s2"},
	})
	require.Len(t, chunks, 3)
	assert.Equal(t, "id_0", chunks[0].ID)
	assert.Equal(t, "Question: Q1\nAnswer: one two three", chunks[0].Text)
	assert.Equal(t, "Question: Q1\nAnswer: four", chunks[1].Text)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, chunks[0].DocumentID, chunks[1].DocumentID)
	assert.Equal(t, "id_2", chunks[2].ID)
	assert.Equal(t, "s2", chunks[2].Source)
}

func TestBuildNoData(t *testing.T) {
	b := NewBuilder(chunker.NewWordChunker(3), tfidf.NewEmbedder(), memory.NewStorage(), "", embedding.Options{})
	_, err := b.Build(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestBuildDirWithProgressAndState(t *testing.T) {
	ctx := context.Background()
	data := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(data, "qa.json"), []byte(`{
		"Worship": {"questions": [
			{"question": "What is zakat?", "answer": "Zakat is charity.", "url": ""},
			{"question": "what is zakat?", "answer": "duplicate"}
		]}
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(data, "broken.json"), []byte(`{`), 0o644))

	persist := t.TempDir()
	store, err := sqlite.Open(sqlite.Config{Dir: persist, Collection: "qa", Embedder: "tfidf"})
	require.NoError(t, err)
	defer store.Close()

	statePath := embedding.StatePath(persist, "qa")
	var progress bytes.Buffer
	b := NewBuilder(chunker.NewWordChunker(300), tfidf.NewEmbedder(), store, statePath, embedding.Options{})
	b.Progress = &progress
	stats, err := b.BuildDir(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, Stats{Chunks: 1, Questions: 1, Files: 1, Skipped: 1}, stats)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, statePath)

	restored := tfidf.NewEmbedder()
	require.NoError(t, embedding.LoadState(restored, statePath))
}

// clearFails wraps a store whose collection cannot be dropped.
type clearFails struct {
	*memory.Storage
}

func (clearFails) Clear(context.Context) error { return errors.New("collection locked") }

func TestFailedRebuildKeepsSavedState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	statePath := filepath.Join(t.TempDir(), "state.json")
	b := NewBuilder(chunker.NewWordChunker(300), tfidf.NewEmbedder(), store, statePath, embedding.Options{})
	_, err := b.Build(ctx, items)
	require.NoError(t, err)
	before, err := os.ReadFile(statePath)
	require.NoError(t, err)

	rebuild := NewBuilder(chunker.NewWordChunker(300), tfidf.NewEmbedder(), clearFails{store}, statePath, embedding.Options{})
	_, err = rebuild.Build(ctx, []domain.QAItem{
		{Question: "Is music allowed?", Answer: "Scholars differ on instruments and singing.", Source: "music"},
	})
	require.Error(t, err)

	after, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "vocabulary must match the stored vectors")

	restored := tfidf.NewEmbedder()
	require.NoError(t, embedding.LoadState(restored, statePath))
	svc := NewRAGService(restored, store, &fakeGenerator{tokens: []string{"ok"}}, nil, nil, Options{TopK: 1})
	results, err := svc.Retrieve(ctx, "zakat charity")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "https://x/zakat", results[0].Chunk.Source)
}

func TestAskStreamsSourcesThenTokens(t *testing.T) {
	store := memory.NewStorage()
	emb := build(t, store)
	gen := &fakeGenerator{tokens: []string{"Zakat ", "is charity."}}
	svc := NewRAGService(emb, store, gen, nil, nil, Options{Collection: "qa", TopK: 2})

	var order []string
	ans, err := svc.Ask(context.Background(), "  what is zakat? ", domain.HandlerFuncs{
		Sources: func(rs []domain.SearchResult) error {
			order = append(order, "sources")
			require.NotEmpty(t, rs)
			assert.Equal(t, "https://x/zakat", rs[0].Chunk.Source)
			return nil
		},
		Token: func(s string) error {
			order = append(order, s)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sources", "Zakat ", "is charity."}, order)
	assert.Equal(t, "Zakat is charity.", ans.Text)
	assert.Equal(t, "what is zakat?", ans.Query)
	assert.False(t, ans.Cached)
	assert.Equal(t, "what is zakat?", gen.prompt.Question)
	assert.Contains(t, gen.prompt.User, "[1] Source: https://x/zakat")
	for _, r := range ans.Sources {
		assert.Positive(t, r.Score)
	}
}

func TestAskUsesCache(t *testing.T) {
	store := memory.NewStorage()
	emb := build(t, store)
	gen := &fakeGenerator{tokens: []string{"five"}}
	c := cache.NewMemoryCache(0)
	defer c.Close()
	svc := NewRAGService(emb, store, gen, c, nil, Options{Collection: "qa", CacheTTL: time.Minute})

	_, err := svc.Ask(context.Background(), "How many daily prayers?", nil)
	require.NoError(t, err)

	var tokens []string
	ans, err := svc.Ask(context.Background(), "how many DAILY prayers?", domain.HandlerFuncs{
		Token: func(s string) error { tokens = append(tokens, s); return nil },
	})
	require.NoError(t, err)
	assert.True(t, ans.Cached)
	assert.Equal(t, []string{"five"}, tokens)
	assert.Equal(t, 1, gen.calls)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "https://x/prayer", ans.Sources[0].Chunk.Source)
}

func TestAskLexicalFallbackForUnknownWords(t *testing.T) {
	store := memory.NewStorage()
	emb := build(t, store)
	svc := NewRAGService(emb, store, &fakeGenerator{tokens: []string{"ok"}}, nil, nil, Options{})

	// only stopwords, so the embedding is zero
	results, err := svc.Retrieve(context.Background(), "what is it")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "https://x/zakat", results[0].Chunk.Source)

	results, err = svc.Retrieve(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.Empty(t, results, "no lexical overlap either")
}

func TestAskErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	emb := build(t, store)

	svc := NewRAGService(emb, store, &fakeGenerator{}, nil, nil, Options{})
	_, err := svc.Ask(ctx, "   ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	failing := &fakeGenerator{tokens: []string{"partial"}, err: errors.New("upstream 500")}
	breaker := resilience.NewCircuitBreaker("test-service", 1, time.Hour)
	svc = NewRAGService(emb, store, failing, nil, breaker, Options{})
	_, err = svc.Ask(ctx, "what is zakat", nil)
	require.Error(t, err)
	_, err = svc.Ask(ctx, "what is zakat", nil)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, failing.calls)

	require.NoError(t, store.Clear(ctx))
	svc = NewRAGService(emb, store, &fakeGenerator{}, nil, nil, Options{})
	_, err = svc.Ask(ctx, "what is zakat", nil)
	assert.ErrorIs(t, err, domain.ErrEmptyCollection)
}

func TestAskReaderFailureKeepsBreakerClosed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	emb := build(t, store)

	gen := &fakeGenerator{tokens: []string{"Zakat ", "is charity."}}
	breaker := resilience.NewCircuitBreaker("test-reader-gone", 2, time.Hour)
	svc := NewRAGService(emb, store, gen, nil, breaker, Options{})

	broken := errors.New("write tcp: broken pipe")
	gone := domain.HandlerFuncs{Token: func(string) error { return broken }}
	for i := 0; i < 3; i++ {
		_, err := svc.Ask(ctx, "what is zakat", gone)
		assert.ErrorIs(t, err, broken)
	}
	assert.Equal(t, resilience.StateClosed, breaker.State())

	ans, err := svc.Ask(ctx, "what is zakat", nil)
	require.NoError(t, err)
	assert.Equal(t, "Zakat is charity.", ans.Text)
}

func TestAskWithExtractiveGenerator(t *testing.T) {
	store := memory.NewStorage()
	emb := build(t, store)
	svc := NewRAGService(emb, store, llm.NewExtractive(1), nil, nil, Options{TopK: 1})

	ans, err := svc.Ask(context.Background(), "when does fasting start", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ans.Text, "Fasting starts at dawn"))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("c", "What?"), CacheKey("c", " what? "))
	assert.NotEqual(t, CacheKey("c", "what?"), CacheKey("d", "what?"))
}
