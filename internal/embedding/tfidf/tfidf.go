package tfidf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"qarag/internal/domain"
	"qarag/internal/textutil"
)

// Embedder implements a simple TF-IDF vectorizer.
// It builds a vocabulary from the corpus and computes IDF values.
type Embedder struct {
	mu         sync.RWMutex
	vocabulary map[string]int
	idf        []float64
	dimension  int
	prepared   bool
}

// state is the persisted form of a prepared embedder. Terms are stored in
// vocabulary order so the index of each term is implicit.
type state struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`
}

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder() *Embedder {
	return &Embedder{vocabulary: make(map[string]int)}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Prepare builds the vocabulary and IDF values from the provided corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for TF-IDF prepare")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range textutil.ContentTokens(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	// Stable ordering for vocabulary
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return errors.New("no tokens found in corpus; ensure tokenizer supports your language")
	}
	idf := make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		// Smoothed IDF
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	e.install(terms, idf)
	return nil
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// Embed computes the TF-IDF embedding for each text. Texts without any
// known term produce a zero vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.prepared {
		return nil, domain.ErrNotPrepared
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *Embedder) embedOne(text string) []float64 {
	vec := make([]float64, e.dimension)
	tf := make(map[int]int)
	total := 0
	for _, tok := range textutil.ContentTokens(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}
	for idx, count := range tf {
		tfv := float64(count) / float64(total)
		vec[idx] = tfv * e.idf[idx]
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// State serialises the prepared vocabulary.
func (e *Embedder) State() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.prepared {
		return nil, domain.ErrNotPrepared
	}
	terms := make([]string, len(e.vocabulary))
	for term, idx := range e.vocabulary {
		terms[idx] = term
	}
	return json.Marshal(state{Terms: terms, IDF: e.idf})
}

// Restore loads a vocabulary produced by State.
func (e *Embedder) Restore(data []byte) error {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tfidf: decode state: %w", err)
	}
	if len(s.Terms) == 0 || len(s.Terms) != len(s.IDF) {
		return fmt.Errorf("tfidf: corrupt state (%d terms, %d idf values)", len(s.Terms), len(s.IDF))
	}
	e.install(s.Terms, s.IDF)
	return nil
}

func (e *Embedder) install(terms []string, idf []float64) {
	vocab := make(map[string]int, len(terms))
	for i, term := range terms {
		vocab[term] = i
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vocabulary = vocab
	e.idf = idf
	e.dimension = len(terms)
	e.prepared = true
}
