package vectorstore

import (
	"sort"

	"qarag/internal/domain"
	"qarag/internal/textutil"
)

// Dot returns the dot product of a and b over their common length.
// For unit vectors this is the cosine similarity.
func Dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// TopK scores every chunk against vector and returns the best topK, highest first.
// Ties keep insertion order.
func TopK(chunks []domain.Chunk, vectors [][]float64, vector []float64, topK int) []domain.SearchResult {
	scores := make([]float64, len(vectors))
	for i := range vectors {
		scores[i] = Dot(vectors[i], vector)
	}
	return pick(chunks, scores, topK)
}

// LexicalTopK ranks chunks by Ochiai token overlap with query.
func LexicalTopK(chunks []domain.Chunk, query string, topK int) []domain.SearchResult {
	qset := textutil.TokenSet(query)
	scores := make([]float64, len(chunks))
	for i, ch := range chunks {
		scores[i] = textutil.Ochiai(qset, ch.Text)
	}
	return pick(chunks, scores, topK)
}

func pick(chunks []domain.Chunk, scores []float64, topK int) []domain.SearchResult {
	if topK <= 0 {
		topK = DefaultTopK
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Chunk: chunks[j], Score: scores[j]})
	}
	return results
}
