// Package summarizer ranks sentences for the offline extractive answer.
package summarizer

import (
	"math"
	"sort"

	"qarag/internal/textutil"
)

// FrequencySummarizer ranks sentences by normalised content-word frequency.
// When a query is given, sentences sharing its words get QueryWeight per
// shared word on top of that.
type FrequencySummarizer struct {
	QueryWeight float64
}

// NewFrequencySummarizer creates a frequency-based sentence ranker.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{QueryWeight: 1}
}

// Select returns up to maxSentences of the highest ranked sentences of text,
// in their original order.
func (s *FrequencySummarizer) Select(text, query string, maxSentences int) []string {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range textutil.ContentTokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	var qset map[string]struct{}
	if query != "" {
		qset = make(map[string]struct{})
		for _, t := range textutil.ContentTokens(query) {
			qset[t] = struct{}{}
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := textutil.ContentTokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// normalise by length so long sentences don't win by default
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		if qset != nil {
			score += s.QueryWeight * float64(textutil.Overlap(qset, sent))
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	maxSentences = min(maxSentences, len(scores))

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return out
}

// BestSentence returns the index of the sentence sharing the most words with
// query, or -1 when none share any.
func BestSentence(sentences []string, query string) int {
	qset := make(map[string]struct{})
	for _, t := range textutil.ContentTokens(query) {
		qset[t] = struct{}{}
	}
	best, bestScore := -1, 0
	for i, s := range sentences {
		if score := textutil.Overlap(qset, s); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}
