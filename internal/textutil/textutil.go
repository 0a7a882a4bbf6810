// Package textutil holds the tokenizer, stopword list and overlap scoring
// shared by the TF-IDF embedder, the lexical fallback and the extractive generator.
package textutil

import (
	"math"
	"regexp"
	"strings"
)

var (
	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	stopwords  = buildStopwords()
)

// Tokens lowercases text and returns its word tokens, stopwords included.
func Tokens(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// ContentTokens returns Tokens with stopwords removed.
func ContentTokens(text string) []string {
	raw := Tokens(text)
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// IsStopword reports whether tok is in the English stopword list.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// TokenSet returns the distinct tokens of s.
func TokenSet(s string) map[string]struct{} {
	tokens := Tokens(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// Sentences splits text into trimmed sentences. Text without terminal
// punctuation is returned as a single sentence.
func Sentences(text string) []string {
	raw := sentenceRe.FindAllString(text, -1)
	consumed := 0
	out := make([]string, 0, len(raw)+1)
	for _, s := range raw {
		consumed += len(s)
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	// trailing text without punctuation
	if consumed < len(text) {
		idx := strings.LastIndexAny(text, ".!?")
		if tail := strings.TrimSpace(text[idx+1:]); tail != "" {
			out = append(out, tail)
		}
	}
	return out
}

// Ochiai scores the overlap between a query token set and text as
// |A∩B| / sqrt(|A||B|).
func Ochiai(qset map[string]struct{}, text string) float64 {
	stoks := Tokens(text)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / (math.Sqrt(float64(len(qset))) * math.Sqrt(float64(len(seen))))
}

// Overlap counts distinct tokens of sentence that appear in queryTokens.
func Overlap(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range Tokens(sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

func buildStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "why", "when", "where", "do", "does", "did", "i", "you", "he", "she", "we", "they", "me", "my", "your", "his", "her", "our", "their", "its", "not", "no", "there", "any", "all", "have", "has", "had",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
