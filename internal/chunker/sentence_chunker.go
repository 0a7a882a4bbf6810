package chunker

import (
	"strings"

	"qarag/internal/textutil"
)

// SentenceChunker groups sentences into windows. Consecutive windows share
// overlapSentences sentences.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	// overlap must leave a positive stride
	overlapSentences = max(0, min(overlapSentences, sentencesPerChunk-1))
	return &SentenceChunker{sentencesPerChunk: sentencesPerChunk, overlapSentences: overlapSentences}
}

func (c *SentenceChunker) Chunk(text string) []string {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return nil
	}
	step := c.sentencesPerChunk - c.overlapSentences
	chunks := make([]string, 0, len(sentences)/step+1)
	for start := 0; ; start += step {
		end := min(start+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, strings.Join(sentences[start:end], " "))
		if end == len(sentences) {
			return chunks
		}
	}
}
