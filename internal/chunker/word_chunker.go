package chunker

import (
	"fmt"
	"strings"

	"qarag/internal/domain"
)

// WordChunker splits text into consecutive windows of a fixed number of
// whitespace-separated words. Windows do not overlap.
type WordChunker struct {
	wordsPerChunk int
}

func NewWordChunker(wordsPerChunk int) *WordChunker {
	if wordsPerChunk <= 0 {
		wordsPerChunk = 300
	}
	return &WordChunker{wordsPerChunk: wordsPerChunk}
}

func (c *WordChunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	chunks := make([]string, 0, (len(words)+c.wordsPerChunk-1)/c.wordsPerChunk)
	for i := 0; i < len(words); i += c.wordsPerChunk {
		end := min(i+c.wordsPerChunk, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}

// New builds the chunker named by kind.
func New(kind string, wordsPerChunk, sentencesPerChunk, overlapSentences int) (domain.Chunker, error) {
	switch kind {
	case "words", "":
		return NewWordChunker(wordsPerChunk), nil
	case "sentence":
		return NewSentenceChunker(sentencesPerChunk, overlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", kind)
	}
}
