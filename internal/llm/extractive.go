package llm

import (
	"context"
	"strings"

	"qarag/internal/domain"
	"qarag/internal/summarizer"
)

// NoInformation is the extractive answer when nothing relevant was retrieved.
const NoInformation = "I could not find relevant information in the knowledge base to answer this question."

// Extractive answers offline by selecting the best sentences of the
// retrieved answers.
type Extractive struct {
	summarizer   *summarizer.FrequencySummarizer
	maxSentences int
}

func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 4
	}
	return &Extractive{summarizer: summarizer.NewFrequencySummarizer(), maxSentences: maxSentences}
}

func (e *Extractive) Name() string { return "extractive" }

func (e *Extractive) Stream(ctx context.Context, prompt domain.Prompt, emit func(string) error) error {
	var texts []string
	for _, r := range prompt.Context {
		if t := AnswerText(r.Chunk.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return emit(NoInformation)
	}
	sentences := e.summarizer.Select(strings.Join(texts, "\n"), prompt.Question, e.maxSentences)
	if len(sentences) == 0 {
		return emit(NoInformation)
	}
	for i, s := range sentences {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			s = " " + s
		}
		if err := emit(s); err != nil {
			return err
		}
	}
	return nil
}

// AnswerText strips the "Question: ...\nAnswer: " header from a chunk document.
func AnswerText(doc string) string {
	if _, after, ok := strings.Cut(doc, "\nAnswer:"); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(doc)
}
