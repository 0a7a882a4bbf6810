package llm

import (
	"fmt"
	"strings"

	"qarag/internal/domain"
)

const systemInstruction = `You are a careful assistant for a question-and-answer knowledge base.
Answer the user's question using only the numbered context documents provided.
If the context does not contain the answer, say that the knowledge base has no information on it.
Do not invent rulings, facts or sources. Refer to documents by their number when useful.`

// BuildPrompt assembles the system and user messages for question from the
// retrieved results, numbering each document and naming its source.
func BuildPrompt(question string, results []domain.SearchResult) domain.Prompt {
	var b strings.Builder
	b.WriteString("Context:\n")
	if len(results) == 0 {
		b.WriteString("(no documents found)\n")
	}
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] Source: %s\n%s\n", i+1, r.Chunk.Source, strings.TrimSpace(r.Chunk.Text))
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", question)
	return domain.Prompt{
		System:   systemInstruction,
		User:     b.String(),
		Question: question,
		Context:  results,
	}
}
