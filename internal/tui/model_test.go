package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"qarag/internal/domain"
)

type fakeAsker struct {
	err error
}

func (f fakeAsker) Ask(ctx context.Context, q string, h domain.StreamHandler) (*domain.Answer, error) {
	results := []domain.SearchResult{
		{Chunk: domain.Chunk{ID: "id_0", Source: "https://x/zakat", Text: "Question: What is zakat?\nAnswer: Zakat is charity. It is paid yearly."}, Score: 0.9},
		{Chunk: domain.Chunk{ID: "id_1", Source: "fasting.json", Text: "Question: Fasting?\nAnswer: Fasting starts at dawn."}, Score: 0.2},
	}
	if err := h.OnSources(results); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	for _, tok := range []string{"Zakat ", "is ", "charity."} {
		if err := h.OnToken(tok); err != nil {
			return nil, err
		}
	}
	return &domain.Answer{Query: q, Text: "Zakat is charity.", Sources: results}, nil
}

// run feeds msg to m and keeps executing returned commands until the stream ends.
func run(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	for i := 0; msg != nil; i++ {
		require.Less(t, i, 100, "stream did not finish")
		next, cmd := m.Update(msg)
		m = next.(Model)
		msg = nil
		if cmd != nil && m.busy {
			msg = cmd()
		}
	}
	return m
}

func newModel(a Asker) Model {
	m := New(context.Background(), a, "collection qa, 2 chunks")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(Model)
}

func TestAskStreamsIntoView(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newModel(fakeAsker{})
	m.input.SetValue("what is zakat")
	m = run(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.busy)
	assert.Equal(t, "Zakat is charity.", m.answer)
	require.Len(t, m.sources, 2)
	assert.Equal(t, `Answered "what is zakat"`, m.status)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.render(), "https://x/zakat")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 1, m.cursor)
	assert.Contains(t, m.render(), "fasting.json")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, next.(Model).cursor, "cursor wraps around")
}

func TestAskError(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newModel(fakeAsker{err: errors.New("model down")})
	m.input.SetValue("what is zakat")
	m = run(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "Error: model down", m.status)
	assert.Len(t, m.sources, 2)
	assert.Empty(t, m.answer)
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	m := newModel(fakeAsker{})
	m.input.SetValue("   ")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, next.(Model).busy)
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("Fasting starts at dawn. Zakat is paid yearly.", "when is zakat paid")
	assert.True(t, strings.HasPrefix(out, "Fasting starts at dawn. "))
	assert.Contains(t, out, "Zakat is paid yearly.")
	assert.Equal(t, "plain", highlightBestSentence("plain", "nothing"))
}
