package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"qarag/internal/domain"
	"qarag/internal/llm"
	"qarag/internal/summarizer"
	"qarag/internal/textutil"
)

// Asker is the TUI-facing subset of the RAG service.
type Asker interface {
	Ask(ctx context.Context, query string, h domain.StreamHandler) (*domain.Answer, error)
}

type sourcesMsg struct{ results []domain.SearchResult }

type tokenMsg struct{ text string }

type doneMsg struct {
	answer *domain.Answer
	err    error
}

// Model is the Bubble Tea model for the chat UI.
type Model struct {
	service  Asker
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan tea.Msg
	input    textinput.Model
	viewport viewport.Model
	sources  []domain.SearchResult
	answer   string
	summary  string
	status   string
	cursor   int
	busy     bool
	ready    bool
	query    string
}

// New creates a chat model. ctx bounds every question asked from it.
func New(ctx context.Context, service Asker, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 200
	vp := viewport.New(0, 0)
	return Model{ctx: ctx, service: service, input: ti, viewport: vp, summary: summary, status: "Ready. Esc cancels, ↑/↓ cycle sources."}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil

	case sourcesMsg:
		m.sources = msg.results
		m.cursor = 0
		m.status = fmt.Sprintf("%d sources. Generating…", len(msg.results))
		m.refresh()
		return m, waitForEvent(m.events)

	case tokenMsg:
		m.answer += msg.text
		m.refresh()
		m.viewport.GotoBottom()
		return m, waitForEvent(m.events)

	case doneMsg:
		m.busy = false
		m.cancel = nil
		m.events = nil
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		case msg.answer.Cached:
			m.status = fmt.Sprintf("Answered %q from cache", m.query)
		default:
			m.status = fmt.Sprintf("Answered %q", m.query)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			return m.ask(q)
		case "esc":
			if m.cancel != nil {
				m.cancel()
				m.status = "Cancelling…"
			}
			return m, nil
		case "down":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.sources)
				m.refresh()
				return m, nil
			}
		case "up":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.sources)) % len(m.sources)
				m.refresh()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask starts streaming an answer in the background. Events arrive one at a
// time through waitForEvent so the model stays the only writer of its state.
func (m Model) ask(q string) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(m.ctx)
	events := make(chan tea.Msg, 16)
	m.cancel, m.events = cancel, events
	m.busy = true
	m.query = q
	m.answer = ""
	m.sources = nil
	m.cursor = 0
	m.status = "Searching…"
	m.input.SetValue("")
	m.refresh()

	go func() {
		defer cancel()
		ans, err := m.service.Ask(ctx, q, domain.HandlerFuncs{
			Sources: func(results []domain.SearchResult) error {
				return send(ctx, events, sourcesMsg{results})
			},
			Token: func(text string) error {
				return send(ctx, events, tokenMsg{text})
			},
		})
		events <- doneMsg{answer: ans, err: err}
	}()
	return m, waitForEvent(events)
}

func send(ctx context.Context, ch chan<- tea.Msg, msg tea.Msg) error {
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("qarag")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
}

func (m Model) render() string {
	if m.query == "" {
		return "No question yet."
	}
	var b strings.Builder
	b.WriteString(labelStyle.Render("Q: "))
	b.WriteString(m.query)
	b.WriteString("\n\n")
	b.WriteString(m.answer)
	if m.busy {
		b.WriteString("▌")
	}
	if len(m.sources) > 0 {
		r := m.sources[m.cursor]
		b.WriteString("\n\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("Source %d/%d  score=%.3f  %s", m.cursor+1, len(m.sources), r.Score, r.Chunk.Source)))
		b.WriteString("\n")
		b.WriteString(highlightBestSentence(llm.AnswerText(r.Chunk.Text), m.query))
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

func highlightBestSentence(text, query string) string {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	best := summarizer.BestSentence(sentences, query)
	for i, s := range sentences {
		if i == best {
			sentences[i] = highlightStyle.Render(s)
		}
	}
	return strings.Join(sentences, " ")
}
