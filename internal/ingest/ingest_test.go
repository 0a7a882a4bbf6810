package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qarag/internal/domain"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadDirOrderAndDedup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `{
		"Zakat": {"questions": [
			{"question": "What is zakat?", "answer": "A <b>charity</b>.", "url": "https://x/2"},
			{"question": "  what is FASTING? ", "answer": "dup", "url": ""}
		]}
	}`)
	writeFile(t, dir, "a.json", `{
		"Worship": {"questions": [
			{"question": "What is fasting?", "answer": "Abstaining   from food.", "url": ""},
			{"question": "", "answer": "orphan"}
		]},
		"Alpha": {"questions": [
			{"question": "What is prayer?", "answer": "<p>Salah</p><p>five times</p>", "url": "https://x/1"}
		]}
	}`)
	writeFile(t, dir, "notes.txt", "ignored")

	items, rep, err := LoadDir(dir)
	require.NoError(t, err)

	want := []domain.QAItem{
		{Question: "What is fasting?", Answer: "Abstaining from food.", Source: "a.json", Category: "Worship", File: "a.json"},
		{Question: "What is prayer?", Answer: "Salah five times", Source: "https://x/1", Category: "Alpha", File: "a.json"},
		{Question: "What is zakat?", Answer: "A charity.", Source: "https://x/2", Category: "Zakat", File: "b.json"},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Report{Files: 2, Items: 3, Duplicates: 1, Incomplete: 1}, rep)
}

func TestLoadDirSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{"cat": [1, 2`)
	writeFile(t, dir, "list.json", `[]`)
	writeFile(t, dir, "good.json", `{"c": {"questions": [{"question": "q", "answer": "a"}]}}`)

	items, rep, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, rep.Files)
	require.Len(t, rep.Skipped, 2)
	assert.Equal(t, "bad.json", rep.Skipped[0].File)
	assert.Equal(t, "list.json", rep.Skipped[1].File)
}

func TestLoadDirNoFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	_, _, err := LoadDir(dir)
	assert.ErrorIs(t, err, domain.ErrNoData)

	info, statErr := os.Stat(dir)
	require.NoError(t, statErr, "directory is created")
	assert.True(t, info.IsDir())
}

func TestCleanAnswer(t *testing.T) {
	assert.Equal(t, "plain text", CleanAnswer("  plain \n text "))
	assert.Equal(t, "Title Body", CleanAnswer("<h2>Title</h2><div>Body<script>x()</script></div>"))
	assert.Equal(t, "a < b", CleanAnswer("a < b"))
	assert.Empty(t, CleanAnswer("<p> </p>"))
}
