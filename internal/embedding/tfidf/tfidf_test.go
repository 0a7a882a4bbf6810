package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qarag/internal/domain"
)

var corpus = []string{
	"Question: Is fasting obligatory?\nAnswer: Fasting in Ramadan is obligatory.",
	"Question: How to pray?\nAnswer: Prayer has conditions and pillars.",
	"Question: Zakat amount?\nAnswer: Zakat is two and a half percent.",
}

func norm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func TestEmbedBeforePrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrNotPrepared)
}

func TestPrepareAndEmbed(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))
	require.Positive(t, e.Dimension())

	vecs, err := e.Embed(context.Background(), []string{"ramadan fasting", "xyzzy"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 1.0, norm(vecs[0]), 1e-9)
	assert.Zero(t, norm(vecs[1]), "unknown terms give a zero vector")
	assert.Len(t, vecs[1], e.Dimension())
}

func TestPrepareRejectsEmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare(nil))
	assert.Error(t, NewEmbedder().Prepare([]string{"the and of"}))
}

func TestStateRestoreProducesSameVectors(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))
	data, err := e.State()
	require.NoError(t, err)

	restored := NewEmbedder()
	require.NoError(t, restored.Restore(data))
	assert.Equal(t, e.Dimension(), restored.Dimension())

	ctx := context.Background()
	want, err := e.Embed(ctx, []string{"zakat percent"})
	require.NoError(t, err)
	got, err := restored.Embed(ctx, []string{"zakat percent"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRestoreRejectsCorruptState(t *testing.T) {
	assert.Error(t, NewEmbedder().Restore([]byte(`{"terms":["a"],"idf":[]}`)))
	assert.Error(t, NewEmbedder().Restore([]byte(`not json`)))
}

func TestEmbedHonoursCancellation(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}
