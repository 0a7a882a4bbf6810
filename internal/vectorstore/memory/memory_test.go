package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qarag/internal/domain"
)

func chunks(ids ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(ids))
	for i, id := range ids {
		out[i] = domain.Chunk{ID: id, Text: "text " + id, Index: i}
	}
	return out
}

func TestSearchOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, chunks("a", "b", "c"), [][]float64{{1, 0}, {0, 1}, {0.6, 0.8}}))

	res, err := s.Search(ctx, []float64{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "b", res[0].Chunk.ID)
	assert.Equal(t, "c", res[1].Chunk.ID)
	assert.InDelta(t, 0.8, res[1].Score, 1e-9)
}

func TestUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, chunks("a"), [][]float64{{1}}))
	require.NoError(t, s.Upsert(ctx, chunks("a", "b"), [][]float64{{-1}, {1}}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := s.Search(ctx, []float64{1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", res[0].Chunk.ID)
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 3))
	err := s.Upsert(ctx, chunks("a"), [][]float64{{1, 0}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	require.NoError(t, s.Upsert(ctx, chunks("a"), [][]float64{{1, 0, 0}}))
	_, err = s.Search(ctx, []float64{1}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestSearchTextAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{
		{ID: "1", Text: "fasting in ramadan"},
		{ID: "2", Text: "rules of zakat"},
	}, [][]float64{{1}, {1}}))

	res, err := s.SearchText(ctx, "zakat rules", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "2", res[0].Chunk.ID)

	require.NoError(t, s.Clear(ctx))
	n, _ := s.Count(ctx)
	assert.Zero(t, n)
	res, err = s.Search(ctx, []float64{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestInitRejectsBadDimension(t *testing.T) {
	assert.Error(t, NewStorage().Init(context.Background(), 0))
}
