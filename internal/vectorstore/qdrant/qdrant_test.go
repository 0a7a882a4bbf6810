package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qarag/internal/domain"
)

type fakeQdrant struct {
	mu       sync.Mutex
	size     int
	points   []map[string]any
	requests []string
	apiKeys  []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/collections/qa":
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.size = body.Vectors.Size
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodGet && r.URL.Path == "/collections/qa":
		if f.size == 0 {
			http.Error(w, `{"status":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}}},
		})
	case r.Method == http.MethodDelete && r.URL.Path == "/collections/qa":
		if f.size == 0 {
			http.Error(w, `{"status":"not found"}`, http.StatusNotFound)
			return
		}
		f.size = 0
		f.points = nil
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/qa/points":
		var body struct {
			Points []map[string]any `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.points = append(f.points, body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/collections/qa/points/count":
		if f.size == 0 {
			http.Error(w, `{"status":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"count": len(f.points)}})
	case r.Method == http.MethodPost && r.URL.Path == "/collections/qa/points/search":
		result := make([]map[string]any, 0, len(f.points))
		for i, p := range f.points {
			result = append(result, map[string]any{"id": p["id"], "score": 1.0 - float64(i)/10, "payload": p["payload"]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	default:
		http.NotFound(w, r)
	}
}

func newTestStorage(t *testing.T, f *fakeQdrant) *Storage {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	s, err := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "qa"})
	require.NoError(t, err)
	return s
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	f := &fakeQdrant{}
	s := newTestStorage(t, f)

	require.NoError(t, s.Clear(ctx), "missing collection is fine")
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Init(ctx, 2))
	chunks := []domain.Chunk{
		{ID: "id_0", DocumentID: "d", Text: "first", Source: "a.json"},
		{ID: "id_1", DocumentID: "d", Text: "second", Source: "https://x", Index: 1},
	}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float64{{1, 0}, {0, 1}}))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := s.Search(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, chunks[0], res[0].Chunk)
	assert.Equal(t, chunks[1], res[1].Chunk)

	f.mu.Lock()
	assert.Equal(t, PointID("qa", "id_0"), f.points[0]["id"])
	for _, k := range f.apiKeys {
		assert.Equal(t, "secret", k)
	}
	f.mu.Unlock()
}

func TestSearchLearnsDimensionFromServer(t *testing.T) {
	ctx := context.Background()
	f := &fakeQdrant{size: 3}
	s := newTestStorage(t, f)

	_, err := s.Search(ctx, []float64{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	f.mu.Lock()
	assert.Contains(t, f.requests, "GET /collections/qa")
	f.mu.Unlock()
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("qa", "id_7")
	assert.Equal(t, a, PointID("qa", "id_7"))
	assert.NotEqual(t, a, PointID("other", "id_7"))
	assert.Len(t, a, 36)
}

func TestNewStorageValidates(t *testing.T) {
	_, err := NewStorage(Config{Collection: "qa"})
	assert.Error(t, err)
	_, err = NewStorage(Config{URL: "http://localhost:6333"})
	assert.Error(t, err)
}
