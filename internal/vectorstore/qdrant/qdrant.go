package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"qarag/internal/domain"
	"qarag/internal/httpx"
)

// pointNamespace seeds the UUIDv5 point ids derived from chunk ids.
var pointNamespace = uuid.MustParse("6f1c1a52-5d4e-4b8f-9a54-7c1d0b2f3e10")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  atomic.Int64
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant: url required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection name required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     httpx.NewClient(timeout),
	}, nil
}

// PointID maps a chunk id to the UUID Qdrant stores it under.
func PointID(collection, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(collection+"/"+chunkID)).String()
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	var se *httpx.StatusError
	// 409: the collection already exists.
	if err != nil && !(errors.As(err, &se) && se.Code == http.StatusConflict) {
		return err
	}
	s.dimension.Store(int64(dimension))
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	dim, err := s.dim(ctx)
	if err != nil {
		return err
	}
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		if len(vectors[i]) != dim {
			return fmt.Errorf("%w: got %d, collection has %d", domain.ErrDimensionMismatch, len(vectors[i]), dim)
		}
		points[i] = map[string]any{
			"id":     PointID(s.collection, ch.ID),
			"vector": vectors[i],
			"payload": map[string]any{
				"chunk_id":    ch.ID,
				"document_id": ch.DocumentID,
				"index":       ch.Index,
				"source":      ch.Source,
				"text":        ch.Text,
			},
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	dim, err := s.dim(ctx)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", domain.ErrDimensionMismatch, len(vector), dim)
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Chunk: r.Payload.chunk(), Score: r.Score})
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if isNotFound(err) {
		return 0, nil
	}
	return resp.Result.Count, err
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if isNotFound(err) {
		err = nil
	}
	if err == nil {
		s.dimension.Store(0)
	}
	return err
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) Persistent() bool { return true }

// dim returns the collection's vector size, asking Qdrant when this process
// did not create it.
func (s *Storage) dim(ctx context.Context) (int, error) {
	if d := s.dimension.Load(); d > 0 {
		return int(d), nil
	}
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &resp); err != nil {
		return 0, err
	}
	size := resp.Result.Config.Params.Vectors.Size
	if size <= 0 {
		return 0, fmt.Errorf("qdrant: collection %s has no single vector config", s.collection)
	}
	s.dimension.Store(int64(size))
	return size, nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &httpx.StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(msg)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func isNotFound(err error) bool {
	var se *httpx.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

type payload struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Source     string `json:"source"`
	Text       string `json:"text"`
}

func (p payload) chunk() domain.Chunk {
	return domain.Chunk{ID: p.ChunkID, DocumentID: p.DocumentID, Index: p.Index, Source: p.Source, Text: p.Text}
}
