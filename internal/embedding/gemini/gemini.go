// Package gemini embeds text with the Gemini batchEmbedContents endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"qarag/internal/httpx"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	RequestsPerS float64
}

type Client struct {
	baseURL   string
	apiKey    string
	model     string
	dimension atomic.Int64
	retrier   *httpx.Retrier
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini embedder: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   strings.TrimPrefix(cfg.Model, "models/"),
		retrier: httpx.NewRetrier(httpx.NewClient(cfg.Timeout), cfg.RequestsPerS, 5),
	}, nil
}

func (c *Client) Name() string                  { return "gemini:" + c.model }
func (c *Client) Prepare(corpus []string) error { return nil }
func (c *Client) Dimension() int                { return int(c.dimension.Load()) }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type embedRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqs := make([]embedRequest, len(texts))
	for i, t := range texts {
		reqs[i] = embedRequest{Model: "models/" + c.model, Content: content{Parts: []part{{Text: t}}}}
	}
	body, err := json.Marshal(map[string]any{"requests": reqs})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", c.baseURL, c.model)
	resp, err := c.retrier.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Embeddings []struct {
			Values []float64 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gemini embeddings: decode: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d inputs", len(out.Embeddings), len(texts))
	}
	vectors := make([][]float64, len(texts))
	for i, e := range out.Embeddings {
		if len(e.Values) == 0 {
			return nil, errors.New("gemini embeddings: empty embedding")
		}
		vectors[i] = e.Values
	}
	c.dimension.CompareAndSwap(0, int64(len(vectors[0])))
	return vectors, nil
}
