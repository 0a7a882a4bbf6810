package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"qarag/internal/httpx"
)

// Client is an OpenAI-compatible embeddings client. It also understands the
// Ollama-native response shape.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	dimension atomic.Int64
	retrier   *httpx.Retrier
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL      string
	APIKeyEnv    string
	Model        string
	Timeout      time.Duration
	RequestsPerS float64
}

// NewClient creates a new embeddings client using the provided configuration.
// An empty key is allowed when the endpoint is not api.openai.com (Ollama, vLLM).
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" && strings.Contains(cfg.BaseURL, "api.openai.com") {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  key,
		model:   cfg.Model,
		retrier: httpx.NewRetrier(httpx.NewClient(cfg.Timeout), cfg.RequestsPerS, 5),
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Prepare is not required for remote embedding. Dimension is set on first embed.
func (c *Client) Prepare(corpus []string) error { return nil }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns one embedding vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string]any{"input": texts, "model": c.model})
	if err != nil {
		return nil, err
	}
	url := c.baseURL + "/embeddings"
	resp, err := c.retrier.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: read body: %w", err)
	}
	vectors, err := decode(payload, len(texts))
	if err != nil {
		return nil, err
	}
	c.dimension.CompareAndSwap(0, int64(len(vectors[0])))
	return vectors, nil
}

func decode(payload []byte, want int) ([][]float64, error) {
	// OpenAI-compatible response first
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 {
		if len(openaiOut.Data) != want {
			return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(openaiOut.Data), want)
		}
		out := make([][]float64, want)
		for i, d := range openaiOut.Data {
			idx := d.Index
			if idx < 0 || idx >= want || out[idx] != nil {
				idx = i
			}
			if len(d.Embedding) == 0 {
				return nil, errors.New("openai embeddings: empty embedding")
			}
			out[idx] = d.Embedding
		}
		return out, nil
	}
	// Ollama-native shapes: {"embeddings": [[...]]} or {"embedding": [...]}
	var ollamaOut struct {
		Embeddings [][]float64 `json:"embeddings"`
		Embedding  []float64   `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil {
		if len(ollamaOut.Embeddings) == want && len(ollamaOut.Embeddings[0]) > 0 {
			return ollamaOut.Embeddings, nil
		}
		if want == 1 && len(ollamaOut.Embedding) > 0 {
			return [][]float64{ollamaOut.Embedding}, nil
		}
	}
	return nil, errors.New("openai embeddings: no embedding returned")
}
