package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"qarag/internal/domain"
	"qarag/internal/httpx"
)

// OpenAIConfig configures an OpenAI-compatible chat completions generator.
type OpenAIConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
	RequestsPerS    float64
}

// OpenAI streams answers from /chat/completions. Ollama and other
// compatible servers work when BaseURL points at them.
type OpenAI struct {
	cfg     OpenAIConfig
	retrier *httpx.Retrier
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIKey == "" && strings.Contains(cfg.BaseURL, "api.openai.com") {
		return nil, errors.New("openai: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAI{cfg: cfg, retrier: httpx.NewRetrier(httpx.NewClient(cfg.Timeout), cfg.RequestsPerS, 3)}, nil
}

func (o *OpenAI) Name() string { return "openai:" + o.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAI) Stream(ctx context.Context, prompt domain.Prompt, emit func(string) error) error {
	req := chatRequest{
		Model:       o.cfg.Model,
		Stream:      true,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxOutputTokens,
	}
	if prompt.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: prompt.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt.User})
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	url := o.cfg.BaseURL + "/chat/completions"
	resp, err := o.retrier.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "text/event-stream")
		if o.cfg.APIKey != "" {
			r.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
		}
		return r, nil
	})
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	emitted := false
	err = readEvents(resp.Body, func(frame []byte) error {
		if string(bytes.TrimSpace(frame)) == "[DONE]" {
			return errDone
		}
		var chunk chatChunk
		if err := json.Unmarshal(frame, &chunk); err != nil {
			return fmt.Errorf("decode stream frame: %w", err)
		}
		if chunk.Error != nil {
			return errors.New(chunk.Error.Message)
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			emitted = true
			if err := emit(c.Delta.Content); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDone) {
		return fmt.Errorf("openai: %w", err)
	}
	if !emitted {
		return fmt.Errorf("openai: %w", ErrNoContent)
	}
	return nil
}
