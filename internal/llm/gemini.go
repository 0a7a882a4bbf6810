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

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
	RequestsPerS    float64
}

// Gemini streams answers from streamGenerateContent.
type Gemini struct {
	cfg     GeminiConfig
	retrier *httpx.Retrier
}

func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing API key (set GEMINI_API_KEY)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Model = strings.TrimPrefix(cfg.Model, "models/")
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash-latest"
	}
	return &Gemini{cfg: cfg, retrier: httpx.NewRetrier(httpx.NewClient(cfg.Timeout), cfg.RequestsPerS, 3)}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.cfg.Model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiChunk struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) Stream(ctx context.Context, prompt domain.Prompt, emit func(string) error) error {
	var body geminiRequest
	if prompt.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: prompt.System}}}
	}
	body.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt.User}}}}
	body.GenerationConfig.Temperature = g.cfg.Temperature
	body.GenerationConfig.MaxOutputTokens = g.cfg.MaxOutputTokens
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.cfg.BaseURL, g.cfg.Model)
	resp, err := g.retrier.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("x-goog-api-key", g.cfg.APIKey)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	emitted := false
	blocked := ""
	err = readEvents(resp.Body, func(frame []byte) error {
		var chunk geminiChunk
		if err := json.Unmarshal(frame, &chunk); err != nil {
			return fmt.Errorf("decode stream frame: %w", err)
		}
		if chunk.Error != nil {
			return errors.New(chunk.Error.Message)
		}
		if chunk.PromptFeedback.BlockReason != "" {
			blocked = chunk.PromptFeedback.BlockReason
		}
		for _, c := range chunk.Candidates {
			for _, p := range c.Content.Parts {
				if p.Text == "" {
					continue
				}
				emitted = true
				if err := emit(p.Text); err != nil {
					return err
				}
			}
			if c.FinishReason == "SAFETY" && !emitted {
				blocked = c.FinishReason
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	if !emitted {
		if blocked != "" {
			return fmt.Errorf("gemini: response blocked (%s): %w", blocked, ErrNoContent)
		}
		return fmt.Errorf("gemini: %w", ErrNoContent)
	}
	return nil
}
