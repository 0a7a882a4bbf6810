// Package llm streams answers from hosted language models or, offline,
// from the retrieved documents themselves.
package llm

import (
	"errors"
	"fmt"
	"time"

	"qarag/internal/config"
	"qarag/internal/domain"
)

// ErrNoContent is returned when a model finishes without producing text.
var ErrNoContent = errors.New("model returned no content")

var errDone = errors.New("stream done")

// New assembles the generator selected by cfg.LLM.Provider.
func New(cfg *config.AppConfig) (domain.Generator, error) {
	lc := cfg.LLM
	timeout := time.Duration(lc.TimeoutSecs) * time.Second
	temperature := 0.2
	if lc.Temperature != nil {
		temperature = *lc.Temperature
	}
	switch lc.Provider {
	case "gemini", "":
		gc := GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			Temperature:     temperature,
			MaxOutputTokens: lc.MaxOutputTokens,
			Timeout:         timeout,
			RequestsPerS:    lc.RequestsPerS,
		}
		if lc.Gemini != nil {
			gc.BaseURL = lc.Gemini.BaseURL
			gc.Model = lc.Gemini.Model
		}
		return NewGemini(gc)
	case "openai":
		oc := OpenAIConfig{
			APIKey:          cfg.OpenAIAPIKey,
			Temperature:     temperature,
			MaxOutputTokens: lc.MaxOutputTokens,
			Timeout:         timeout,
			RequestsPerS:    lc.RequestsPerS,
		}
		if lc.OpenAI != nil {
			oc.BaseURL = lc.OpenAI.BaseURL
			oc.Model = lc.OpenAI.Model
		}
		return NewOpenAI(oc)
	case "extractive":
		return NewExtractive(lc.ExtractiveMaxSent), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", lc.Provider)
	}
}
