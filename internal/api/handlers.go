package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"qarag/internal/domain"
	"qarag/internal/log"
	"qarag/internal/resilience"
)

const (
	maxBodyBytes   = 8 << 10
	minQueryLength = 3
	maxQueryLength = 200
)

type askRequest struct {
	Query string `json:"query"`
}

type sourceJSON struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

type askResponse struct {
	Answer  string       `json:"answer"`
	Sources []sourceJSON `json:"sources"`
	Cached  bool         `json:"cached"`
}

func toSources(results []domain.SearchResult) []sourceJSON {
	out := make([]sourceJSON, 0, len(results))
	for _, r := range results {
		out = append(out, sourceJSON{ID: r.Chunk.ID, Source: r.Chunk.Source, Score: r.Score})
	}
	return out
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.Execute(w, struct{ Collection string }{s.cfg.Collection}); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("render index")
	}
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, webFS, "web/docs.html")
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.spec)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "detail": err.Error()})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "detail": "collection is empty"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "chunks": n})
}

// parseQuery reads and validates the /ask body.
func parseQuery(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req askRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		}
		if errors.Is(err, io.EOF) {
			return "", errors.New("request body is empty")
		}
		return "", fmt.Errorf("malformed JSON: %v", err)
	}
	q := strings.TrimSpace(req.Query)
	if n := utf8.RuneCountInString(q); n < minQueryLength || n > maxQueryLength {
		return "", fmt.Errorf("query must be between %d and %d characters", minQueryLength, maxQueryLength)
	}
	return q, nil
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/event-stream")
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuery(w, r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_query", err.Error())
		return
	}
	if wantsJSON(r) {
		s.askJSON(w, r, query)
		return
	}
	s.askStream(w, r, query)
}

func (s *Server) askJSON(w http.ResponseWriter, r *http.Request, query string) {
	ans, err := s.svc.Ask(r.Context(), query, nil)
	if err != nil {
		s.writeAskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{Answer: ans.Text, Sources: toSources(ans.Sources), Cached: ans.Cached})
}

func (s *Server) askStream(w http.ResponseWriter, r *http.Request, query string) {
	sw := newSSEWriter(w)
	ans, err := s.svc.Ask(r.Context(), query, domain.HandlerFuncs{
		Sources: func(results []domain.SearchResult) error {
			return sw.event("sources", toSources(results))
		},
		Token: func(text string) error {
			return sw.event("token", map[string]string{"text": text})
		},
	})
	if err != nil {
		if !sw.started {
			s.writeAskError(w, r, err)
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		status, code, detail := classify(err)
		s.logAskError(r, status, err)
		_ = sw.event("error", errorBody{Error: code, Detail: detail})
		return
	}
	_ = sw.event("done", map[string]bool{"cached": ans.Cached})
}

// classify maps pipeline errors to a status and a stable error code.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusUnprocessableEntity, "invalid_query", "query is empty"
	case errors.Is(err, domain.ErrEmptyCollection):
		return http.StatusServiceUnavailable, "empty_collection", "The knowledge base is empty. Run build-db first."
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "llm_unavailable", "The language model is temporarily unavailable. Please try again later."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "The request timed out."
	default:
		return http.StatusBadGateway, "generation_failed", "Failed to generate an answer."
	}
}

func (s *Server) writeAskError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	status, code, detail := classify(err)
	s.logAskError(r, status, err)
	writeError(w, status, code, detail)
}

func (s *Server) logAskError(r *http.Request, status int, err error) {
	level := zerolog.WarnLevel
	if status >= 500 && status != http.StatusServiceUnavailable {
		level = zerolog.ErrorLevel
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.WithLevel(level).Err(err).Str("event", "ask.failed").Int("status", status).Msg("ask failed")
}

// sseWriter writes server-sent events and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseWriter) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
