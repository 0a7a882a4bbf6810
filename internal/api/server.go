// Package api serves the question answering HTTP interface.
package api

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"qarag/internal/domain"
	"qarag/internal/log"
)

// Service is the pipeline the server exposes.
type Service interface {
	Ask(ctx context.Context, query string, h domain.StreamHandler) (*domain.Answer, error)
	Count(ctx context.Context) (int, error)
}

// Config configures the server.
type Config struct {
	Addr            string
	Collection      string
	RateLimit       int
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Server is the HTTP front end of a Service.
type Server struct {
	cfg     Config
	svc     Service
	router  chi.Router
	spec    []byte
	index   *template.Template
	logger  zerolog.Logger
	httpSrv *http.Server
}

// New builds the router. The embedded OpenAPI document is validated here,
// so a broken document fails at startup instead of on /docs.
func New(cfg Config, svc Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("api: nil service")
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	spec, err := loadOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}
	index, err := template.ParseFS(webFS, "web/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("api: parse index template: %w", err)
	}
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		spec:   spec,
		index:  index,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(CORS(s.cfg.AllowedOrigins))
	}
	r.Use(Metrics)
	r.Use(AccessLog)

	static, _ := fs.Sub(webFS, "web/static")
	r.Get("/", s.handleIndex)
	r.Get("/docs", s.handleDocs)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	ask := r.With()
	if s.cfg.RateLimit > 0 {
		ask = r.With(RateLimit(s.cfg.RateLimit, s.cfg.RateWindow))
	}
	ask.Post("/ask", s.handleAsk)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Requests outlive ctx so Shutdown can drain them; base is only
	// cancelled once the drain deadline has passed.
	base, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: answers are streamed for as long as the model talks.
		BaseContext: func(net.Listener) context.Context { return base },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("event", "server.started").Str("addr", ln.Addr().String()).Msg("listening")
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Str("event", "server.shutdown").Dur("timeout", s.cfg.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		cancelBase()
		s.httpSrv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	return nil
}
