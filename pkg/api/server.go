// Package api exposes the filing analysis pipeline over HTTP.
//
// Endpoints: GET /api/health, GET /api/companies,
// GET /api/filings/{ticker}, GET /api/filings/{ticker}/recent,
// POST /api/analyze. Prometheus metrics are served at /metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"filinglens/pkg/core/company"
	"filinglens/pkg/core/ingest"
	"filinglens/pkg/models"
)

// FilingSource lists filings and resolves tickers against EDGAR.
// *ingest.Client satisfies it.
type FilingSource interface {
	AvailableFilings(ctx context.Context, co company.Company) (tenQ, tenK []ingest.FilingMeta, err error)
	LookupTicker(ctx context.Context, ticker string) (company.Company, error)
}

// Analyzer runs the full two-period comparison pipeline.
// *pipeline.Orchestrator satisfies it.
type Analyzer interface {
	Run(ctx context.Context, co company.Company, filingType, period string) (*models.AnalysisResult, error)
}

// FeedSource reads EDGAR's recent-filings Atom feed.
// *ingest.FeedReader satisfies it.
type FeedSource interface {
	RecentFilings(ctx context.Context, cik, formType string, limit int) ([]ingest.FeedEntry, error)
}

// Config holds the server's tunables.
type Config struct {
	CORSOrigins     []string
	AnalyzePerMin   int           // analyze requests allowed per minute per IP
	AnalyzeTimeout  time.Duration // budget for one pipeline run
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		CORSOrigins:     []string{"*"},
		AnalyzePerMin:   10,
		AnalyzeTimeout:  5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	dir      *company.Directory
	filings  FilingSource
	analyzer Analyzer
	feed     FeedSource
	limiter  *IPRateLimiter
	cfg      Config
}

// NewServer wires routes and middleware around the given collaborators.
func NewServer(dir *company.Directory, filings FilingSource, analyzer Analyzer, cfg Config) *Server {
	if cfg.AnalyzePerMin <= 0 {
		cfg.AnalyzePerMin = DefaultConfig().AnalyzePerMin
	}
	if cfg.AnalyzeTimeout <= 0 {
		cfg.AnalyzeTimeout = DefaultConfig().AnalyzeTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	s := &Server{
		dir:      dir,
		filings:  filings,
		analyzer: analyzer,
		limiter:  NewIPRateLimiter(rate.Limit(float64(cfg.AnalyzePerMin)/60.0), cfg.AnalyzePerMin),
		cfg:      cfg,
	}
	s.router = s.buildRouter()
	return s
}

// SetFeedSource enables the recent-filings endpoint. Without it the
// endpoint answers 503.
func (s *Server) SetFeedSource(feed FeedSource) {
	s.feed = feed
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(SecurityHeaders)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/companies", s.handleCompanies)
	r.Get("/api/filings/{ticker}", s.handleFilings)
	r.Get("/api/filings/{ticker}/recent", s.handleRecentFilings)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.RateLimit)
		r.Post("/api/analyze", s.handleAnalyze)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ListenAndServe starts the server and blocks until SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.cfg.AnalyzeTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}
	slog.Info("shutting down API server")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}
