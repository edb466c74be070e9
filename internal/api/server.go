package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/store"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

// Classifier runs the analysis pipeline.
type Classifier interface {
	Classify(ctx context.Context, principal *auth.Principal, forest []thread.Message) (*analyzer.Result, error)
}

// HistoryReader lists a principal's past classifications.
type HistoryReader interface {
	List(ctx context.Context, principalID string, limit int) ([]store.Record, error)
}

type Options struct {
	Classifier      Classifier
	History         HistoryReader
	Provider        string
	JWTSecret       string
	ClassifyTimeout time.Duration
	Logger          *slog.Logger
	// Metrics serves /metrics; defaults to the global Prometheus registry.
	Metrics http.Handler
}

type Server struct {
	router *chi.Mux
	port   int
	opts   Options
	logger *slog.Logger
}

const maxBodyBytes = 4 << 20

func NewServer(port int, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		opts:   opts,
		logger: opts.Logger,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", opts.Metrics)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(opts.JWTSecret))
		r.Get("/verdict/status", s.status)
		r.Post("/classify", s.classify)
		r.With(auth.Require).Get("/history", s.history)
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"service":  "verdict",
		"provider": s.opts.Provider,
		"history":  s.opts.History != nil,
	}
	if p, ok := auth.FromContext(r.Context()); ok {
		body["principal"] = p.ID
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
