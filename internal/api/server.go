// Package api serves single-location distance queries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/routing"
	"github.com/afd-analytics/stationdist/internal/station"
	"github.com/afd-analytics/stationdist/internal/store"
)

// Engine is the routing surface the API needs.
type Engine interface {
	Registry() *station.Registry
	PointQuery(ctx context.Context, lon, lat float64, bucket station.Bucket, at time.Time) (*routing.PointResult, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	WalkupMiles    float64
	RequestTimeout time.Duration
}

// Server holds the API dependencies.
type Server struct {
	engine Engine
	runs   store.Store
	opts   Options
}

// NewServer returns a Server. runs may be nil, which disables the run routes.
func NewServer(engine Engine, runs store.Store, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{engine: engine, runs: runs, opts: opts}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/stations", s.listStations)
		r.Get("/distance", s.distance)
		if s.runs != nil {
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{runID}", s.getRun)
		}
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("component", "api"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
