// Package httpapi exposes the ambient /healthz and /metrics surface on a
// chi + cors router (middleware.Recoverer/RequestID/RealIP, cors.Handler, a
// logging middleware). No trading or scan endpoints live here: those belong
// to the HTTP/session surface this module treats as an external collaborator.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/healthcheck"
)

// HealthSource supplies the most recent health_check job snapshot.
type HealthSource interface {
	Latest() healthcheck.Snapshot
}

// Server wraps the ambient HTTP surface.
type Server struct {
	router *chi.Mux
	http   *http.Server
	log    zerolog.Logger
	health HealthSource
}

// New builds the router and binds it to addr.
func New(addr string, health HealthSource, log zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    log.With().Str("component", "httpapi").Logger(),
		health: health,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

type healthzResponse struct {
	Status      string  `json:"status"`
	CPUPercent  float64 `json:"cpu_percent"`
	RAMPercent  float64 `json:"ram_percent"`
	DBReachable bool    `json:"db_reachable"`
	DBError     string  `json:"db_error,omitempty"`
	SampledAt   string  `json:"sampled_at"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.health.Latest()
	status := "ok"
	code := http.StatusOK
	if !snap.DBReachable {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	resp := healthzResponse{
		Status:      status,
		CPUPercent:  snap.CPUPercent,
		RAMPercent:  snap.RAMPercent,
		DBReachable: snap.DBReachable,
		DBError:     snap.DBError,
		SampledAt:   snap.Time.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("ambient http surface listening")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
