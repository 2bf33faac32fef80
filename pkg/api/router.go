package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/turbopipe/internal/logger"
	"github.com/marmos91/turbopipe/pkg/api/handlers"
	"github.com/marmos91/turbopipe/pkg/metrics"
)

// NewRouter creates the chi router with middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/engine - Engine state and counters
//   - GET /metrics - Prometheus scrape endpoint (404 when metrics are disabled)
func NewRouter(engine handlers.EngineStatus) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(engine)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/engine", healthHandler.Engine)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs each request through the internal logger. Scrapes and
// probes are frequent, so completion is logged at DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.Addr(r.RemoteAddr),
			logger.DurationMs(float64(time.Since(start).Microseconds())/1000),
		)
	})
}
