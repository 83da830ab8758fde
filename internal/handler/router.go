package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"balloon-service/internal/ratelimit"
	"balloon-service/internal/util"
)

// RouterOptions carries the cross-cutting settings of the router.
type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Ingress, when set, throttles every client before routing.
	Ingress  *ratelimit.IngressStore
	TrustXFF bool
	// HealthReport probes each dependency for /health. A nil error means the
	// dependency is up; only a failing "store" makes the service unhealthy.
	HealthReport func(ctx context.Context) map[string]error
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(balloonHandler *BalloonHandler, statsHandler *StatisticsHandler, opts RouterOptions, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	if opts.TrustXFF {
		router.Use(middleware.RealIP)
	}
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(opts.RequestTimeout))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-Match", "If-None-Match"},
		ExposedHeaders:   []string{"ETag", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if opts.Ingress != nil {
		router.Use(ratelimit.IngressMiddleware(opts.Ingress, opts.TrustXFF))
	}

	router.Get("/health", healthHandler(opts.HealthReport, logger))

	balloonHandler.RegisterRoutes(router)
	statsHandler.RegisterRoutes(router)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithProblem(logger, w, http.StatusNotFound, "Not Found", "Endpoint not found.")
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithProblem(logger, w, http.StatusMethodNotAllowed, "Method Not Allowed", "Method not allowed.")
	})

	return router
}

func healthHandler(report func(ctx context.Context) map[string]error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{Status: "healthy", Service: "balloon-service"}
		code := http.StatusOK
		if report != nil {
			status.Checks = make(map[string]string)
			for name, err := range report(r.Context()) {
				if err == nil {
					status.Checks[name] = "ok"
					continue
				}
				logger.Warn("Health check failed", util.String("dependency", name), util.ErrorField(err))
				status.Checks[name] = err.Error()
				if name == "store" {
					status.Status = "unhealthy"
					code = http.StatusServiceUnavailable
				} else if status.Status == "healthy" {
					status.Status = "degraded"
				}
			}
		}
		respondWithJSON(logger, w, code, status)
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
