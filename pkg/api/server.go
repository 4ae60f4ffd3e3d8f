package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/changeledger/changeledger/pkg/analytics"
	"github.com/changeledger/changeledger/pkg/observability"
	"github.com/changeledger/changeledger/pkg/store"
)

// ServerConfig wires the server's collaborators. Logger, Metrics, and
// Health are optional; Now defaults to time.Now.
type ServerConfig struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Health  *observability.HealthChecker
	Now     func() time.Time
}

// Server is the HTTP surface over the audit log store and analytics
// service
type Server struct {
	router  *mux.Router
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer creates the server and registers all routes
func NewServer(st store.Store, svc *analytics.Service, cfg ServerConfig) *Server {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		router:  mux.NewRouter(),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	s.router.Use(s.instrument)

	if cfg.Health != nil {
		s.router.HandleFunc("/healthz", cfg.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", cfg.Health.Readiness).Methods("GET")
	}

	NewAnalyticsHandlers(svc, cfg.Logger, now).RegisterRoutes(s.router)
	NewAuditLogHandlers(st, cfg.Logger, now).RegisterRoutes(s.router)

	return s
}

// Router exposes the underlying router so hosts can mount extra routes,
// such as the Prometheus scrape handler
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// instrument tags each request with an id, logs it, and records HTTP
// metrics against the route template
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := observability.WithRequestID(r.Context(), requestID)
		if s.logger != nil {
			ctx = observability.WithLogger(ctx, s.logger)
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}

		s.metrics.ObserveHTTPRequest(r.Method, path, recorder.status, time.Since(start))
		if s.logger != nil {
			s.logger.WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     recorder.status,
				"duration":   time.Since(start).String(),
			}).Info("handled request")
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
