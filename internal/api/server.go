// Package api exposes the SCI engine and emissions queries over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/config"
	"github.com/rshade/carbon-aware-sci/internal/metrics"
	"github.com/rshade/carbon-aware-sci/internal/sci"
	"github.com/rshade/carbon-aware-sci/internal/trace"
)

// Server serves the HTTP API.
type Server struct {
	aggregator *sci.Aggregator
	emissions  *sci.EmissionsService
	metrics    *metrics.Metrics
	cors       config.CORSConfig
	logger     zerolog.Logger // logger is immutable (copy-on-write)
}

// NewServer returns a Server. m may be nil, which disables /metrics and
// request instrumentation.
func NewServer(aggregator *sci.Aggregator, emissions *sci.EmissionsService, m *metrics.Metrics, cors config.CORSConfig, logger zerolog.Logger) *Server {
	return &Server{
		aggregator: aggregator,
		emissions:  emissions,
		metrics:    m,
		cors:       cors,
		logger:     logger.With().Str("component", "http").Logger(),
	}
}

// Handler returns the routed handler with request ids, access logging,
// metrics, panic recovery and CORS applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)

	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	e := r.PathPrefix("/emissions").Subrouter()
	e.HandleFunc("/bylocations", s.emissionsByLocations).Methods(http.MethodGet)
	e.HandleFunc("/bylocations/best", s.bestEmissionsByLocations).Methods(http.MethodGet)
	e.HandleFunc("/average-carbon-intensity", s.averageCarbonIntensity).Methods(http.MethodGet)
	e.HandleFunc("/forecasts/current", s.currentForecasts).Methods(http.MethodGet)

	r.HandleFunc("/sci-scores", s.sciScore).Methods(http.MethodPost)
	r.HandleFunc("/sci-scores/marginal-carbon-intensity", s.marginalCarbonIntensity).Methods(http.MethodPost)

	var h http.Handler = r
	h = s.accessLog(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	if opts := s.corsOptions(); opts != nil {
		h = handlers.CORS(opts...)(h)
	}
	return s.requestID(h)
}

// corsOptions returns nil when no origin is allowed.
func (s *Server) corsOptions() []handlers.CORSOption {
	if !s.cors.AllowAllOrigins && len(s.cors.AllowedOrigins) == 0 {
		return nil
	}
	origins := s.cors.AllowedOrigins
	if s.cors.AllowAllOrigins {
		origins = []string{"*"}
	}
	opts := []handlers.CORSOption{
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", trace.HeaderRequestID}),
		handlers.ExposedHeaders([]string{trace.HeaderRequestID}),
	}
	if s.cors.MaxAge != nil {
		opts = append(opts, handlers.MaxAge(*s.cors.MaxAge))
	}
	if s.cors.AllowCredentials {
		opts = append(opts, handlers.AllowCredentials())
	}
	return opts
}

// requestID propagates the caller's X-Request-Id or assigns a new one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(trace.HeaderRequestID)
		if id == "" {
			id = trace.NewID()
		}
		w.Header().Set(trace.HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(trace.WithID(r.Context(), id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str(trace.FieldTraceID, trace.ID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64(trace.FieldDurationMs, time.Since(start).Milliseconds()).
			Msg("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Interface("panic", v).Msg("recovered from panic")
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().
			Str(trace.FieldTraceID, trace.ID(r.Context())).
			Err(err).
			Msg("failed to write response")
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusNotFound, problem{
		Title:     http.StatusText(http.StatusNotFound),
		Status:    http.StatusNotFound,
		Detail:    "no route for " + r.URL.Path,
		RequestID: trace.ID(r.Context()),
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusMethodNotAllowed, problem{
		Title:     http.StatusText(http.StatusMethodNotAllowed),
		Status:    http.StatusMethodNotAllowed,
		Detail:    r.Method + " is not allowed on " + r.URL.Path,
		RequestID: trace.ID(r.Context()),
	})
}
