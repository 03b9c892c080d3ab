package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vaidya-health/vaidya/pkg/usecase"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// DefaultMaxBodySize limits request bodies; clinical documents are plain text
const DefaultMaxBodySize = 4 << 20

type Server struct {
	router      *chi.Mux
	uc          *usecase.UseCases
	readiness   func(ctx context.Context) error
	maxBodySize int64
}

type Options func(*Server)

// WithReadiness sets the check behind GET /health. A failing check reports 503.
func WithReadiness(check func(ctx context.Context) error) Options {
	return func(s *Server) {
		s.readiness = check
	}
}

func WithMaxBodySize(n int64) Options {
	return func(s *Server) {
		s.maxBodySize = n
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:      r,
		uc:          uc,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(bodyLimit(s.maxBodySize))

		r.Post("/predict", s.handlePredict)
		r.Post("/vitals", s.handleVitals)
		r.Post("/documents", s.handleDocuments)
		r.Post("/query", s.handleQuery)
		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/explain", s.handleExplain)
		r.Post("/translate", s.handleTranslate)
		r.Post("/detect-language", s.handleDetectLanguage)
		r.Get("/patients/{id}/summary", s.handlePatientSummary)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.From(r.Context()).Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
