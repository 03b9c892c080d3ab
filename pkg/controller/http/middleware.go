package http

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// requestLogger attaches a logger carrying the HTTP request ID to the request context
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.From(r.Context())
		if id := middleware.GetReqID(r.Context()); id != "" {
			logger = logger.With("http_request_id", id)
		}
		next.ServeHTTP(w, r.WithContext(logging.With(r.Context(), logger)))
	})
}

// bodyLimit caps the size of request bodies
func bodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
