package api

import (
	"context"
	"net/http"
	"time"

	"github.com/solatis/segmentkeeper/internal/core/metrics"
)

type routeKey struct{}

// route registers fn under pattern and records the pattern for the request
// log, since the outer mux only sees the /api/ prefix.
func route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if p, ok := r.Context().Value(routeKey{}).(*string); ok {
			*p = pattern
		}
		fn(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// logRequests logs one line per request and feeds the HTTP metrics.
func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		pattern := "unmatched"
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), routeKey{}, &pattern)))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.ObserveRequest(pattern, rec.status, elapsed)

		level := s.logger.Info
		if rec.status >= http.StatusInternalServerError {
			level = s.logger.Warn
		}
		level("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", pattern,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

// limit bounds request bodies and handling time.
func (s *Service) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
