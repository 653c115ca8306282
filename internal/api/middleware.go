package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/novadent/clinic-core/internal/gateway"
)

// requestIDHeader carries the request ID on both request and response.
const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags each request with an ID for log correlation.
// A client-supplied X-Request-ID is kept so upstream proxies can trace
// a request through the gateway; otherwise one is generated.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r.Header.Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware writes one access-log line per request. Runs inside
// the gateway so the line carries the resolved subject and tenant when
// a session survived validation.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Header.Get(requestIDHeader),
		}
		if id, ok := gateway.IdentityFromContext(r.Context()); ok && id.Session != nil {
			fields = append(fields, "subject_id", id.Session.SubjectID)
			if id.Profile != nil {
				fields = append(fields, "tenant_id", id.Profile.TenantID)
			}
		}
		s.logger.Info("http request", fields...)
	})
}

// recoveryMiddleware converts handler panics into a 500 response so one
// bad request cannot take the gateway down.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", r.Header.Get(requestIDHeader),
				)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsDefaultMethods and corsDefaultHeaders apply when the config lists
// none. Credentials are always allowed: the session rides on cookies.
const (
	corsDefaultMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsDefaultHeaders = "Authorization, Content-Type, X-Request-ID"
)

// corsMiddleware answers cross-origin requests from the clinic app
// shells listed in server.cors.allowed_origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	methods := corsDefaultMethods
	if len(s.cfg.CORS.AllowedMethods) > 0 {
		methods = strings.Join(s.cfg.CORS.AllowedMethods, ", ")
	}
	headers := corsDefaultHeaders
	if len(s.cfg.CORS.AllowedHeaders) > 0 {
		headers = strings.Join(s.cfg.CORS.AllowedHeaders, ", ")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks the origin against the configured list.
// An empty list allows all origins (dev mode).
func (s *Server) isAllowedOrigin(origin string) bool {
	if len(s.cfg.CORS.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// maxRequestBodySize bounds request bodies (1 MB). The largest
// legitimate payload is a profile update; anything bigger is abuse.
const maxRequestBodySize = 1 << 20

// bodySizeLimitMiddleware caps incoming request bodies.
func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
