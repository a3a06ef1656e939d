package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/warrantypanel/internal/auth"
	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// ApplyMiddleware wraps handler with recovery and request logging. Recovery
// is innermost so panics are caught before logging.
func ApplyMiddleware(handler http.Handler, logger *slog.Logger) http.Handler {
	return LoggingMiddleware(logger, RecoveryMiddleware(logger, handler))
}

// LoggingMiddleware logs each HTTP request with method, path, status, and duration.
func LoggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// RecoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func RecoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type sessionKey struct{}

// sessionFrom returns the session stored by requireSession.
func sessionFrom(ctx context.Context) model.Session {
	s, _ := ctx.Value(sessionKey{}).(model.Session)
	return s
}

// requireSession rejects requests without a live session token with 401.
func (h *Handler) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := h.auth.Authenticate(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			if !errors.Is(err, model.ErrUnauthenticated) {
				h.logger.Error("session lookup failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="warrantypanel"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, *session)))
	}
}
