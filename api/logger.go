package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logs every request once it has been served.
func NewLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}

			ipAddress := r.RemoteAddr
			if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
				ipAddress = forwarded
			}

			requestLogger := logger.With().
				Int("status", code).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("ip", ipAddress).
				Str("latency", time.Since(startTime).String()).
				Str("user-agent", r.UserAgent()).
				Logger()

			switch {
			case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
				requestLogger.Warn().Msg("HTTP Request")
			case code >= http.StatusInternalServerError:
				requestLogger.Error().Msg("HTTP Request")
			default:
				requestLogger.Info().Msg("HTTP Request")
			}
		})
	}
}
