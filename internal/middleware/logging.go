package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"talentforge/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func Logger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			duration := time.Since(start)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", recorder.status),
				zap.Int64("durationMs", duration.Milliseconds()),
				zap.String("requestId", GetRequestID(r.Context())),
			)

			metrics.HTTPRequests.WithLabelValues(r.Method, http.StatusText(recorder.status)).Inc()
			metrics.HTTPDuration.Observe(duration.Seconds())
			if recorder.status >= http.StatusInternalServerError {
				metrics.HTTPErrors.Inc()
			}
		})
	}
}
