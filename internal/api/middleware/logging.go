package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestLogContextKey contextKey = "request_log"

// requestLog collects fields that inner middleware learn after the access
// log middleware has already run, such as the authenticated account.
type requestLog struct {
	accountID string
}

func noteAccount(ctx context.Context, accountID string) {
	if l, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		l.accountID = accountID
	}
}

// LoggingMiddleware emits one access log line per request. Server errors are
// logged at error level.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &requestLog{}
			rw := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestLogContextKey, entry)))

			status := rw.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", rw.bytes),
				zap.String("trace_id", TraceIDFromContext(r.Context())),
				zap.Duration("duration", time.Since(start)),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				fields = append(fields, zap.String("route", rctx.RoutePattern()))
			}
			if entry.accountID != "" {
				fields = append(fields, zap.String("account_id", entry.accountID))
			}
			if key := r.Header.Get("Idempotency-Key"); key != "" {
				fields = append(fields, zap.String("idempotency_key", key))
			}
			if replay := rw.Header().Get("X-Idempotent-Replay"); replay != "" {
				fields = append(fields, zap.String("replayed_from", replay))
			}

			level := zapcore.InfoLevel
			if status >= http.StatusInternalServerError {
				level = zapcore.ErrorLevel
			}
			logger.Log(level, "http_request", fields...)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}
