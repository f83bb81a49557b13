package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const maxTraceIDLength = 64

// TraceMiddleware propagates the caller's X-Trace-ID, or X-Request-ID as a
// fallback, and mints a fresh id when neither is usable. The id is echoed on
// the response.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if !validTraceID(traceID) {
			traceID = r.Header.Get("X-Request-ID")
		}
		if !validTraceID(traceID) {
			traceID = uuid.NewString()
		}
		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(contextWithTraceID(r.Context(), traceID)))
	})
}

// validTraceID accepts short ids made of letters, digits and "-_.:" so a
// caller cannot inject arbitrary text into logs and problem bodies.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

func contextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey, traceID)
}
