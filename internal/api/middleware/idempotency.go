package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ayo6706/backoffice-ledger/internal/api/problem"
	"github.com/ayo6706/backoffice-ledger/internal/idempotency"
	"github.com/ayo6706/backoffice-ledger/internal/observability"
	"go.uber.org/zap"
)

var idempotentMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// IdempotencyStore persists the response recorded for an Idempotency-Key.
type IdempotencyStore interface {
	Lookup(ctx context.Context, req idempotency.Request) (*idempotency.Record, error)
	Reserve(ctx context.Context, req idempotency.Request) (bool, error)
	Finalize(ctx context.Context, req idempotency.Request, resp idempotency.Response) (*idempotency.Record, error)
	Release(ctx context.Context, req idempotency.Request) error
	WaitForCompletion(ctx context.Context, req idempotency.Request) (*idempotency.Record, error)
}

// IdempotencyMiddleware enforces the Idempotency-Key contract for mutating
// requests. A key belongs to the account that first used it. Server errors
// are not recorded so the caller can retry them with the same key.
func IdempotencyMiddleware(store IdempotencyStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := idempotentMethods[r.Method]; !ok || isNilStore(store) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), http.StatusText(http.StatusBadRequest), "Idempotency-Key header is required")
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			req := idempotency.Request{
				Key:    key,
				Owner:  requestOwner(r),
				Hash:   hashRequest(r.Method, r.URL.Path, bodyBytes),
				Method: r.Method,
				Path:   r.URL.Path,
			}

			rec, err := store.Lookup(r.Context(), req)
			switch {
			case err == nil:
				observability.IncrementIdempotencyEvent("replay")
				respondFromRecord(w, rec)
				return
			case writeKeyConflict(w, r, err):
				return
			case errors.Is(err, idempotency.ErrInProgress):
				awaitOriginal(w, r, store, req, logger, "replay_after_wait")
				return
			case !errors.Is(err, idempotency.ErrNotFound):
				observability.IncrementIdempotencyEvent("lookup_error")
				logger.Warn("idempotency lookup failed", zap.Error(err))
			}

			reserved, err := store.Reserve(r.Context(), req)
			if err != nil {
				observability.IncrementIdempotencyEvent("reserve_error")
				logger.Error("idempotency reserve failed", zap.Error(err))
				problem.Write(w, r, http.StatusInternalServerError, problem.Type("idempotency/unavailable"), http.StatusText(http.StatusInternalServerError), "idempotency unavailable")
				return
			}
			if !reserved {
				awaitOriginal(w, r, store, req, logger, "replay_after_reserve")
				return
			}
			observability.IncrementIdempotencyEvent("reserved")

			recorder := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			resp := idempotency.Response{
				Status:      recorder.status,
				Body:        recorder.body.Bytes(),
				ContentType: recorder.Header().Get("Content-Type"),
			}
			if resp.Status == 0 {
				resp.Status = http.StatusOK
			}
			if resp.ContentType == "" {
				resp.ContentType = "application/json"
			}

			// the request context may already be gone once the handler returns
			finishCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
			defer cancel()

			if resp.Status >= http.StatusInternalServerError {
				if err := store.Release(finishCtx, req); err != nil {
					observability.IncrementIdempotencyEvent("release_error")
					logger.Warn("idempotency release failed", zap.Error(err), zap.String("key", key))
				} else {
					observability.IncrementIdempotencyEvent("released")
				}
				return
			}

			if _, err := store.Finalize(finishCtx, req, resp); err != nil {
				observability.IncrementIdempotencyEvent("finalize_error")
				logger.Warn("idempotency finalize failed", zap.Error(err), zap.String("key", key))
			} else {
				observability.IncrementIdempotencyEvent("finalized")
			}
		})
	}
}

// awaitOriginal waits for the request that holds the key and replays its
// response.
func awaitOriginal(w http.ResponseWriter, r *http.Request, store IdempotencyStore, req idempotency.Request, logger *zap.Logger, event string) {
	rec, err := store.WaitForCompletion(r.Context(), req)
	if err == nil {
		observability.IncrementIdempotencyEvent(event)
		respondFromRecord(w, rec)
		return
	}
	if writeKeyConflict(w, r, err) {
		return
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	logger.Warn("idempotency wait failed", zap.Error(err))
	problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), http.StatusText(http.StatusConflict), "idempotency processing")
}

// writeKeyConflict answers 409 when the key was claimed by another caller or
// by a different request. It reports whether a response was written.
func writeKeyConflict(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, idempotency.ErrOwnerMismatch):
		observability.IncrementIdempotencyEvent("owner_mismatch")
		problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), http.StatusText(http.StatusConflict), "idempotency key was used by another caller")
	case errors.Is(err, idempotency.ErrHashMismatch):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), http.StatusText(http.StatusConflict), "conflicting idempotency key")
	default:
		return false
	}
	return true
}

// requestOwner scopes a key to the authenticated account. Unauthenticated
// routes share the empty owner.
func requestOwner(r *http.Request) string {
	if accountID, ok := AccountIDFromContext(r.Context()); ok {
		return accountID.String()
	}
	return ""
}

func isNilStore(store IdempotencyStore) bool {
	if store == nil {
		return true
	}
	s, ok := store.(*idempotency.Store)
	return ok && s == nil
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256(append([]byte(method+"|"+path+"|"), body...))
	return hex.EncodeToString(sum[:])
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}

func respondFromRecord(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Idempotent-Replay", rec.ServedBy)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
