package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/backoffice-ledger/internal/api/middleware"
	"github.com/ayo6706/backoffice-ledger/internal/api/problem"
	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	actorID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, false, errors.New("missing account in auth context")
	}
	return actorID, middleware.IsAdmin(r.Context()), nil
}

// writeServiceError maps ledger errors onto problem responses. Storage
// failures keep their cause out of the response body.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var transitionErr *domain.TransitionError
	switch {
	case errors.As(err, &transitionErr):
		RespondError(w, r, http.StatusBadRequest, "transaction/invalid-transition", transitionErr.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		RespondError(w, r, http.StatusNotFound, "account/not-found", "account not found")
	case errors.Is(err, domain.ErrTransactionNotFound):
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "transaction not found")
	case errors.Is(err, domain.ErrInsufficientBalance):
		RespondError(w, r, http.StatusBadRequest, "account/insufficient-balance", "insufficient balance")
	case errors.Is(err, domain.ErrAccountInactive):
		RespondError(w, r, http.StatusBadRequest, "account/inactive", "account is not active")
	case errors.Is(err, domain.ErrInvalidAmount):
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be greater than zero")
	case errors.Is(err, domain.ErrKindMismatch):
		RespondError(w, r, http.StatusBadRequest, "transaction/kind-mismatch", "transaction kind does not match the route")
	case errors.Is(err, domain.ErrMissingReference):
		RespondError(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
	case errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, domain.ErrInvalidKind), errors.Is(err, domain.ErrInvalidFeeType):
		RespondError(w, r, http.StatusBadRequest, "request/invalid-field", err.Error())
	case errors.Is(err, domain.ErrConflict):
		RespondError(w, r, http.StatusConflict, "transaction/reference-conflict", "reference already used by a different request")
	case domain.IsRetryable(err):
		zap.L().Warn(op+" failed with a retryable storage error", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		RespondError(w, r, http.StatusServiceUnavailable, "storage/unavailable", "temporary storage failure, retry with the same Idempotency-Key")
	default:
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error(op+" failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+field, "Invalid "+strings.ReplaceAll(field, "-", "_"))
		return uuid.Nil, false
	}
	return id, true
}
