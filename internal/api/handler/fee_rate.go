package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// FeeRateHandler manages the fee-rate catalog.
type FeeRateHandler struct {
	svc *service.FeeRateService
}

func NewFeeRateHandler(svc *service.FeeRateService) *FeeRateHandler {
	return &FeeRateHandler{svc: svc}
}

// Get handles GET /v1/fee-rates/{fee_type}.
func (h *FeeRateHandler) Get(w http.ResponseWriter, r *http.Request) {
	feeType, err := domain.ParseFeeType(chi.URLParam(r, "fee_type"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-fee-type", "fee_type must be DEPOSIT or WITHDRAW")
		return
	}

	rate, err := h.svc.Get(r.Context(), feeType)
	if err != nil {
		h.writeError(w, r, "get fee rate", err)
		return
	}
	RespondJSON(w, http.StatusOK, rate)
}

// Put handles PUT /v1/fee-rates/{fee_type}.
func (h *FeeRateHandler) Put(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	feeType, err := domain.ParseFeeType(chi.URLParam(r, "fee_type"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-fee-type", "fee_type must be DEPOSIT or WITHDRAW")
		return
	}

	var req struct {
		Percentage decimal.Decimal `json:"percentage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	rate, err := h.svc.Set(r.Context(), feeType, req.Percentage, &actorID)
	if err != nil {
		h.writeError(w, r, "set fee rate", err)
		return
	}
	RespondJSON(w, http.StatusOK, rate)
}

func (h *FeeRateHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrFeeRateNotFound):
		RespondError(w, r, http.StatusNotFound, "fee-rate/not-found", "fee rate not found")
	case errors.Is(err, service.ErrInvalidFeeRate):
		RespondError(w, r, http.StatusBadRequest, "fee-rate/invalid", "percentage must be between 0 and 100 with at most two decimals")
	default:
		writeServiceError(w, r, op, err)
	}
}
