package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

// LedgerHandler serves withdraw and deposit records and their status changes.
type LedgerHandler struct {
	ledger *service.LedgerService
}

func NewLedgerHandler(ledger *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// CreateTransactionRequest is the body of POST /v1/withdraws and POST /v1/deposits.
type CreateTransactionRequest struct {
	AccountID   string       `json:"account_id"`
	Amount      domain.Money `json:"amount"`
	FeeType     *string      `json:"fee_type"`
	CurrencyID  *string      `json:"currency_id"`
	NetworkID   *string      `json:"network_id"`
	Destination *string      `json:"destination"`
	Note        *string      `json:"note"`
}

// ChangeStatusRequest is the body of the status endpoints.
type ChangeStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// CreateWithdraw handles POST /v1/withdraws. Callers withdraw from their own
// account; admins may name any account.
func (h *LedgerHandler) CreateWithdraw(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, domain.KindWithdraw)
}

// CreateDeposit handles POST /v1/deposits.
func (h *LedgerHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, domain.KindDeposit)
}

func (h *LedgerHandler) create(w http.ResponseWriter, r *http.Request, kind domain.Kind) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	reference := r.Header.Get("Idempotency-Key")
	if reference == "" {
		RespondError(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
		return
	}

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	accountID := actorID
	if req.AccountID != "" {
		parsed, ok := parseUUIDParam(w, r, req.AccountID, "account-id")
		if !ok {
			return
		}
		accountID = parsed
	}
	if !isAdmin && accountID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	var feeType *domain.FeeType
	if req.FeeType != nil {
		ft, err := domain.ParseFeeType(*req.FeeType)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-fee-type", "fee_type must be DEPOSIT or WITHDRAW")
			return
		}
		feeType = &ft
	}

	createReq := service.CreateRequest{
		AccountID: accountID,
		Amount:    req.Amount,
		FeeType:   feeType,
		Routing: domain.Routing{
			CurrencyID:  req.CurrencyID,
			NetworkID:   req.NetworkID,
			Destination: req.Destination,
		},
		Note:      req.Note,
		Reference: reference,
		ActorID:   &actorID,
	}

	var res *service.CreateResult
	if kind == domain.KindWithdraw {
		res, err = h.ledger.CreateWithdraw(r.Context(), createReq)
	} else {
		res, err = h.ledger.CreateDeposit(r.Context(), createReq)
	}
	if err != nil {
		writeServiceError(w, r, "create "+kind.String(), err)
		return
	}

	if res.Replayed {
		w.Header().Set("X-Idempotent-Replay", "reference")
		RespondJSON(w, http.StatusOK, res.Transaction)
		return
	}
	RespondJSON(w, http.StatusCreated, res.Transaction)
}

// ChangeStatus handles PUT /v1/transactions/{id}/status.
func (h *LedgerHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, nil)
}

// ChangeWithdrawStatus handles PUT /v1/withdraws/{id}/status.
func (h *LedgerHandler) ChangeWithdrawStatus(w http.ResponseWriter, r *http.Request) {
	kind := domain.KindWithdraw
	h.changeStatus(w, r, &kind)
}

// ChangeDepositStatus handles PUT /v1/deposits/{id}/status.
func (h *LedgerHandler) ChangeDepositStatus(w http.ResponseWriter, r *http.Request) {
	kind := domain.KindDeposit
	h.changeStatus(w, r, &kind)
}

func (h *LedgerHandler) changeStatus(w http.ResponseWriter, r *http.Request, kind *domain.Kind) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	id, ok := parseUUIDParam(w, r, chi.URLParam(r, "id"), "transaction-id")
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-status", "status must be one of PENDING, IN_REVIEW, COMPLETED, FAILED, REFUND")
		return
	}

	tx, err := h.ledger.ChangeStatus(r.Context(), service.ChangeStatusRequest{
		TransactionID: id,
		Status:        status,
		Kind:          kind,
		ActorID:       &actorID,
		Note:          req.Note,
	})
	if err != nil {
		writeServiceError(w, r, "change status", err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// GetTransaction handles GET /v1/transactions/{id}. Non-admin callers only
// see records of their own account.
func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	id, ok := parseUUIDParam(w, r, chi.URLParam(r, "id"), "transaction-id")
	if !ok {
		return
	}

	tx, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get transaction", err)
		return
	}
	if !isAdmin && tx.AccountID != actorID {
		// hide existence from other accounts
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "transaction not found")
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

