package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/service"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// GetBalance handles GET /v1/accounts/me.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	account, err := h.svc.GetBalance(r.Context(), actorID)
	if err != nil {
		writeServiceError(w, r, "get balance", err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// GetStatement handles GET /v1/accounts/me/statement.
func (h *AccountHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	page, pageSize := pagination(r)
	statement, err := h.svc.GetStatement(r.Context(), actorID, page, pageSize)
	if err != nil {
		writeServiceError(w, r, "get statement", err)
		return
	}
	RespondJSON(w, http.StatusOK, statement)
}

// ListTransactions handles GET /v1/accounts/me/transactions.
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	page, pageSize := pagination(r)
	txs, err := h.svc.ListTransactions(r.Context(), actorID, page, pageSize)
	if err != nil {
		writeServiceError(w, r, "list transactions", err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"page":         page,
		"page_size":    pageSize,
	})
}

// CreateAccount handles POST /v1/accounts (admin).
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		OpeningBalance domain.Money `json:"opening_balance"`
		Status         string       `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	status := domain.AccountStatus(req.Status)
	if status != "" && status != domain.AccountStatusActive && status != domain.AccountStatusInactive {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-status", "status must be active or inactive")
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), req.OpeningBalance, status, &actorID)
	if err != nil {
		writeServiceError(w, r, "create account", err)
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	return page, pageSize
}
