package handler

import (
	"net/http"

	"github.com/ayo6706/backoffice-ledger/internal/service"
)

// ReconciliationHandler runs the balance-versus-entries check on demand.
type ReconciliationHandler struct {
	svc *service.ReconciliationService
}

func NewReconciliationHandler(svc *service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{svc: svc}
}

// Run handles POST /v1/admin/reconciliation.
func (h *ReconciliationHandler) Run(w http.ResponseWriter, r *http.Request) {
	imbalances, err := h.svc.Run(r.Context())
	if err != nil {
		writeServiceError(w, r, "reconciliation", err)
		return
	}
	if imbalances == nil {
		imbalances = []service.Imbalance{}
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"imbalanced_accounts": len(imbalances),
		"imbalances":          imbalances,
	})
}
