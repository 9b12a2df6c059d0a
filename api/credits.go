package api

import (
	"net/http"
	"strconv"
	"time"

	"staffledger/credit"
)

type accountView struct {
	ID          string `json:"id"`
	OwnerUserID string `json:"owner_user_id"`
	Balance     int64  `json:"balance"`
}

type transactionView struct {
	ID            string      `json:"id"`
	Kind          credit.Kind `json:"kind"`
	Amount        int64       `json:"amount"`
	BalanceBefore int64       `json:"balance_before"`
	BalanceAfter  int64       `json:"balance_after"`
	Description   string      `json:"description"`
	RelatedJobID  *string     `json:"related_job_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

func toTransactionView(t credit.Transaction) transactionView {
	return transactionView{
		ID:            t.ID,
		Kind:          t.Kind,
		Amount:        t.Amount,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Description:   t.Description,
		RelatedJobID:  t.RelatedJobID,
		CreatedAt:     t.CreatedAt,
	}
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.GetByOwner(r.Context(), callerID(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, accountView{
		ID:          account.ID,
		OwnerUserID: account.OwnerUserID,
		Balance:     account.Balance,
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.GetByOwner(r.Context(), callerID(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	txns, err := h.ledger.ListTransactions(r.Context(), account.ID, limit)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	views := make([]transactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, toTransactionView(t))
	}
	h.writeJSON(w, r, http.StatusOK, views)
}

func (h *Handler) PurchaseCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credits      int64  `json:"credits" validate:"required,gt=0"`
		Price        int64  `json:"price" validate:"gte=0"`
		DiscountCode string `json:"discount_code"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	account, err := h.ledger.GetByOwner(r.Context(), callerID(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	purchase, err := h.ledger.PurchaseCredits(r.Context(), credit.PurchaseParams{
		AccountID:    account.ID,
		Credits:      req.Credits,
		Price:        req.Price,
		DiscountCode: req.DiscountCode,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, map[string]any{
		"purchase_id":     purchase.ID,
		"transaction":     toTransactionView(purchase.Transaction),
		"original_price":  purchase.OriginalPrice,
		"discount_amount": purchase.DiscountAmount,
		"final_price":     purchase.FinalPrice,
		"code_applied":    purchase.CodeApplied,
	})
}
