package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"staffledger/discount"
)

type discountCodeView struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	DiscountPercent   int       `json:"discount_percent"`
	CommissionPercent int       `json:"commission_percent"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
}

func toDiscountCodeView(c discount.Code) discountCodeView {
	return discountCodeView{
		ID:                c.ID,
		Code:              c.Code,
		DiscountPercent:   c.DiscountPercent,
		CommissionPercent: c.CommissionPercent,
		Active:            c.Active,
		CreatedAt:         c.CreatedAt,
	}
}

func (h *Handler) CreateDiscountCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code              string `json:"code" validate:"required"`
		DiscountPercent   int    `json:"discount_percent" validate:"gte=0,lte=100"`
		CommissionPercent int    `json:"commission_percent" validate:"gte=0,lte=100"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	created, err := h.discounts.CreateCode(r.Context(), discount.CreateCodeParams{
		OwnerUserID:       callerID(r),
		Code:              req.Code,
		DiscountPercent:   req.DiscountPercent,
		CommissionPercent: req.CommissionPercent,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, toDiscountCodeView(created))
}

func (h *Handler) ListDiscountCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.discounts.ListCodes(r.Context(), callerID(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	views := make([]discountCodeView, 0, len(codes))
	for _, c := range codes {
		views = append(views, toDiscountCodeView(c))
	}
	h.writeJSON(w, r, http.StatusOK, views)
}

func (h *Handler) DeactivateDiscountCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.discounts.DeactivateCode(r.Context(), chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toDiscountCodeView(code))
}

func (h *Handler) ValidateDiscountCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code  string `json:"code" validate:"required"`
		Price int64  `json:"price" validate:"gte=0"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	v, err := h.discounts.Validate(r.Context(), req.Code, req.Price)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"valid":            v.Valid,
		"discount_percent": v.DiscountPercent,
		"discount_amount":  v.DiscountAmount,
		"final_price":      v.FinalPrice,
	})
}

func (h *Handler) MarkCommissionPaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProofURL *string `json:"proof_url"`
	}
	// body is optional: a payout without a proof link is still a payout
	if r.ContentLength > 0 {
		if err := h.readJSON(r, &req); err != nil {
			h.badRequest(w, r, err)
			return
		}
	}

	use, err := h.discounts.MarkPaid(r.Context(), chi.URLParam(r, "id"), req.ProofURL)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"id":                use.ID,
		"purchase_id":       use.PurchaseID,
		"commission_amount": use.CommissionAmount,
		"commission_status": use.Status,
		"payment_due_date":  use.PaymentDueDate,
		"paid_at":           use.PaidAt,
		"proof_url":         use.ProofURL,
	})
}

func (h *Handler) VendorCommissionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.discounts.VendorSummary(r.Context(), callerID(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"pending_count":  summary.PendingCount,
		"pending_amount": summary.PendingAmount,
		"paid_count":     summary.PaidCount,
		"paid_amount":    summary.PaidAmount,
	})
}
