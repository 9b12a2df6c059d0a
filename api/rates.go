package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"staffledger/rates"
)

type rateEntryView struct {
	ID        string          `json:"id"`
	Profile   string          `json:"profile"`
	Seniority rates.Seniority `json:"seniority"`
	WorkMode  rates.WorkMode  `json:"work_mode"`
	Location  *string         `json:"location,omitempty"`
	Credits   int64           `json:"credits"`
	MinSalary *int64          `json:"min_salary,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

func toRateEntryView(e rates.Entry) rateEntryView {
	return rateEntryView{
		ID:        e.ID,
		Profile:   e.Profile,
		Seniority: e.Seniority,
		WorkMode:  e.WorkMode,
		Location:  e.Location,
		Credits:   e.Credits,
		MinSalary: e.MinSalary,
		Active:    e.Active,
		CreatedAt: e.CreatedAt,
	}
}

func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""
	entries, err := h.rates.List(r.Context(), activeOnly)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	views := make([]rateEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toRateEntryView(e))
	}
	h.writeJSON(w, r, http.StatusOK, views)
}

func (h *Handler) QuoteRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile   string  `json:"profile" validate:"required"`
		Seniority string  `json:"seniority" validate:"required"`
		WorkMode  string  `json:"work_mode" validate:"required"`
		Location  *string `json:"location"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	quote, err := h.rates.Resolve(r.Context(), req.Profile, rates.Seniority(req.Seniority), rates.WorkMode(req.WorkMode), req.Location)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"credits": quote.Credits,
		"matched": quote.Matched,
	})
}

func (h *Handler) UpsertRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile   string  `json:"profile" validate:"required"`
		Seniority string  `json:"seniority" validate:"required"`
		WorkMode  string  `json:"work_mode" validate:"required"`
		Location  *string `json:"location"`
		Credits   int64   `json:"credits" validate:"gte=0"`
		MinSalary *int64  `json:"min_salary"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	entry, err := h.rates.Upsert(r.Context(), rates.UpsertParams{
		Profile:   req.Profile,
		Seniority: rates.Seniority(req.Seniority),
		WorkMode:  rates.WorkMode(req.WorkMode),
		Location:  req.Location,
		Credits:   req.Credits,
		MinSalary: req.MinSalary,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, toRateEntryView(entry))
}

func (h *Handler) DeactivateRate(w http.ResponseWriter, r *http.Request) {
	entry, err := h.rates.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toRateEntryView(entry))
}
