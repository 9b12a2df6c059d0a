package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"staffledger/posting"
	"staffledger/rates"
)

type postingView struct {
	ID          string          `json:"id"`
	OwnerUserID string          `json:"owner_user_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Profile     string          `json:"profile"`
	Seniority   rates.Seniority `json:"seniority"`
	WorkMode    rates.WorkMode  `json:"work_mode"`
	Location    *string         `json:"location,omitempty"`
	Status      posting.Status  `json:"status"`
	CreditCost  int64           `json:"credit_cost"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toPostingView(p posting.Posting) postingView {
	return postingView{
		ID:          p.ID,
		OwnerUserID: p.OwnerUserID,
		Title:       p.Title,
		Description: p.Description,
		Profile:     p.Profile,
		Seniority:   p.Seniority,
		WorkMode:    p.WorkMode,
		Location:    p.Location,
		Status:      p.Status,
		CreditCost:  p.CreditCost,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (h *Handler) CreatePosting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string  `json:"title" validate:"required"`
		Description string  `json:"description"`
		Profile     string  `json:"profile" validate:"required"`
		Seniority   string  `json:"seniority" validate:"required"`
		WorkMode    string  `json:"work_mode" validate:"required"`
		Location    *string `json:"location"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if !rates.ValidSeniority(rates.Seniority(req.Seniority)) {
		h.errorResponse(w, r, http.StatusUnprocessableEntity, "unknown seniority")
		return
	}
	if !rates.ValidWorkMode(rates.WorkMode(req.WorkMode)) {
		h.errorResponse(w, r, http.StatusUnprocessableEntity, "unknown work mode")
		return
	}

	created, err := h.postings.Create(r.Context(), actorFrom(r), posting.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Profile:     req.Profile,
		Seniority:   rates.Seniority(req.Seniority),
		WorkMode:    rates.WorkMode(req.WorkMode),
		Location:    req.Location,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, toPostingView(created))
}

func (h *Handler) ListPostings(w http.ResponseWriter, r *http.Request) {
	postings, err := h.postings.ListByOwner(r.Context(), callerID(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	views := make([]postingView, 0, len(postings))
	for _, p := range postings {
		views = append(views, toPostingView(p))
	}
	h.writeJSON(w, r, http.StatusOK, views)
}

func (h *Handler) GetPosting(w http.ResponseWriter, r *http.Request) {
	p, err := h.postings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toPostingView(p))
}

func (h *Handler) EditPosting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Profile     *string `json:"profile"`
		Seniority   *string `json:"seniority"`
		WorkMode    *string `json:"work_mode"`
		Location    *string `json:"location"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	changes := posting.Changes{
		Title:       req.Title,
		Description: req.Description,
		Profile:     req.Profile,
		Location:    req.Location,
	}
	if req.Seniority != nil {
		s := rates.Seniority(*req.Seniority)
		changes.Seniority = &s
	}
	if req.WorkMode != nil {
		m := rates.WorkMode(*req.WorkMode)
		changes.WorkMode = &m
	}

	result, err := h.postings.Edit(r.Context(), chi.URLParam(r, "id"), actorFrom(r), changes)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"posting":          toPostingView(result.Posting),
		"repriced":         result.Repriced,
		"credits_charged":  result.Charged,
		"credits_refunded": result.Refunded,
		"credit_cost":      result.NewCost,
	})
}

func (h *Handler) PublishPosting(w http.ResponseWriter, r *http.Request) {
	result, err := h.postings.Publish(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"posting":     toPostingView(result.Posting),
		"credit_cost": result.Cost,
		"charged":     result.Charged,
	})
}

func (h *Handler) PausePosting(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.postings.Pause)
}

func (h *Handler) ResumePosting(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.postings.Resume)
}

func (h *Handler) ClosePosting(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.postings.Close)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, jobID string, actor posting.Actor) (posting.Posting, error)) {
	p, err := op(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toPostingView(p))
}
