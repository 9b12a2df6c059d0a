// Package api exposes the engine over HTTP. Handlers decode and validate the
// payload, call one service method, and translate its errors; all policy
// lives in the services.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"staffledger/auth"
	"staffledger/credit"
	"staffledger/discount"
	"staffledger/posting"
	"staffledger/rates"
)

type Handler struct {
	validate  *validator.Validate
	auth      *auth.Service
	ledger    *credit.Ledger
	rates     *rates.Service
	postings  *posting.Service
	discounts *discount.Engine

	Mux *chi.Mux
}

func NewHandler(authSvc *auth.Service, ledger *credit.Ledger, ratesSvc *rates.Service, postings *posting.Service, discounts *discount.Engine) *Handler {
	return &Handler{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		auth:      authSvc,
		ledger:    ledger,
		rates:     ratesSvc,
		postings:  postings,
		discounts: discounts,

		Mux: chi.NewRouter(),
	}
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	h.Mux.Group(func(r chi.Router) {
		r.Use(h.authn)

		r.Get("/me", h.Me)

		r.Route("/rates", func(r chi.Router) {
			r.Get("/", h.ListRates)
			r.Post("/quote", h.QuoteRate)
			r.With(h.requireRole(auth.RoleAdmin)).Put("/", h.UpsertRate)
			r.With(h.requireRole(auth.RoleAdmin)).Delete("/{id}", h.DeactivateRate)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Use(h.requireRole(auth.RoleCompany, auth.RoleAdmin))
			r.Get("/account", h.GetAccount)
			r.Get("/transactions", h.ListTransactions)
			r.Post("/purchase", h.PurchaseCredits)
		})

		r.Route("/postings", func(r chi.Router) {
			r.Post("/", h.CreatePosting)
			r.Get("/", h.ListPostings)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetPosting)
				r.Patch("/", h.EditPosting)
				r.Post("/publish", h.PublishPosting)
				r.Post("/pause", h.PausePosting)
				r.Post("/resume", h.ResumePosting)
				r.Post("/close", h.ClosePosting)
			})
		})

		r.Route("/discount-codes", func(r chi.Router) {
			r.Post("/validate", h.ValidateDiscountCode)
			r.With(h.requireRole(auth.RoleVendor)).Post("/", h.CreateDiscountCode)
			r.With(h.requireRole(auth.RoleVendor)).Get("/", h.ListDiscountCodes)
			r.With(h.requireRole(auth.RoleVendor)).Delete("/{id}", h.DeactivateDiscountCode)
		})

		r.Route("/commissions", func(r chi.Router) {
			r.With(h.requireRole(auth.RoleVendor)).Get("/summary", h.VendorCommissionSummary)
			r.With(h.requireRole(auth.RoleAdmin)).Post("/{id}/paid", h.MarkCommissionPaid)
		})
	})
}
