// Package posting drives a job posting through its lifecycle and keeps the
// credit ledger in step with every price-affecting change.
//
// Valid status graph:
//
//	draft ──publish──► active ──pause──► paused
//	                     ▲                  │
//	                     └────resume────────┘
//	         active │ paused ──close──► closed
//
// closed is terminal. Only publish moves credits; pause/resume/close never
// touch the ledger, and a paused or draft posting settles its price at the
// next publish.
package posting

import (
	"time"

	"staffledger/rates"
)

// Status values mirror the posting_status enum in PostgreSQL.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusClosed Status = "closed"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusDraft:  {StatusActive},
	StatusActive: {StatusPaused, StatusClosed},
	StatusPaused: {StatusActive, StatusClosed},
	// closed is terminal
}

func transitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Posting mirrors the job_postings table. CreditCost reflects the price paid
// for the currently active pricing attributes; it is zero while in draft.
type Posting struct {
	ID          string
	OwnerUserID string
	Title       string
	Description string
	Profile     string
	Seniority   rates.Seniority
	WorkMode    rates.WorkMode
	Location    *string
	Status      Status
	CreditCost  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Changes is an explicit partial update: a nil field was absent from the
// payload, a non-nil field was sent. The presence of a pricing field
// (Profile, Seniority, WorkMode) is exactly what gates reconciliation, so
// the distinction must not be collapsed into zero values.
type Changes struct {
	Title       *string
	Description *string
	Profile     *string
	Seniority   *rates.Seniority
	WorkMode    *rates.WorkMode
	Location    *string
}

// merged returns the posting with the changes applied, without persisting.
func (c Changes) merged(p Posting) Posting {
	if c.Title != nil {
		p.Title = *c.Title
	}
	if c.Description != nil {
		p.Description = *c.Description
	}
	if c.Profile != nil {
		p.Profile = *c.Profile
	}
	if c.Seniority != nil {
		p.Seniority = *c.Seniority
	}
	if c.WorkMode != nil {
		p.WorkMode = *c.WorkMode
	}
	if c.Location != nil {
		p.Location = c.Location
	}
	return p
}

// touchesPricing reports whether any pricing-affecting field is present and
// differs from the stored value.
func (c Changes) touchesPricing(p Posting) bool {
	if c.Profile != nil && *c.Profile != p.Profile {
		return true
	}
	if c.Seniority != nil && *c.Seniority != p.Seniority {
		return true
	}
	if c.WorkMode != nil && *c.WorkMode != p.WorkMode {
		return true
	}
	return false
}

func (c Changes) empty() bool {
	return c.Title == nil && c.Description == nil && c.Profile == nil &&
		c.Seniority == nil && c.WorkMode == nil && c.Location == nil
}

// Actor is the verified identity acting on a posting. The engine trusts it;
// authentication happened upstream.
type Actor struct {
	UserID string
	Admin  bool
}

// EditResult tells the caller whether the edit charged or refunded credits,
// and by how much, so the UI can disclose it.
type EditResult struct {
	Posting  Posting
	Repriced bool
	Charged  int64
	Refunded int64
	NewCost  int64
	Matched  bool
}
