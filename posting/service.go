package posting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staffledger/credit"
	"staffledger/rates"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	ErrNotOwned          = errors.New("posting: not owned by user")
	ErrInvalidTransition = errors.New("posting: invalid status transition")
	ErrNoFields          = errors.New("posting: no fields to update")
)

// InsufficientCreditsError reports exactly how many credits the operation
// needed versus what the account held, enabling direct-to-purchase flows.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("posting: insufficient credits: required %d, available %d", e.Required, e.Available)
}

// Resolver prices posting attributes. Implemented by the rates service.
type Resolver interface {
	Resolve(ctx context.Context, profile string, seniority rates.Seniority, workMode rates.WorkMode, location *string) (rates.Quote, error)
}

// LedgerWriter is the slice of the credit ledger the controller needs: the
// balance-safe append joined to the controller's transaction.
type LedgerWriter interface {
	AppendTx(ctx context.Context, tx pgx.Tx, params credit.AppendParams) (credit.Transaction, error)
	GetByOwner(ctx context.Context, ownerUserID string) (credit.Account, error)
}

// OutboxWriter appends an event inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service is the posting lifecycle controller. It owns the transition rules
// and the role policy (accounts of admin owners are exempt from credit
// checks); the ledger primitive it calls stays unconditionally balance-safe.
type Service struct {
	pool        TxBeginner
	repo        Repository
	resolver    Resolver
	ledger      LedgerWriter
	outbox      OutboxWriter
	idGenerator func() string
	now         func() time.Time
}

func NewService(pool TxBeginner, repo Repository, resolver Resolver, ledger LedgerWriter) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		resolver:    resolver,
		ledger:      ledger,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithOutbox(w OutboxWriter) *Service {
	s.outbox = w
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// CreateParams carries the fields of a new draft posting.
type CreateParams struct {
	Title       string
	Description string
	Profile     string
	Seniority   rates.Seniority
	WorkMode    rates.WorkMode
	Location    *string
}

// Create stores a new posting in draft. Drafts cost nothing; the price is
// settled at publish time.
func (s *Service) Create(ctx context.Context, actor Actor, params CreateParams) (Posting, error) {
	if actor.UserID == "" {
		return Posting{}, fmt.Errorf("posting: missing actor user id")
	}
	params.Title = strings.TrimSpace(params.Title)
	params.Profile = strings.TrimSpace(params.Profile)
	if params.Title == "" {
		return Posting{}, fmt.Errorf("posting: title required")
	}
	if params.Profile == "" {
		return Posting{}, fmt.Errorf("posting: profile required")
	}

	return s.repo.Create(ctx, Posting{
		ID:          s.idGenerator(),
		OwnerUserID: actor.UserID,
		Title:       params.Title,
		Description: params.Description,
		Profile:     params.Profile,
		Seniority:   params.Seniority,
		WorkMode:    params.WorkMode,
		Location:    params.Location,
		Status:      StatusDraft,
		CreditCost:  0,
	})
}

func (s *Service) Get(ctx context.Context, id string) (Posting, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, ownerUserID string) ([]Posting, error) {
	return s.repo.ListByOwner(ctx, ownerUserID)
}

// PublishResult reports the price the publish settled at.
type PublishResult struct {
	Posting Posting
	Cost    int64
	Matched bool
	Charged bool
}

// Publish moves a draft to active, debiting the owner's account for the
// resolved price. Postings owned by admins publish without touching the
// ledger regardless of who triggers the publish; everyone else needs the
// balance, checked under the account row lock so a concurrent spend cannot
// slip between check and debit.
func (s *Service) Publish(ctx context.Context, jobID string, actor Actor) (PublishResult, error) {
	if jobID == "" {
		return PublishResult{}, fmt.Errorf("posting: publish missing job id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PublishResult{}, fmt.Errorf("posting: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetForUpdate(ctx, tx, jobID)
	if err != nil {
		return PublishResult{}, err
	}
	if !actor.Admin && p.OwnerUserID != actor.UserID {
		return PublishResult{}, ErrNotOwned
	}
	if !transitionAllowed(p.Status, StatusActive) || p.Status != StatusDraft {
		return PublishResult{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, StatusActive)
	}

	quote, err := s.resolver.Resolve(ctx, p.Profile, p.Seniority, p.WorkMode, p.Location)
	if err != nil {
		return PublishResult{}, err
	}

	charged := false
	if quote.Credits > 0 {
		ownerAdmin, err := s.repo.IsAdminUser(ctx, tx, p.OwnerUserID)
		if err != nil {
			return PublishResult{}, err
		}
		if !ownerAdmin {
			account, err := s.ledger.GetByOwner(ctx, p.OwnerUserID)
			if err != nil {
				return PublishResult{}, err
			}
			relatedID := p.ID
			if _, err := s.ledger.AppendTx(ctx, tx, credit.AppendParams{
				AccountID:    account.ID,
				Kind:         credit.KindSpend,
				Amount:       -quote.Credits,
				Description:  fmt.Sprintf("publish: %s", p.Title),
				RelatedJobID: &relatedID,
			}); err != nil {
				return PublishResult{}, asInsufficientCredits(err)
			}
			charged = true
		}
	}

	p.Status = StatusActive
	p.CreditCost = quote.Credits

	updated, err := s.repo.Update(ctx, tx, p)
	if err != nil {
		return PublishResult{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"job_id":  updated.ID,
			"cost":    quote.Credits,
			"matched": quote.Matched,
		}
		if err := s.outbox.Enqueue(ctx, tx, "posting.published", payload); err != nil {
			return PublishResult{}, fmt.Errorf("posting: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return PublishResult{}, fmt.Errorf("posting: commit tx: %w", err)
	}

	return PublishResult{Posting: updated, Cost: quote.Credits, Matched: quote.Matched, Charged: charged}, nil
}

// Edit applies a partial update. When the posting is active and a
// pricing-affecting field changed, the posting is re-priced against the rate
// table and the owner's account trued up by the difference: upgrades spend,
// downgrades refund, equal prices leave the ledger alone. Accounts of admin
// owners are never charged or refunded, though the new cost is still
// recorded. The posting update and the ledger append share one transaction,
// so a failed credit check leaves both untouched.
func (s *Service) Edit(ctx context.Context, jobID string, actor Actor, changes Changes) (EditResult, error) {
	if jobID == "" {
		return EditResult{}, fmt.Errorf("posting: edit missing job id")
	}
	if changes.empty() {
		return EditResult{}, ErrNoFields
	}
	if changes.Seniority != nil && !rates.ValidSeniority(*changes.Seniority) {
		return EditResult{}, fmt.Errorf("posting: invalid seniority %q", *changes.Seniority)
	}
	if changes.WorkMode != nil && !rates.ValidWorkMode(*changes.WorkMode) {
		return EditResult{}, fmt.Errorf("posting: invalid work mode %q", *changes.WorkMode)
	}
	if changes.Title != nil && strings.TrimSpace(*changes.Title) == "" {
		return EditResult{}, fmt.Errorf("posting: title must not be empty")
	}
	if changes.Profile != nil && strings.TrimSpace(*changes.Profile) == "" {
		return EditResult{}, fmt.Errorf("posting: profile must not be empty")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return EditResult{}, fmt.Errorf("posting: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetForUpdate(ctx, tx, jobID)
	if err != nil {
		return EditResult{}, err
	}
	if !actor.Admin && p.OwnerUserID != actor.UserID {
		return EditResult{}, ErrNotOwned
	}

	merged := changes.merged(p)
	result := EditResult{NewCost: p.CreditCost}

	if p.Status == StatusActive && changes.touchesPricing(p) {
		quote, err := s.resolver.Resolve(ctx, merged.Profile, merged.Seniority, merged.WorkMode, merged.Location)
		if err != nil {
			return EditResult{}, err
		}

		diff := quote.Credits - p.CreditCost
		if diff != 0 {
			ownerAdmin, err := s.repo.IsAdminUser(ctx, tx, p.OwnerUserID)
			if err != nil {
				return EditResult{}, err
			}
			if !ownerAdmin {
				account, err := s.ledger.GetByOwner(ctx, p.OwnerUserID)
				if err != nil {
					return EditResult{}, err
				}
				relatedID := p.ID
				detail := pricingChangeDetail(p, merged)
				if diff > 0 {
					if _, err := s.ledger.AppendTx(ctx, tx, credit.AppendParams{
						AccountID:    account.ID,
						Kind:         credit.KindSpend,
						Amount:       -diff,
						Description:  fmt.Sprintf("edit adjustment: %s (%s)", merged.Title, detail),
						RelatedJobID: &relatedID,
					}); err != nil {
						return EditResult{}, asInsufficientCredits(err)
					}
					result.Charged = diff
				} else {
					if _, err := s.ledger.AppendTx(ctx, tx, credit.AppendParams{
						AccountID:    account.ID,
						Kind:         credit.KindRefund,
						Amount:       -diff,
						Description:  fmt.Sprintf("edit refund: %s (%s)", merged.Title, detail),
						RelatedJobID: &relatedID,
					}); err != nil {
						return EditResult{}, err
					}
					result.Refunded = -diff
				}
			}
		}

		merged.CreditCost = quote.Credits
		result.Repriced = true
		result.NewCost = quote.Credits
		result.Matched = quote.Matched
	}

	updated, err := s.repo.Update(ctx, tx, merged)
	if err != nil {
		return EditResult{}, err
	}
	result.Posting = updated

	if s.outbox != nil && result.Repriced {
		payload := map[string]any{
			"job_id":   updated.ID,
			"new_cost": result.NewCost,
			"charged":  result.Charged,
			"refunded": result.Refunded,
		}
		if err := s.outbox.Enqueue(ctx, tx, "posting.repriced", payload); err != nil {
			return EditResult{}, fmt.Errorf("posting: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return EditResult{}, fmt.Errorf("posting: commit tx: %w", err)
	}
	return result, nil
}

// Pause suspends an active posting. No credits move.
func (s *Service) Pause(ctx context.Context, jobID string, actor Actor) (Posting, error) {
	return s.transition(ctx, jobID, actor, StatusPaused, "")
}

// Resume re-activates a paused posting. The price settled at publish stays in
// force; resuming never re-prices.
func (s *Service) Resume(ctx context.Context, jobID string, actor Actor) (Posting, error) {
	return s.transition(ctx, jobID, actor, StatusActive, "")
}

// Close ends a posting for good. Closed is terminal and spent credits stay
// spent.
func (s *Service) Close(ctx context.Context, jobID string, actor Actor) (Posting, error) {
	return s.transition(ctx, jobID, actor, StatusClosed, "posting.closed")
}

func (s *Service) transition(ctx context.Context, jobID string, actor Actor, next Status, topic string) (Posting, error) {
	if jobID == "" {
		return Posting{}, fmt.Errorf("posting: transition missing job id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Posting{}, fmt.Errorf("posting: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetForUpdate(ctx, tx, jobID)
	if err != nil {
		return Posting{}, err
	}
	if !actor.Admin && p.OwnerUserID != actor.UserID {
		return Posting{}, ErrNotOwned
	}
	if !transitionAllowed(p.Status, next) {
		return Posting{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}

	p.Status = next
	updated, err := s.repo.Update(ctx, tx, p)
	if err != nil {
		return Posting{}, err
	}

	if s.outbox != nil && topic != "" {
		payload := map[string]any{
			"job_id": updated.ID,
			"status": updated.Status,
		}
		if err := s.outbox.Enqueue(ctx, tx, topic, payload); err != nil {
			return Posting{}, fmt.Errorf("posting: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Posting{}, fmt.Errorf("posting: commit tx: %w", err)
	}
	return updated, nil
}

// pricingChangeDetail summarizes the first pricing field that changed, e.g.
// "junior -> director", for the ledger description.
func pricingChangeDetail(old, merged Posting) string {
	if old.Seniority != merged.Seniority {
		return fmt.Sprintf("%s -> %s", old.Seniority, merged.Seniority)
	}
	if old.Profile != merged.Profile {
		return fmt.Sprintf("%s -> %s", old.Profile, merged.Profile)
	}
	if old.WorkMode != merged.WorkMode {
		return fmt.Sprintf("%s -> %s", old.WorkMode, merged.WorkMode)
	}
	return "repriced"
}

// asInsufficientCredits converts the ledger's balance failure into the
// controller-level error carrying the same numbers.
func asInsufficientCredits(err error) error {
	var funds *credit.InsufficientFundsError
	if errors.As(err, &funds) {
		return &InsufficientCreditsError{Required: funds.Required, Available: funds.Available}
	}
	return err
}
