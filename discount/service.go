package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	// ErrBadCodeFormat signals a code outside the alnum 4-20 shape.
	ErrBadCodeFormat = errors.New("discount: code must be 4-20 alphanumeric characters")
	// ErrBadPercent signals a percentage outside 0-100.
	ErrBadPercent = errors.New("discount: percent must be between 0 and 100")
)

// Basis selects which price a vendor commission is computed on.
type Basis string

const (
	BasisFinal    Basis = "final"
	BasisOriginal Basis = "original"
)

// Config carries the commission policy knobs.
type Config struct {
	// CommissionBasis picks the price the commission percentage applies to.
	// Observed behavior of the reference tests implies the discounted price,
	// so BasisFinal is the default.
	CommissionBasis Basis
	// DueMonths is added to the purchase time to produce the payout due date.
	DueMonths int
}

// OutboxWriter appends an event inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Engine validates vendor discount codes, applies them to purchases, and
// tracks commission payout state.
type Engine struct {
	pool        TxBeginner
	repo        Repository
	cfg         Config
	outbox      OutboxWriter
	idGenerator func() string
	now         func() time.Time
}

func NewEngine(pool TxBeginner, repo Repository, cfg Config) *Engine {
	if cfg.CommissionBasis == "" {
		cfg.CommissionBasis = BasisFinal
	}
	if cfg.DueMonths <= 0 {
		cfg.DueMonths = 4
	}
	return &Engine{
		pool:        pool,
		repo:        repo,
		cfg:         cfg,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (e *Engine) WithOutbox(w OutboxWriter) *Engine {
	e.outbox = w
	return e
}

func (e *Engine) WithIDGenerator(gen func() string) *Engine {
	e.idGenerator = gen
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateCodeParams describes a new vendor code.
type CreateCodeParams struct {
	OwnerUserID       string
	Code              string
	DiscountPercent   int
	CommissionPercent int
}

// CreateCode activates a new code for the vendor, retiring any previous
// active code in the same transaction so at most one stays active.
func (e *Engine) CreateCode(ctx context.Context, params CreateCodeParams) (Code, error) {
	if params.OwnerUserID == "" {
		return Code{}, fmt.Errorf("discount: owner user id required")
	}
	code := strings.TrimSpace(params.Code)
	if !codePattern.MatchString(code) {
		return Code{}, ErrBadCodeFormat
	}
	if params.DiscountPercent < 0 || params.DiscountPercent > 100 ||
		params.CommissionPercent < 0 || params.CommissionPercent > 100 {
		return Code{}, ErrBadPercent
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Code{}, fmt.Errorf("discount: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := e.repo.DeactivateVendorCodes(ctx, tx, params.OwnerUserID); err != nil {
		return Code{}, err
	}

	created, err := e.repo.InsertCode(ctx, tx, Code{
		ID:                e.idGenerator(),
		OwnerUserID:       params.OwnerUserID,
		Code:              code,
		DiscountPercent:   params.DiscountPercent,
		CommissionPercent: params.CommissionPercent,
	})
	if err != nil {
		return Code{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Code{}, fmt.Errorf("discount: commit tx: %w", err)
	}
	return created, nil
}

func (e *Engine) DeactivateCode(ctx context.Context, id, ownerUserID string) (Code, error) {
	if id == "" || ownerUserID == "" {
		return Code{}, fmt.Errorf("discount: code id and owner required")
	}
	return e.repo.DeactivateCode(ctx, id, ownerUserID)
}

func (e *Engine) ListCodes(ctx context.Context, ownerUserID string) ([]Code, error) {
	return e.repo.ListByOwner(ctx, ownerUserID)
}

// Validate quotes what a code would do to the given price. Unknown and
// inactive codes both come back Valid=false so callers cannot distinguish
// them; a malformed code is a caller error.
func (e *Engine) Validate(ctx context.Context, code string, price int64) (Validation, error) {
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return Validation{}, ErrBadCodeFormat
	}
	if price < 0 {
		return Validation{}, fmt.Errorf("discount: price must not be negative")
	}

	active, err := e.repo.GetActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return Validation{Valid: false, FinalPrice: price}, nil
		}
		return Validation{}, err
	}

	discountAmount := roundPercent(price, active.DiscountPercent)
	return Validation{
		Valid:           true,
		DiscountPercent: active.DiscountPercent,
		DiscountAmount:  discountAmount,
		FinalPrice:      price - discountAmount,
	}, nil
}

// Apply validates the code inside the purchase transaction and records the
// commission for it. It satisfies the credit ledger's DiscountApplier so the
// commission row and the credit grant commit or roll back together.
func (e *Engine) Apply(ctx context.Context, tx pgx.Tx, code string, price int64, purchaseID string) (int64, int64, error) {
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return 0, 0, ErrBadCodeFormat
	}
	if purchaseID == "" {
		return 0, 0, fmt.Errorf("discount: purchase id required")
	}

	active, err := e.repo.GetActiveByCodeTx(ctx, tx, code)
	if err != nil {
		return 0, 0, err
	}

	discountAmount := roundPercent(price, active.DiscountPercent)
	finalPrice := price - discountAmount

	if _, err := e.recordUse(ctx, tx, active, price, discountAmount, finalPrice, purchaseID); err != nil {
		return 0, 0, err
	}
	return discountAmount, finalPrice, nil
}

// RecordCommissionParams identifies a completed purchase a commission is owed
// for.
type RecordCommissionParams struct {
	Code          string
	OriginalPrice int64
	PurchaseID    string
}

// RecordCommission creates the commission record for a purchase in its own
// transaction. Replays on the same purchase id return the stored record.
func (e *Engine) RecordCommission(ctx context.Context, params RecordCommissionParams) (Use, error) {
	code := strings.TrimSpace(params.Code)
	if !codePattern.MatchString(code) {
		return Use{}, ErrBadCodeFormat
	}
	if params.PurchaseID == "" {
		return Use{}, fmt.Errorf("discount: purchase id required")
	}
	if params.OriginalPrice < 0 {
		return Use{}, fmt.Errorf("discount: price must not be negative")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Use{}, fmt.Errorf("discount: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	active, err := e.repo.GetActiveByCodeTx(ctx, tx, code)
	if err != nil {
		return Use{}, err
	}

	discountAmount := roundPercent(params.OriginalPrice, active.DiscountPercent)
	finalPrice := params.OriginalPrice - discountAmount

	use, err := e.recordUse(ctx, tx, active, params.OriginalPrice, discountAmount, finalPrice, params.PurchaseID)
	if err != nil {
		return Use{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Use{}, fmt.Errorf("discount: commit tx: %w", err)
	}
	return use, nil
}

func (e *Engine) recordUse(ctx context.Context, tx pgx.Tx, code Code, originalPrice, discountAmount, finalPrice int64, purchaseID string) (Use, error) {
	basis := finalPrice
	if e.cfg.CommissionBasis == BasisOriginal {
		basis = originalPrice
	}

	use, created, err := e.repo.InsertUse(ctx, tx, Use{
		ID:               e.idGenerator(),
		CodeID:           code.ID,
		PurchaseID:       purchaseID,
		OriginalPrice:    originalPrice,
		DiscountAmount:   discountAmount,
		FinalPrice:       finalPrice,
		CommissionAmount: roundPercent(basis, code.CommissionPercent),
		Status:           CommissionPending,
		PaymentDueDate:   e.now().AddDate(0, e.cfg.DueMonths, 0),
	})
	if err != nil {
		return Use{}, err
	}

	if created && e.outbox != nil {
		payload := map[string]any{
			"use_id":      use.ID,
			"code_id":     code.ID,
			"purchase_id": purchaseID,
			"commission":  use.CommissionAmount,
		}
		if err := e.outbox.Enqueue(ctx, tx, "commission.recorded", payload); err != nil {
			return Use{}, fmt.Errorf("discount: enqueue outbox: %w", err)
		}
	}
	return use, nil
}

// MarkPaid flips a commission record from pending to paid. Marking an
// already-paid record again is a safe no-op that returns the stored record,
// so aggregates never double-count.
func (e *Engine) MarkPaid(ctx context.Context, useID string, proofURL *string) (Use, error) {
	if useID == "" {
		return Use{}, fmt.Errorf("discount: use id required")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Use{}, fmt.Errorf("discount: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	use, err := e.repo.GetUseForUpdate(ctx, tx, useID)
	if err != nil {
		return Use{}, err
	}
	if use.Status == CommissionPaid {
		return use, nil
	}

	paid, err := e.repo.MarkUsePaid(ctx, tx, useID, proofURL)
	if err != nil {
		return Use{}, err
	}

	if e.outbox != nil {
		payload := map[string]any{
			"use_id":     paid.ID,
			"commission": paid.CommissionAmount,
		}
		if err := e.outbox.Enqueue(ctx, tx, "commission.paid", payload); err != nil {
			return Use{}, fmt.Errorf("discount: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Use{}, fmt.Errorf("discount: commit tx: %w", err)
	}
	return paid, nil
}

func (e *Engine) GetUse(ctx context.Context, useID string) (Use, error) {
	return e.repo.GetUse(ctx, useID)
}

// VendorSummary aggregates the vendor's pending and paid commissions, derived
// solely from commission_status.
func (e *Engine) VendorSummary(ctx context.Context, ownerUserID string) (Summary, error) {
	if ownerUserID == "" {
		return Summary{}, fmt.Errorf("discount: owner user id required")
	}
	return e.repo.SummarizeByVendor(ctx, ownerUserID)
}
