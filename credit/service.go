package credit

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
	// ErrBadAmountSign signals an amount whose sign contradicts its kind.
	ErrBadAmountSign = errors.New("credit: amount sign does not match kind")
)

// OutboxWriter appends an event to the transactional outbox inside the
// caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// DiscountApplier validates a code and records its commission inside the
// purchase transaction. Implemented by the discount engine.
type DiscountApplier interface {
	Apply(ctx context.Context, tx pgx.Tx, code string, price int64, purchaseID string) (discountAmount int64, finalPrice int64, err error)
}

// Ledger is the balance-safe append primitive plus the account reads built on
// it. It never exempts anyone from the non-negativity check; role policy
// belongs to callers.
type Ledger struct {
	pool        TxBeginner
	repo        Repository
	outbox      OutboxWriter
	discounts   DiscountApplier
	idGenerator func() string
	now         func() time.Time
}

func NewLedger(pool TxBeginner, repo Repository) *Ledger {
	return &Ledger{
		pool:        pool,
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (l *Ledger) WithOutbox(w OutboxWriter) *Ledger {
	l.outbox = w
	return l
}

func (l *Ledger) WithDiscounts(d DiscountApplier) *Ledger {
	l.discounts = d
	return l
}

func (l *Ledger) WithIDGenerator(gen func() string) *Ledger {
	l.idGenerator = gen
	return l
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// AppendParams describes one ledger entry to record.
type AppendParams struct {
	AccountID    string
	Kind         Kind
	Amount       int64
	Description  string
	RelatedJobID *string
}

func (p AppendParams) validate() error {
	if p.AccountID == "" {
		return fmt.Errorf("credit: append missing account id")
	}
	if !validKind(p.Kind) {
		return fmt.Errorf("credit: invalid kind %q", p.Kind)
	}
	if p.Amount == 0 {
		return fmt.Errorf("credit: zero amount")
	}
	if !signMatches(p.Kind, p.Amount) {
		return ErrBadAmountSign
	}
	return nil
}

// Append records one transaction in its own database transaction.
func (l *Ledger) Append(ctx context.Context, params AppendParams) (Transaction, error) {
	if err := params.validate(); err != nil {
		return Transaction{}, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("credit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txn, err := l.AppendTx(ctx, tx, params)
	if err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("credit: commit tx: %w", err)
	}
	return txn, nil
}

// AppendTx records one transaction inside the caller's transaction so callers
// can bundle the append with their own writes (posting reconciliation does).
// The account row is locked for the rest of the transaction; a spend that
// would go negative fails with *InsufficientFundsError and writes nothing.
func (l *Ledger) AppendTx(ctx context.Context, tx pgx.Tx, params AppendParams) (Transaction, error) {
	if err := params.validate(); err != nil {
		return Transaction{}, err
	}

	account, err := l.repo.GetAccountForUpdate(ctx, tx, params.AccountID)
	if err != nil {
		return Transaction{}, err
	}

	balanceAfter := account.Balance + params.Amount
	if balanceAfter < 0 {
		return Transaction{}, &InsufficientFundsError{Required: -params.Amount, Available: account.Balance}
	}

	if err := l.repo.SetBalance(ctx, tx, account.ID, balanceAfter); err != nil {
		return Transaction{}, err
	}

	txn, err := l.repo.InsertTransaction(ctx, tx, Transaction{
		ID:            l.idGenerator(),
		AccountID:     account.ID,
		Kind:          params.Kind,
		Amount:        params.Amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  balanceAfter,
		Description:   params.Description,
		RelatedJobID:  params.RelatedJobID,
	})
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// Open creates the owner's account if it does not exist yet.
func (l *Ledger) Open(ctx context.Context, ownerUserID string) (Account, error) {
	if ownerUserID == "" {
		return Account{}, fmt.Errorf("credit: owner user id required")
	}
	return l.repo.CreateAccount(ctx, ownerUserID)
}

func (l *Ledger) Get(ctx context.Context, accountID string) (Account, error) {
	return l.repo.GetAccount(ctx, accountID)
}

func (l *Ledger) GetByOwner(ctx context.Context, ownerUserID string) (Account, error) {
	return l.repo.GetAccountByOwner(ctx, ownerUserID)
}

func (l *Ledger) ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	return l.repo.ListTransactions(ctx, accountID, limit)
}

// PurchaseParams describes a credit pack purchase. Price is the money amount
// paid, Credits the number of credits it grants. DiscountCode is optional.
type PurchaseParams struct {
	AccountID    string
	Credits      int64
	Price        int64
	DiscountCode string
	Description  string
}

// Purchase is the user-visible outcome of a credit pack purchase.
type Purchase struct {
	ID             string
	Transaction    Transaction
	OriginalPrice  int64
	DiscountAmount int64
	FinalPrice     int64
	CodeApplied    bool
}

// PurchaseCredits credits an account with a purchased pack. When a valid
// discount code is supplied the commission record is written in the same
// transaction as the ledger append, so the purchase, the credit grant, and
// the vendor commission always agree.
func (l *Ledger) PurchaseCredits(ctx context.Context, params PurchaseParams) (Purchase, error) {
	if params.AccountID == "" {
		return Purchase{}, fmt.Errorf("credit: purchase missing account id")
	}
	if params.Credits <= 0 {
		return Purchase{}, fmt.Errorf("credit: purchase credits must be positive")
	}
	if params.Price < 0 {
		return Purchase{}, fmt.Errorf("credit: purchase price must not be negative")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return Purchase{}, fmt.Errorf("credit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	purchaseID := l.idGenerator()
	result := Purchase{
		ID:            purchaseID,
		OriginalPrice: params.Price,
		FinalPrice:    params.Price,
	}

	code := strings.TrimSpace(params.DiscountCode)
	if code != "" && l.discounts != nil {
		discountAmount, finalPrice, err := l.discounts.Apply(ctx, tx, code, params.Price, purchaseID)
		if err != nil {
			return Purchase{}, err
		}
		result.DiscountAmount = discountAmount
		result.FinalPrice = finalPrice
		result.CodeApplied = true
	}

	description := params.Description
	if description == "" {
		description = fmt.Sprintf("purchase: %d credits", params.Credits)
	}

	txn, err := l.AppendTx(ctx, tx, AppendParams{
		AccountID:   params.AccountID,
		Kind:        KindPurchase,
		Amount:      params.Credits,
		Description: description,
	})
	if err != nil {
		return Purchase{}, err
	}
	result.Transaction = txn

	if l.outbox != nil {
		payload := map[string]any{
			"purchase_id":    purchaseID,
			"account_id":     params.AccountID,
			"credits":        params.Credits,
			"original_price": result.OriginalPrice,
			"final_price":    result.FinalPrice,
		}
		if err := l.outbox.Enqueue(ctx, tx, "credit.purchased", payload); err != nil {
			return Purchase{}, fmt.Errorf("credit: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Purchase{}, fmt.Errorf("credit: commit tx: %w", err)
	}
	return result, nil
}
