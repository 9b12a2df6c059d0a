package credit

import (
	"fmt"
	"time"
)

// Kind classifies a ledger entry. The amount sign is bound to the kind:
// spends are negative, purchases and refunds positive.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSpend    Kind = "spend"
	KindRefund   Kind = "refund"
)

// Account mirrors the credit_accounts table. Exactly one account exists per
// company user and its balance never goes below zero; the balance column is
// only ever written together with a ledger append.
type Account struct {
	ID          string
	OwnerUserID string
	Balance     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transaction mirrors the credit_transactions table. The ledger is
// append-only: BalanceAfter = BalanceBefore + Amount, and the account balance
// always equals the BalanceAfter of its newest transaction.
type Transaction struct {
	ID            string
	AccountID     string
	Kind          Kind
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Description   string
	RelatedJobID  *string
	CreatedAt     time.Time
}

// InsufficientFundsError is returned when a spend would drive the balance
// negative. Required carries the absolute amount the spend needed so callers
// can report exactly how many credits are missing.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("credit: insufficient funds: required %d, available %d", e.Required, e.Available)
}

func validKind(k Kind) bool {
	switch k {
	case KindPurchase, KindSpend, KindRefund:
		return true
	}
	return false
}

// signMatches reports whether the amount sign obeys the kind convention.
func signMatches(k Kind, amount int64) bool {
	if k == KindSpend {
		return amount < 0
	}
	return amount > 0
}
