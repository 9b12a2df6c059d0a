package discount

import (
	"regexp"
	"time"
)

// CommissionStatus tracks the payout state of a commission record. The only
// transition is pending -> paid.
type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPaid    CommissionStatus = "paid"
)

// Code mirrors the discount_codes table. Codes are unique case-insensitively
// and each vendor has at most one active code.
type Code struct {
	ID                string
	OwnerUserID       string
	Code              string
	DiscountPercent   int
	CommissionPercent int
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Use mirrors the discount_code_uses table: one commission record per
// qualifying purchase.
type Use struct {
	ID               string
	CodeID           string
	PurchaseID       string
	OriginalPrice    int64
	DiscountAmount   int64
	FinalPrice       int64
	CommissionAmount int64
	Status           CommissionStatus
	PaymentDueDate   time.Time
	PaidAt           *time.Time
	ProofURL         *string
	CreatedAt        time.Time
}

// Validation is what Validate tells a buyer about a code. Unknown and
// inactive codes are indistinguishable so callers cannot probe for code
// existence.
type Validation struct {
	Valid           bool
	DiscountPercent int
	DiscountAmount  int64
	FinalPrice      int64
}

// Summary aggregates a vendor's commissions by payout status. Amounts are
// derived from commission_status alone, never from payout side effects, so a
// replayed MarkPaid cannot double-count.
type Summary struct {
	PendingCount  int
	PendingAmount int64
	PaidCount     int
	PaidAmount    int64
}

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9]{4,20}$`)

// roundPercent computes round(base*percent/100) with half-up rounding in
// integer arithmetic.
func roundPercent(base int64, percent int) int64 {
	return (base*int64(percent) + 50) / 100
}
