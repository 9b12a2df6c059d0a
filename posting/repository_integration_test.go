package posting

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"staffledger/credit"
	"staffledger/discount"
	"staffledger/rates"
)

// TestPublishAndReprice_Integration connects to a real PostgreSQL via
// DATABASE_URL and walks the money path end to end: a discounted credit
// purchase, a publish debit, a downgrade refund, and the vendor commission
// payout, verifying the account balance always equals the ledger sum.
func TestPublishAndReprice_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	// Ensure schema exists (migrations applied)
	for _, table := range []string{"credit_accounts", "credit_transactions", "rate_entries", "job_postings", "discount_codes", "discount_code_uses", "outbox"} {
		if !tableExists(ctx, t, pool, table) {
			t.Skipf("table %s missing; apply migrations/ against $DATABASE_URL first", table)
		}
	}

	var companyID, vendorID string
	nonce := time.Now().UnixNano()
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, company_name, role) VALUES ($1, 'Itest Company', 'Itest Co', 'company') RETURNING id`,
		fmt.Sprintf("itest-company+%d@example.com", nonce)).Scan(&companyID); err != nil {
		t.Fatalf("seed company user: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Itest Vendor', 'vendor') RETURNING id`,
		fmt.Sprintf("itest-vendor+%d@example.com", nonce)).Scan(&vendorID); err != nil {
		t.Fatalf("seed vendor user: %v", err)
	}

	profile := fmt.Sprintf("itest-profile-%d", nonce)
	codeText := fmt.Sprintf("ITEST%d", nonce%1_000_000)

	// Cleanup seeded rows after test (best-effort, ignore errors)
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM discount_code_uses WHERE code_id IN (SELECT id FROM discount_codes WHERE owner_user_id = $1)`, vendorID)
		pool.Exec(ctx2, `DELETE FROM discount_codes WHERE owner_user_id = $1`, vendorID)
		pool.Exec(ctx2, `DELETE FROM job_postings WHERE owner_user_id = $1`, companyID)
		pool.Exec(ctx2, `DELETE FROM credit_transactions WHERE account_id IN (SELECT id FROM credit_accounts WHERE owner_user_id = $1)`, companyID)
		pool.Exec(ctx2, `DELETE FROM credit_accounts WHERE owner_user_id = $1`, companyID)
		pool.Exec(ctx2, `DELETE FROM rate_entries WHERE profile = $1`, profile)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, companyID, vendorID)
	})

	engine := discount.NewEngine(pool, discount.NewRepository(pool), discount.Config{})
	ledger := credit.NewLedger(pool, credit.NewRepository(pool)).WithDiscounts(engine)
	rateSvc := rates.NewService(pool, rates.NewRepository(pool), rates.Config{DefaultCredits: 5, FallbackEnabled: true})
	postings := NewService(pool, NewRepository(pool), rateSvc, ledger)

	if _, err := engine.CreateCode(ctx, discount.CreateCodeParams{
		OwnerUserID: vendorID, Code: codeText, DiscountPercent: 10, CommissionPercent: 20,
	}); err != nil {
		t.Fatalf("create code: %v", err)
	}
	for lvl, credits := range map[rates.Seniority]int64{rates.SeniorityMiddle: 6, rates.SenioritySenior: 8} {
		if _, err := rateSvc.Upsert(ctx, rates.UpsertParams{
			Profile: profile, Seniority: lvl, WorkMode: rates.WorkModeRemote, Credits: credits,
		}); err != nil {
			t.Fatalf("upsert rate %s: %v", lvl, err)
		}
	}

	account, err := ledger.Open(ctx, companyID)
	if err != nil {
		t.Fatalf("open account: %v", err)
	}

	// Discounted purchase: 2000 at 10% off, commission 20% of the final price.
	purchase, err := ledger.PurchaseCredits(ctx, credit.PurchaseParams{
		AccountID: account.ID, Credits: 20, Price: 2000, DiscountCode: codeText,
	})
	if err != nil {
		t.Fatalf("purchase credits: %v", err)
	}
	if !purchase.CodeApplied || purchase.DiscountAmount != 200 || purchase.FinalPrice != 1800 {
		t.Fatalf("unexpected purchase pricing: applied=%v discount=%d final=%d",
			purchase.CodeApplied, purchase.DiscountAmount, purchase.FinalPrice)
	}

	var useID string
	var commission int64
	if err := pool.QueryRow(ctx, `SELECT id, commission_amount FROM discount_code_uses WHERE purchase_id = $1`, purchase.ID).Scan(&useID, &commission); err != nil {
		t.Fatalf("verify commission record: %v", err)
	}
	if commission != 360 { // 20% of 1800
		t.Fatalf("expected commission 360, got %d", commission)
	}

	actor := Actor{UserID: companyID}
	draft, err := postings.Create(ctx, actor, CreateParams{
		Title: "Integration posting", Profile: profile,
		Seniority: rates.SenioritySenior, WorkMode: rates.WorkModeRemote,
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}

	published, err := postings.Publish(ctx, draft.ID, actor)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Cost != 8 || !published.Charged {
		t.Fatalf("expected publish to charge 8 credits, got cost=%d charged=%v", published.Cost, published.Charged)
	}

	// Downgrade senior -> middle refunds the difference.
	middle := rates.SeniorityMiddle
	edited, err := postings.Edit(ctx, draft.ID, actor, Changes{Seniority: &middle})
	if err != nil {
		t.Fatalf("edit downgrade: %v", err)
	}
	if !edited.Repriced || edited.Refunded != 2 || edited.NewCost != 6 {
		t.Fatalf("unexpected reprice: repriced=%v refunded=%d cost=%d", edited.Repriced, edited.Refunded, edited.NewCost)
	}

	refreshed, err := ledger.GetByOwner(ctx, companyID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if want := int64(20 - 8 + 2); refreshed.Balance != want {
		t.Fatalf("expected balance %d, got %d", want, refreshed.Balance)
	}

	var ledgerSum int64
	if err := pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE account_id = $1`, account.ID).Scan(&ledgerSum); err != nil {
		t.Fatalf("sum ledger: %v", err)
	}
	if ledgerSum != refreshed.Balance {
		t.Fatalf("balance %d does not match ledger sum %d", refreshed.Balance, ledgerSum)
	}

	// Paying the commission twice must not move paid_at.
	first, err := engine.MarkPaid(ctx, useID, nil)
	if err != nil {
		t.Fatalf("mark paid (first): %v", err)
	}
	if first.Status != discount.CommissionPaid || first.PaidAt == nil {
		t.Fatalf("expected paid status with timestamp, got %v %v", first.Status, first.PaidAt)
	}
	second, err := engine.MarkPaid(ctx, useID, nil)
	if err != nil {
		t.Fatalf("mark paid (second, idempotent): %v", err)
	}
	if second.PaidAt == nil || !second.PaidAt.Equal(*first.PaidAt) {
		t.Fatalf("expected replay to keep paid_at %v, got %v", first.PaidAt, second.PaidAt)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
