package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_balance_matches_ledger",
			SQL: `SELECT a.id, a.balance, COALESCE(SUM(t.amount), 0) AS ledger_sum
                  FROM credit_accounts a
                  LEFT JOIN credit_transactions t ON t.account_id = a.id
                  GROUP BY a.id, a.balance
                  HAVING a.balance <> COALESCE(SUM(t.amount), 0)`,
		},
		{
			Name: "O2_no_negative_balance",
			SQL: `SELECT id, balance FROM credit_accounts WHERE balance < 0
                  UNION ALL
                  SELECT id, balance_after FROM credit_transactions WHERE balance_after < 0`,
		},
		{
			Name: "O3_ledger_arithmetic",
			SQL: `SELECT id, kind, amount, balance_before, balance_after FROM credit_transactions
                  WHERE balance_after <> balance_before + amount
                     OR (kind = 'spend' AND amount >= 0)
                     OR (kind IN ('purchase', 'refund') AND amount <= 0)`,
		},
		{
			Name: "O4_price_conservation",
			SQL: `SELECT id, original_price, discount_amount, final_price, commission_amount
                  FROM discount_code_uses
                  WHERE final_price + discount_amount <> original_price
                     OR commission_amount > original_price
                     OR final_price < 0`,
		},
		{
			Name: "O5_unique_active_rate_tuple",
			SQL: `SELECT profile, seniority, work_mode, COALESCE(location, ''), COUNT(*)
                  FROM rate_entries WHERE active
                  GROUP BY profile, seniority, work_mode, COALESCE(location, '')
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_unique_active_vendor_code",
			SQL: `SELECT owner_user_id, COUNT(*) FROM discount_codes WHERE active
                  GROUP BY owner_user_id HAVING COUNT(*) > 1
                  UNION ALL
                  SELECT NULL, COUNT(*) FROM discount_codes WHERE active
                  GROUP BY lower(code) HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_single_commission_per_purchase",
			SQL: `SELECT purchase_id, COUNT(*) FROM discount_code_uses
                  GROUP BY purchase_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O8_commission_paid_consistency",
			SQL: `SELECT id, commission_status, paid_at FROM discount_code_uses
                  WHERE (commission_status = 'paid' AND paid_at IS NULL)
                     OR (commission_status = 'pending' AND paid_at IS NOT NULL)`,
		},
		{
			Name: "O9_draft_postings_cost_free",
			SQL:  `SELECT id, status, credit_cost FROM job_postings WHERE status = 'draft' AND credit_cost <> 0`,
		},
		{
			Name: "O10_outbox_not_stale",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status NOT IN ('processed', 'dead')
                    AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
