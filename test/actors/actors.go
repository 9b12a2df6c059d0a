package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher races to publish draft postings, debiting the shared company
// account under FOR UPDATE the way the posting service does.
func Publisher(ctx context.Context, pool *pgxpool.Pool, accountID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var jobID string
		var cost int64
		err = tx.QueryRow(ctx, `SELECT p.id, COALESCE(r.credits, 5)
                FROM job_postings p
                LEFT JOIN rate_entries r ON r.active
                     AND r.profile = p.profile AND r.seniority = p.seniority
                     AND r.work_mode = p.work_mode AND r.location IS NULL
                WHERE p.status = 'draft' LIMIT 1 FOR UPDATE OF p SKIP LOCKED`).Scan(&jobID, &cost)
		if err == nil {
			if err := debit(ctx, tx, accountID, cost, jobID, fmt.Sprintf("publish: %s", jobID)); err == nil {
				_, err = tx.Exec(ctx, `UPDATE job_postings SET status='active', credit_cost=$2, updated_at=NOW() WHERE id=$1`, jobID, cost)
				if err == nil {
					_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('posting.published', jsonb_build_object('job_id',$1))`, jobID)
					_ = tx.Commit(ctx)
				}
			}
		}
		_ = tx.Rollback(ctx)
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Editor bounces an active posting between seniorities and settles the price
// difference against the shared account in the same transaction.
func Editor(ctx context.Context, pool *pgxpool.Pool, accountID, jobID string, stop <-chan struct{}) error {
	levels := []string{"middle", "senior", "director"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		next := levels[rand.Intn(len(levels))]
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var oldCost int64
		var status string
		err = tx.QueryRow(ctx, `SELECT credit_cost, status FROM job_postings WHERE id=$1 FOR UPDATE`, jobID).Scan(&oldCost, &status)
		if err == nil && status == "active" {
			var newCost int64
			err = tx.QueryRow(ctx, `SELECT credits FROM rate_entries
                        WHERE active AND profile='engineering' AND seniority=$1 AND work_mode='remote' AND location IS NULL`, next).Scan(&newCost)
			if err == nil {
				diff := newCost - oldCost
				settled := true
				switch {
				case diff > 0:
					settled = debit(ctx, tx, accountID, diff, jobID, fmt.Sprintf("edit adjustment: %s", jobID)) == nil
				case diff < 0:
					settled = refund(ctx, tx, accountID, -diff, jobID, fmt.Sprintf("edit refund: %s", jobID)) == nil
				}
				if settled {
					_, err = tx.Exec(ctx, `UPDATE job_postings SET seniority=$2, credit_cost=$3, updated_at=NOW() WHERE id=$1`, jobID, next, newCost)
					if err == nil {
						_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('posting.repriced', jsonb_build_object('job_id',$1))`, jobID)
						_ = tx.Commit(ctx)
					}
				}
			}
		}
		_ = tx.Rollback(ctx)
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Purchaser tops up the shared account with credit packs, sometimes redeeming
// the vendor code. Replays of the same purchase id must not double-record.
func Purchaser(ctx context.Context, pool *pgxpool.Pool, accountID, codeID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		credits := int64(5 + rand.Intn(20))
		price := credits * 100
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		if rand.Intn(3) == 0 {
			var pct, commPct int64
			if err := tx.QueryRow(ctx, `SELECT discount_percent, commission_percent FROM discount_codes WHERE id=$1 AND active`, codeID).Scan(&pct, &commPct); err == nil {
				discount := (price*pct + 50) / 100
				final := price - discount
				commission := (final*commPct + 50) / 100
				_, err = tx.Exec(ctx, `INSERT INTO discount_code_uses
                                        (code_id, purchase_id, original_price, discount_amount, final_price, commission_amount, payment_due_date)
                                        VALUES ($1, gen_random_uuid(), $2, $3, $4, $5, NOW() + interval '4 months')
                                        ON CONFLICT (purchase_id) DO NOTHING`,
					codeID, price, discount, final, commission)
			}
		}
		if err == nil {
			if err := credit(ctx, tx, accountID, credits, "purchase", fmt.Sprintf("purchase: %d credits", credits)); err == nil {
				_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('credit.purchased', jsonb_build_object('account_id',$1))`, accountID)
				_ = tx.Commit(ctx)
			}
		}
		_ = tx.Rollback(ctx)
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// CommissionPayer marks pending commissions paid, idempotently: a use that is
// already paid keeps its original paid_at.
func CommissionPayer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var useID string
		err = tx.QueryRow(ctx, `SELECT id FROM discount_code_uses WHERE commission_status='pending' LIMIT 1 FOR UPDATE SKIP LOCKED`).Scan(&useID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE discount_code_uses SET commission_status='paid', paid_at=NOW() WHERE id=$1 AND commission_status='pending'`, useID)
			if err == nil {
				_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('commission.paid', jsonb_build_object('use_id',$1))`, useID)
				_ = tx.Commit(ctx)
			}
		}
		_ = tx.Rollback(ctx)
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// RateRotator rewrites the price for a tuple by retiring the active entry and
// inserting a fresh one, racing the partial unique index.
func RateRotator(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		credits := int64(4 + rand.Intn(8))
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE rate_entries SET active=FALSE, updated_at=NOW()
                        WHERE active AND profile='engineering' AND seniority='middle' AND work_mode='remote' AND location IS NULL`)
		if err == nil {
			_, err = tx.Exec(ctx, `INSERT INTO rate_entries (profile, seniority, work_mode, location, credits)
                                VALUES ('engineering', 'middle', 'remote', NULL, $1)`, credits)
			if err == nil {
				_ = tx.Commit(ctx)
			} else {
				var pgErr *pgconn.PgError
				if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
					_ = tx.Rollback(ctx)
					return fmt.Errorf("rate rotator insert: %w", err)
				}
			}
		}
		_ = tx.Rollback(ctx)
		time.Sleep(time.Duration(150+rand.Intn(150)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks
// them processed, or bumps attempts on simulated delivery failure.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1 WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed' WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// debit locks the account and appends a spend row; fails cleanly when the
// balance cannot cover the amount.
func debit(ctx context.Context, tx pgx.Tx, accountID string, amount int64, jobID, desc string) error {
	var before int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE id=$1 FOR UPDATE`, accountID).Scan(&before); err != nil {
		return err
	}
	after := before - amount
	if after < 0 {
		return fmt.Errorf("insufficient credits: need %d, have %d", amount, before)
	}
	if _, err := tx.Exec(ctx, `UPDATE credit_accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, accountID, after); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `INSERT INTO credit_transactions (account_id, kind, amount, balance_before, balance_after, description, related_job_id)
                VALUES ($1, 'spend', $2, $3, $4, $5, $6)`, accountID, -amount, before, after, desc, jobID)
	return err
}

func refund(ctx context.Context, tx pgx.Tx, accountID string, amount int64, jobID, desc string) error {
	var before int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE id=$1 FOR UPDATE`, accountID).Scan(&before); err != nil {
		return err
	}
	after := before + amount
	if _, err := tx.Exec(ctx, `UPDATE credit_accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, accountID, after); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `INSERT INTO credit_transactions (account_id, kind, amount, balance_before, balance_after, description, related_job_id)
                VALUES ($1, 'refund', $2, $3, $4, $5, $6)`, accountID, amount, before, after, desc, jobID)
	return err
}

func credit(ctx context.Context, tx pgx.Tx, accountID string, amount int64, kind, desc string) error {
	var before int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE id=$1 FOR UPDATE`, accountID).Scan(&before); err != nil {
		return err
	}
	after := before + amount
	if _, err := tx.Exec(ctx, `UPDATE credit_accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, accountID, after); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `INSERT INTO credit_transactions (account_id, kind, amount, balance_before, balance_after, description)
                VALUES ($1, $2, $3, $4, $5, $6)`, accountID, kind, amount, before, after, desc)
	return err
}
