package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"staffledger/test/actors"
	"staffledger/test/chaos"
	"staffledger/test/infra"
	"staffledger/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestLedgerConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed minimal data
	seedData := mustSeed(t, ctx, pool)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// publishers and editors battling over the same account
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Publisher(ctx2, pool, seedData.accountID, stop) })
		g.Go(func() error {
			return actors.Editor(ctx2, pool, seedData.accountID, seedData.activeJobID, stop)
		})
	}

	// purchaser topping up the shared account and redeeming the vendor code
	g.Go(func() error { return actors.Purchaser(ctx2, pool, seedData.accountID, seedData.codeID, stop) })
	// commission payer
	g.Go(func() error { return actors.CommissionPayer(ctx2, pool, stop) })
	// rate rotator rewriting the active price for the contested tuple
	g.Go(func() error { return actors.RateRotator(ctx2, pool, stop) })
	// outbox worker
	g.Go(func() error { return actors.OutboxWorker(ctx2, pool, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	companyID   string
	vendorID    string
	accountID   string
	codeID      string
	activeJobID string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	// company user holding the contested account
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, company_name, role) VALUES ($1, 'Stress Company', 'Stress Co', 'company') RETURNING id`,
		fmt.Sprintf("company%d@example.com", rand.Int63())).Scan(&s.companyID); err != nil {
		t.Fatalf("seed company: %v", err)
	}
	// vendor with one active discount code
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Stress Vendor', 'vendor') RETURNING id`,
		fmt.Sprintf("vendor%d@example.com", rand.Int63())).Scan(&s.vendorID); err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO discount_codes (owner_user_id, code, discount_percent, commission_percent) VALUES ($1, $2, 10, 20) RETURNING id`,
		s.vendorID, fmt.Sprintf("STRESS%d", rand.Int63())).Scan(&s.codeID); err != nil {
		t.Fatalf("seed discount code: %v", err)
	}
	// account opens with a purchase row so the balance matches the ledger from the start
	if err := pool.QueryRow(ctx, `INSERT INTO credit_accounts (owner_user_id, balance) VALUES ($1, 50) RETURNING id`, s.companyID).Scan(&s.accountID); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO credit_transactions (account_id, kind, amount, balance_before, balance_after, description)
                VALUES ($1, 'purchase', 50, 0, 50, 'opening purchase')`, s.accountID); err != nil {
		t.Fatalf("seed opening transaction: %v", err)
	}
	// rate entries for the contested tuple plus the editor's targets
	for lvl, credits := range map[string]int64{"middle": 6, "senior": 8, "director": 12} {
		if _, err := pool.Exec(ctx, `INSERT INTO rate_entries (profile, seniority, work_mode, location, credits)
                        VALUES ('engineering', $1, 'remote', NULL, $2)`, lvl, credits); err != nil {
			t.Fatalf("seed rate %s: %v", lvl, err)
		}
	}
	// one already-active posting for editors to reprice
	if err := pool.QueryRow(ctx, `INSERT INTO job_postings (owner_user_id, title, profile, seniority, work_mode, status, credit_cost)
                VALUES ($1, 'Contested posting', 'engineering', 'senior', 'remote', 'active', 8) RETURNING id`,
		s.companyID).Scan(&s.activeJobID); err != nil {
		t.Fatalf("seed active posting: %v", err)
	}
	// a pile of drafts for publishers to fight over
	for i := 0; i < 40; i++ {
		if _, err := pool.Exec(ctx, `INSERT INTO job_postings (owner_user_id, title, profile, seniority, work_mode, status)
                        VALUES ($1, $2, 'engineering', 'middle', 'remote', 'draft')`,
			s.companyID, fmt.Sprintf("Draft %d", i)); err != nil {
			t.Fatalf("seed draft %d: %v", i, err)
		}
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"credit_transactions", `SELECT id, account_id, kind, amount, balance_before, balance_after, created_at FROM credit_transactions ORDER BY created_at DESC LIMIT 50`},
		{"credit_accounts", `SELECT id, owner_user_id, balance, updated_at FROM credit_accounts`},
		{"discount_code_uses", `SELECT id, purchase_id, original_price, discount_amount, final_price, commission_amount, commission_status FROM discount_code_uses ORDER BY created_at DESC LIMIT 50`},
		{"job_postings", `SELECT id, status, seniority, credit_cost, updated_at FROM job_postings ORDER BY updated_at DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
