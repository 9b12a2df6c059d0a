package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAccountNotFound = errors.New("credit: account not found")
)

type Repository interface {
	CreateAccount(ctx context.Context, ownerUserID string) (Account, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	GetAccountByOwner(ctx context.Context, ownerUserID string) (Account, error)
	GetAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (Account, error)
	SetBalance(ctx context.Context, tx pgx.Tx, accountID string, balance int64) error
	InsertTransaction(ctx context.Context, tx pgx.Tx, txn Transaction) (Transaction, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, owner_user_id, balance, created_at, updated_at`
const transactionColumns = `id, account_id, kind, amount, balance_before, balance_after, description, related_job_id, created_at`

// CreateAccount opens an account for the owner, or returns the existing one.
// Registration retries must not end up with two ledgers for one company.
func (r *PGRepository) CreateAccount(ctx context.Context, ownerUserID string) (Account, error) {
	const insertSQL = `
		INSERT INTO credit_accounts (owner_user_id)
		VALUES ($1)
		ON CONFLICT (owner_user_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insertSQL, ownerUserID); err != nil {
		return Account{}, fmt.Errorf("credit: create account: %w", err)
	}
	return r.GetAccountByOwner(ctx, ownerUserID)
}

func (r *PGRepository) GetAccount(ctx context.Context, accountID string) (Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM credit_accounts WHERE id = $1`, accountColumns)
	return r.scanAccountRow(r.pool.QueryRow(ctx, query, accountID), "get account")
}

func (r *PGRepository) GetAccountByOwner(ctx context.Context, ownerUserID string) (Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM credit_accounts WHERE owner_user_id = $1`, accountColumns)
	return r.scanAccountRow(r.pool.QueryRow(ctx, query, ownerUserID), "get account by owner")
}

// GetAccountForUpdate locks the account row for the remainder of the
// transaction, serializing all balance mutations per account.
func (r *PGRepository) GetAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM credit_accounts WHERE id = $1 FOR UPDATE`, accountColumns)
	return r.scanAccountRow(tx.QueryRow(ctx, query, accountID), "lock account")
}

func (r *PGRepository) SetBalance(ctx context.Context, tx pgx.Tx, accountID string, balance int64) error {
	const query = `
		UPDATE credit_accounts
		SET balance = $2, updated_at = now()
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, query, accountID, balance)
	if err != nil {
		return fmt.Errorf("credit: set balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *PGRepository) InsertTransaction(ctx context.Context, tx pgx.Tx, txn Transaction) (Transaction, error) {
	query := fmt.Sprintf(`
		INSERT INTO credit_transactions (id, account_id, kind, amount, balance_before, balance_after, description, related_job_id)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s
	`, transactionColumns)

	row := tx.QueryRow(ctx, query,
		txn.ID,
		txn.AccountID,
		txn.Kind,
		txn.Amount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.Description,
		txn.RelatedJobID,
	)

	created, err := scanTransaction(row)
	if err != nil {
		return Transaction{}, fmt.Errorf("credit: insert transaction: %w", err)
	}
	return created, nil
}

func (r *PGRepository) ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT %d
	`, transactionColumns, limit)

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("credit: query transactions: %w", err)
	}
	defer rows.Close()

	list := []Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("credit: scan transaction: %w", err)
		}
		list = append(list, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("credit: iterate transactions: %w", err)
	}
	return list, nil
}

func (r *PGRepository) scanAccountRow(row pgx.Row, op string) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OwnerUserID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("credit: %s: %w", op, err)
	}
	return a, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	return t, row.Scan(
		&t.ID,
		&t.AccountID,
		&t.Kind,
		&t.Amount,
		&t.BalanceBefore,
		&t.BalanceAfter,
		&t.Description,
		&t.RelatedJobID,
		&t.CreatedAt,
	)
}
