package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCodeNotFound  = errors.New("discount: code not found")
	ErrUseNotFound   = errors.New("discount: commission record not found")
	ErrDuplicateCode = errors.New("discount: code already exists")
)

type Repository interface {
	InsertCode(ctx context.Context, tx pgx.Tx, code Code) (Code, error)
	DeactivateVendorCodes(ctx context.Context, tx pgx.Tx, ownerUserID string) error
	DeactivateCode(ctx context.Context, id, ownerUserID string) (Code, error)
	GetActiveByCode(ctx context.Context, code string) (Code, error)
	GetActiveByCodeTx(ctx context.Context, tx pgx.Tx, code string) (Code, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]Code, error)
	InsertUse(ctx context.Context, tx pgx.Tx, use Use) (Use, bool, error)
	GetUse(ctx context.Context, useID string) (Use, error)
	GetUseForUpdate(ctx context.Context, tx pgx.Tx, useID string) (Use, error)
	MarkUsePaid(ctx context.Context, tx pgx.Tx, useID string, proofURL *string) (Use, error)
	SummarizeByVendor(ctx context.Context, ownerUserID string) (Summary, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const codeColumns = `id, owner_user_id, code, discount_percent, commission_percent, active, created_at, updated_at`
const useColumns = `id, code_id, purchase_id, original_price, discount_amount, final_price, commission_amount, commission_status, payment_due_date, paid_at, proof_url, created_at`

func (r *PGRepository) InsertCode(ctx context.Context, tx pgx.Tx, code Code) (Code, error) {
	query := fmt.Sprintf(`
		INSERT INTO discount_codes (id, owner_user_id, code, discount_percent, commission_percent, active)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, TRUE)
		RETURNING %s
	`, codeColumns)

	created, err := scanCode(tx.QueryRow(ctx, query,
		code.ID,
		code.OwnerUserID,
		code.Code,
		code.DiscountPercent,
		code.CommissionPercent,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Code{}, ErrDuplicateCode
		}
		return Code{}, fmt.Errorf("discount: insert code: %w", err)
	}
	return created, nil
}

// DeactivateVendorCodes retires every active code the vendor holds, keeping
// the one-active-code-per-vendor rule when a replacement is inserted in the
// same transaction.
func (r *PGRepository) DeactivateVendorCodes(ctx context.Context, tx pgx.Tx, ownerUserID string) error {
	const query = `
		UPDATE discount_codes
		SET active = FALSE, updated_at = now()
		WHERE owner_user_id = $1 AND active = TRUE
	`
	if _, err := tx.Exec(ctx, query, ownerUserID); err != nil {
		return fmt.Errorf("discount: deactivate vendor codes: %w", err)
	}
	return nil
}

func (r *PGRepository) DeactivateCode(ctx context.Context, id, ownerUserID string) (Code, error) {
	query := fmt.Sprintf(`
		UPDATE discount_codes
		SET active = FALSE, updated_at = now()
		WHERE id = $1 AND owner_user_id = $2
		RETURNING %s
	`, codeColumns)

	code, err := scanCode(r.pool.QueryRow(ctx, query, id, ownerUserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Code{}, ErrCodeNotFound
		}
		return Code{}, fmt.Errorf("discount: deactivate code: %w", err)
	}
	return code, nil
}

func (r *PGRepository) GetActiveByCode(ctx context.Context, code string) (Code, error) {
	query := fmt.Sprintf(`SELECT %s FROM discount_codes WHERE lower(code) = lower($1) AND active = TRUE`, codeColumns)
	return r.getActive(ctx, r.pool.QueryRow(ctx, query, code))
}

func (r *PGRepository) GetActiveByCodeTx(ctx context.Context, tx pgx.Tx, code string) (Code, error) {
	query := fmt.Sprintf(`SELECT %s FROM discount_codes WHERE lower(code) = lower($1) AND active = TRUE`, codeColumns)
	return r.getActive(ctx, tx.QueryRow(ctx, query, code))
}

func (r *PGRepository) getActive(ctx context.Context, row pgx.Row) (Code, error) {
	code, err := scanCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Code{}, ErrCodeNotFound
		}
		return Code{}, fmt.Errorf("discount: get active code: %w", err)
	}
	return code, nil
}

func (r *PGRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]Code, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM discount_codes
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
	`, codeColumns)

	rows, err := r.pool.Query(ctx, query, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("discount: query codes: %w", err)
	}
	defer rows.Close()

	list := []Code{}
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("discount: scan code: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("discount: iterate codes: %w", err)
	}
	return list, nil
}

// InsertUse writes the commission record for a purchase. A replay on the same
// purchase id returns the already-stored record with created=false instead of
// a second row.
func (r *PGRepository) InsertUse(ctx context.Context, tx pgx.Tx, use Use) (Use, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO discount_code_uses (id, code_id, purchase_id, original_price, discount_amount, final_price, commission_amount, commission_status, payment_due_date)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (purchase_id) DO NOTHING
		RETURNING %s
	`, useColumns)

	created, err := scanUse(tx.QueryRow(ctx, query,
		use.ID,
		use.CodeID,
		use.PurchaseID,
		use.OriginalPrice,
		use.DiscountAmount,
		use.FinalPrice,
		use.CommissionAmount,
		use.Status,
		use.PaymentDueDate,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Use{}, false, fmt.Errorf("discount: insert use: %w", err)
	}

	existingQuery := fmt.Sprintf(`SELECT %s FROM discount_code_uses WHERE purchase_id = $1`, useColumns)
	existing, err := scanUse(tx.QueryRow(ctx, existingQuery, use.PurchaseID))
	if err != nil {
		return Use{}, false, fmt.Errorf("discount: load existing use: %w", err)
	}
	return existing, false, nil
}

func (r *PGRepository) GetUse(ctx context.Context, useID string) (Use, error) {
	query := fmt.Sprintf(`SELECT %s FROM discount_code_uses WHERE id = $1`, useColumns)
	use, err := scanUse(r.pool.QueryRow(ctx, query, useID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Use{}, ErrUseNotFound
		}
		return Use{}, fmt.Errorf("discount: get use: %w", err)
	}
	return use, nil
}

// GetUseForUpdate locks the commission record so concurrent payout marks
// serialize.
func (r *PGRepository) GetUseForUpdate(ctx context.Context, tx pgx.Tx, useID string) (Use, error) {
	query := fmt.Sprintf(`SELECT %s FROM discount_code_uses WHERE id = $1 FOR UPDATE`, useColumns)
	use, err := scanUse(tx.QueryRow(ctx, query, useID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Use{}, ErrUseNotFound
		}
		return Use{}, fmt.Errorf("discount: get use for update: %w", err)
	}
	return use, nil
}

// MarkUsePaid flips pending to paid. paid_at and proof are only written once.
func (r *PGRepository) MarkUsePaid(ctx context.Context, tx pgx.Tx, useID string, proofURL *string) (Use, error) {
	query := fmt.Sprintf(`
		UPDATE discount_code_uses
		SET commission_status = 'paid',
		    paid_at = COALESCE(paid_at, now()),
		    proof_url = COALESCE(proof_url, $2)
		WHERE id = $1
		RETURNING %s
	`, useColumns)

	use, err := scanUse(tx.QueryRow(ctx, query, useID, proofURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Use{}, ErrUseNotFound
		}
		return Use{}, fmt.Errorf("discount: mark use paid: %w", err)
	}
	return use, nil
}

func (r *PGRepository) SummarizeByVendor(ctx context.Context, ownerUserID string) (Summary, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE u.commission_status = 'pending'),
			COALESCE(SUM(u.commission_amount) FILTER (WHERE u.commission_status = 'pending'), 0),
			COUNT(*) FILTER (WHERE u.commission_status = 'paid'),
			COALESCE(SUM(u.commission_amount) FILTER (WHERE u.commission_status = 'paid'), 0)
		FROM discount_code_uses u
		JOIN discount_codes c ON c.id = u.code_id
		WHERE c.owner_user_id = $1
	`

	var s Summary
	if err := r.pool.QueryRow(ctx, query, ownerUserID).Scan(&s.PendingCount, &s.PendingAmount, &s.PaidCount, &s.PaidAmount); err != nil {
		return Summary{}, fmt.Errorf("discount: summarize vendor: %w", err)
	}
	return s, nil
}

func scanCode(row pgx.Row) (Code, error) {
	var c Code
	return c, row.Scan(
		&c.ID,
		&c.OwnerUserID,
		&c.Code,
		&c.DiscountPercent,
		&c.CommissionPercent,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
}

func scanUse(row pgx.Row) (Use, error) {
	var u Use
	return u, row.Scan(
		&u.ID,
		&u.CodeID,
		&u.PurchaseID,
		&u.OriginalPrice,
		&u.DiscountAmount,
		&u.FinalPrice,
		&u.CommissionAmount,
		&u.Status,
		&u.PaymentDueDate,
		&u.PaidAt,
		&u.ProofURL,
		&u.CreatedAt,
	)
}
