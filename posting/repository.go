package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("posting: not found")
)

type Repository interface {
	Create(ctx context.Context, p Posting) (Posting, error)
	Get(ctx context.Context, id string) (Posting, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Posting, error)
	Update(ctx context.Context, tx pgx.Tx, p Posting) (Posting, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]Posting, error)
	IsAdminUser(ctx context.Context, tx pgx.Tx, userID string) (bool, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const postingColumns = `id, owner_user_id, title, description, profile, seniority, work_mode, location, status, credit_cost, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, p Posting) (Posting, error) {
	query := fmt.Sprintf(`
		INSERT INTO job_postings (id, owner_user_id, title, description, profile, seniority, work_mode, location, status, credit_cost)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s
	`, postingColumns)

	row := r.pool.QueryRow(ctx, query,
		p.ID,
		p.OwnerUserID,
		p.Title,
		p.Description,
		p.Profile,
		p.Seniority,
		p.WorkMode,
		p.Location,
		p.Status,
		p.CreditCost,
	)

	created, err := scanPosting(row)
	if err != nil {
		return Posting{}, fmt.Errorf("posting: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Posting, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_postings WHERE id = $1`, postingColumns)
	p, err := scanPosting(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Posting{}, ErrNotFound
		}
		return Posting{}, fmt.Errorf("posting: get: %w", err)
	}
	return p, nil
}

// GetForUpdate locks the posting row so concurrent publishes or edits of the
// same posting serialize.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Posting, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_postings WHERE id = $1 FOR UPDATE`, postingColumns)
	p, err := scanPosting(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Posting{}, ErrNotFound
		}
		return Posting{}, fmt.Errorf("posting: get for update: %w", err)
	}
	return p, nil
}

func (r *PGRepository) Update(ctx context.Context, tx pgx.Tx, p Posting) (Posting, error) {
	query := fmt.Sprintf(`
		UPDATE job_postings
		SET title = $2,
		    description = $3,
		    profile = $4,
		    seniority = $5,
		    work_mode = $6,
		    location = $7,
		    status = $8,
		    credit_cost = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, postingColumns)

	row := tx.QueryRow(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		p.Profile,
		p.Seniority,
		p.WorkMode,
		p.Location,
		p.Status,
		p.CreditCost,
	)

	updated, err := scanPosting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Posting{}, ErrNotFound
		}
		return Posting{}, fmt.Errorf("posting: update: %w", err)
	}
	return updated, nil
}

func (r *PGRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]Posting, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM job_postings
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
	`, postingColumns)

	rows, err := r.pool.Query(ctx, query, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("posting: query list: %w", err)
	}
	defer rows.Close()

	list := []Posting{}
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("posting: scan: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("posting: iterate list: %w", err)
	}
	return list, nil
}

// IsAdminUser reports whether the given user holds the admin role. The
// lifecycle controller consults it for the posting's owner before deciding
// whether the ledger is involved.
func (r *PGRepository) IsAdminUser(ctx context.Context, tx pgx.Tx, userID string) (bool, error) {
	var admin bool
	err := tx.QueryRow(ctx, `SELECT role = 'admin' FROM users WHERE id = $1`, userID).Scan(&admin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("posting: owner role: %w", err)
	}
	return admin, nil
}

func scanPosting(row pgx.Row) (Posting, error) {
	var p Posting
	return p, row.Scan(
		&p.ID,
		&p.OwnerUserID,
		&p.Title,
		&p.Description,
		&p.Profile,
		&p.Seniority,
		&p.WorkMode,
		&p.Location,
		&p.Status,
		&p.CreditCost,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}
