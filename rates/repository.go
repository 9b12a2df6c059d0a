package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrEntryNotFound = errors.New("rates: entry not found")
)

type Repository interface {
	FindActive(ctx context.Context, profile string, seniority Seniority, workMode WorkMode) ([]Entry, error)
	Insert(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error)
	DeactivateTuple(ctx context.Context, tx pgx.Tx, profile string, seniority Seniority, workMode WorkMode, location *string) error
	Deactivate(ctx context.Context, id string) (Entry, error)
	List(ctx context.Context, activeOnly bool) ([]Entry, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const entryColumns = `id, profile, seniority, work_mode, location, credits, min_salary, active, created_at, updated_at`

// FindActive returns every active entry for the (profile, seniority, workMode)
// tuple; the resolver picks between the location-specific and the
// location-agnostic one.
func (r *PGRepository) FindActive(ctx context.Context, profile string, seniority Seniority, workMode WorkMode) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rate_entries
		WHERE active = TRUE AND profile = $1 AND seniority = $2 AND work_mode = $3
	`, entryColumns)

	rows, err := r.pool.Query(ctx, query, profile, seniority, workMode)
	if err != nil {
		return nil, fmt.Errorf("rates: query active entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, 2)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("rates: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rates: iterate entries: %w", err)
	}
	return entries, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error) {
	query := fmt.Sprintf(`
		INSERT INTO rate_entries (id, profile, seniority, work_mode, location, credits, min_salary, active)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING %s
	`, entryColumns)

	row := tx.QueryRow(ctx, query,
		entry.ID,
		entry.Profile,
		entry.Seniority,
		entry.WorkMode,
		entry.Location,
		entry.Credits,
		entry.MinSalary,
	)

	created, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("rates: insert entry: %w", err)
	}
	return created, nil
}

// DeactivateTuple retires the currently active entry for the exact tuple so a
// replacement can be inserted in the same transaction without violating the
// one-active-per-tuple index.
func (r *PGRepository) DeactivateTuple(ctx context.Context, tx pgx.Tx, profile string, seniority Seniority, workMode WorkMode, location *string) error {
	const query = `
		UPDATE rate_entries
		SET active = FALSE, updated_at = now()
		WHERE active = TRUE AND profile = $1 AND seniority = $2 AND work_mode = $3
		  AND location IS NOT DISTINCT FROM $4
	`
	if _, err := tx.Exec(ctx, query, profile, seniority, workMode, location); err != nil {
		return fmt.Errorf("rates: deactivate tuple: %w", err)
	}
	return nil
}

func (r *PGRepository) Deactivate(ctx context.Context, id string) (Entry, error) {
	query := fmt.Sprintf(`
		UPDATE rate_entries
		SET active = FALSE, updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, entryColumns)

	entry, err := scanEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("rates: deactivate entry: %w", err)
	}
	return entry, nil
}

func (r *PGRepository) List(ctx context.Context, activeOnly bool) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM rate_entries`, entryColumns)
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY profile, seniority, work_mode, location NULLS FIRST`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rates: query list: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("rates: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rates: iterate list: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	return e, row.Scan(
		&e.ID,
		&e.Profile,
		&e.Seniority,
		&e.WorkMode,
		&e.Location,
		&e.Credits,
		&e.MinSalary,
		&e.Active,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
}
