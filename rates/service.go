package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	// ErrNoActiveRate is returned by Resolve when no entry matches and the
	// deployment has disabled the default-credits fallback.
	ErrNoActiveRate = errors.New("rates: no active rate entry for attributes")
)

// Config carries the pricing policy knobs the resolver honours.
type Config struct {
	// DefaultCredits is the price used when no active entry matches.
	DefaultCredits int64
	// FallbackEnabled=false makes an unmatched lookup fail with
	// ErrNoActiveRate instead of falling back to DefaultCredits.
	FallbackEnabled bool
}

type Service struct {
	pool        TxBeginner
	repo        Repository
	cfg         Config
	idGenerator func() string
}

func NewService(pool TxBeginner, repo Repository, cfg Config) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		cfg:         cfg,
		idGenerator: func() string { return uuid.NewString() },
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Resolve prices the given posting attributes against the rate table. It is a
// pure read: a location-specific active entry wins over the location-agnostic
// one, and when neither exists the configured default applies with
// Matched=false.
func (s *Service) Resolve(ctx context.Context, profile string, seniority Seniority, workMode WorkMode, location *string) (Quote, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return Quote{}, fmt.Errorf("rates: profile required")
	}
	if !ValidSeniority(seniority) {
		return Quote{}, fmt.Errorf("rates: invalid seniority %q", seniority)
	}
	if !ValidWorkMode(workMode) {
		return Quote{}, fmt.Errorf("rates: invalid work mode %q", workMode)
	}

	entries, err := s.repo.FindActive(ctx, profile, seniority, workMode)
	if err != nil {
		return Quote{}, err
	}

	var agnostic *Entry
	for i := range entries {
		e := entries[i]
		if e.Location != nil {
			if location != nil && *e.Location == *location {
				return Quote{Credits: e.Credits, Matched: true, RateID: e.ID, MinSalary: e.MinSalary}, nil
			}
			continue
		}
		agnostic = &entries[i]
	}
	if agnostic != nil {
		return Quote{Credits: agnostic.Credits, Matched: true, RateID: agnostic.ID, MinSalary: agnostic.MinSalary}, nil
	}

	if !s.cfg.FallbackEnabled {
		return Quote{}, ErrNoActiveRate
	}
	return Quote{Credits: s.cfg.DefaultCredits, Matched: false}, nil
}

// UpsertParams describes a rate entry an administrator wants active.
type UpsertParams struct {
	Profile   string
	Seniority Seniority
	WorkMode  WorkMode
	Location  *string
	Credits   int64
	MinSalary *int64
}

// Upsert activates a new entry for the tuple, retiring any previous active
// entry for the same tuple in the same transaction so pricing history is
// preserved rather than overwritten.
func (s *Service) Upsert(ctx context.Context, params UpsertParams) (Entry, error) {
	params.Profile = strings.TrimSpace(params.Profile)
	if params.Profile == "" {
		return Entry{}, fmt.Errorf("rates: profile required")
	}
	if !ValidSeniority(params.Seniority) {
		return Entry{}, fmt.Errorf("rates: invalid seniority %q", params.Seniority)
	}
	if !ValidWorkMode(params.WorkMode) {
		return Entry{}, fmt.Errorf("rates: invalid work mode %q", params.WorkMode)
	}
	if params.Credits < 0 {
		return Entry{}, fmt.Errorf("rates: credits must not be negative")
	}
	if params.Location != nil {
		trimmed := strings.TrimSpace(*params.Location)
		if trimmed == "" {
			params.Location = nil
		} else {
			params.Location = &trimmed
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("rates: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.DeactivateTuple(ctx, tx, params.Profile, params.Seniority, params.WorkMode, params.Location); err != nil {
		return Entry{}, err
	}

	created, err := s.repo.Insert(ctx, tx, Entry{
		ID:        s.idGenerator(),
		Profile:   params.Profile,
		Seniority: params.Seniority,
		WorkMode:  params.WorkMode,
		Location:  params.Location,
		Credits:   params.Credits,
		MinSalary: params.MinSalary,
	})
	if err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("rates: commit tx: %w", err)
	}

	return created, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (Entry, error) {
	if id == "" {
		return Entry{}, fmt.Errorf("rates: entry id required")
	}
	return s.repo.Deactivate(ctx, id)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]Entry, error) {
	return s.repo.List(ctx, activeOnly)
}
