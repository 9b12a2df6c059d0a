package rates

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func strPtr(s string) *string { return &s }

func TestResolve_LocationSpecificWins(t *testing.T) {
	repo := &fakeRepo{entries: []Entry{
		{ID: "rate-any", Profile: "backend", Seniority: SenioritySenior, WorkMode: WorkModeRemote, Credits: 6, Active: true},
		{ID: "rate-madrid", Profile: "backend", Seniority: SenioritySenior, WorkMode: WorkModeRemote, Location: strPtr("Madrid"), Credits: 8, Active: true},
	}}
	svc := NewService(nil, repo, Config{DefaultCredits: 5, FallbackEnabled: true})

	quote, err := svc.Resolve(context.Background(), "backend", SenioritySenior, WorkModeRemote, strPtr("Madrid"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if quote.Credits != 8 {
		t.Errorf("expected location-specific price 8, got %d", quote.Credits)
	}
	if !quote.Matched {
		t.Errorf("expected Matched=true")
	}
	if quote.RateID != "rate-madrid" {
		t.Errorf("expected rate-madrid, got %s", quote.RateID)
	}
}

func TestResolve_FallsBackToLocationAgnostic(t *testing.T) {
	repo := &fakeRepo{entries: []Entry{
		{ID: "rate-any", Profile: "backend", Seniority: SenioritySenior, WorkMode: WorkModeRemote, Credits: 6, Active: true},
		{ID: "rate-madrid", Profile: "backend", Seniority: SenioritySenior, WorkMode: WorkModeRemote, Location: strPtr("Madrid"), Credits: 8, Active: true},
	}}
	svc := NewService(nil, repo, Config{DefaultCredits: 5, FallbackEnabled: true})

	quote, err := svc.Resolve(context.Background(), "backend", SenioritySenior, WorkModeRemote, strPtr("Berlin"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if quote.Credits != 6 || quote.RateID != "rate-any" {
		t.Errorf("expected agnostic entry at 6, got %d from %s", quote.Credits, quote.RateID)
	}
	if !quote.Matched {
		t.Errorf("expected Matched=true for agnostic entry")
	}
}

func TestResolve_DefaultWhenNothingMatches(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(nil, repo, Config{DefaultCredits: 5, FallbackEnabled: true})

	quote, err := svc.Resolve(context.Background(), "astrologer", SeniorityJunior, WorkModeOnSite, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if quote.Credits != 5 {
		t.Errorf("expected default price 5, got %d", quote.Credits)
	}
	if quote.Matched {
		t.Errorf("expected Matched=false for default pricing")
	}
}

func TestResolve_FallbackDisabled(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(nil, repo, Config{DefaultCredits: 5, FallbackEnabled: false})

	_, err := svc.Resolve(context.Background(), "astrologer", SeniorityJunior, WorkModeOnSite, nil)
	if !errors.Is(err, ErrNoActiveRate) {
		t.Fatalf("expected ErrNoActiveRate, got %v", err)
	}
}

func TestResolve_RejectsBadAttributes(t *testing.T) {
	svc := NewService(nil, &fakeRepo{}, Config{DefaultCredits: 5, FallbackEnabled: true})

	if _, err := svc.Resolve(context.Background(), "  ", SenioritySenior, WorkModeRemote, nil); err == nil {
		t.Errorf("expected error for blank profile")
	}
	if _, err := svc.Resolve(context.Background(), "backend", Seniority("vp"), WorkModeRemote, nil); err == nil {
		t.Errorf("expected error for unknown seniority")
	}
	if _, err := svc.Resolve(context.Background(), "backend", SenioritySenior, WorkMode("nomad"), nil); err == nil {
		t.Errorf("expected error for unknown work mode")
	}
}

func TestUpsert_RetiresPreviousTupleEntry(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{}
	svc := NewService(pool, repo, Config{DefaultCredits: 5, FallbackEnabled: true}).
		WithIDGenerator(func() string { return "entry-1" })

	created, err := svc.Upsert(context.Background(), UpsertParams{
		Profile:   "backend",
		Seniority: SeniorityDirector,
		WorkMode:  WorkModeRemote,
		Credits:   10,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if !repo.deactivatedTuple {
		t.Errorf("expected previous tuple entry to be retired")
	}
	if repo.inserted == nil || repo.inserted.ID != "entry-1" || repo.inserted.Credits != 10 {
		t.Errorf("unexpected inserted entry %+v", repo.inserted)
	}
	if created.Credits != 10 {
		t.Errorf("expected created entry at 10 credits, got %d", created.Credits)
	}
	if pool.tx == nil || !pool.tx.committed {
		t.Errorf("expected retire and insert to commit together")
	}
}

func TestUpsert_BlankLocationMeansAnywhere(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{}
	svc := NewService(pool, repo, Config{})

	if _, err := svc.Upsert(context.Background(), UpsertParams{
		Profile:   "backend",
		Seniority: SeniorityJunior,
		WorkMode:  WorkModeHybrid,
		Location:  strPtr("   "),
		Credits:   3,
	}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.inserted.Location != nil {
		t.Errorf("expected blank location to normalize to nil, got %q", *repo.inserted.Location)
	}
}

func TestUpsert_RejectsNegativeCredits(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeRepo{}, Config{})

	_, err := svc.Upsert(context.Background(), UpsertParams{
		Profile:   "backend",
		Seniority: SeniorityJunior,
		WorkMode:  WorkModeRemote,
		Credits:   -1,
	})
	if err == nil {
		t.Fatalf("expected error for negative credits")
	}
}

type fakeRepo struct {
	entries          []Entry
	deactivatedTuple bool
	inserted         *Entry
}

func (f *fakeRepo) FindActive(ctx context.Context, profile string, seniority Seniority, workMode WorkMode) ([]Entry, error) {
	var out []Entry
	for _, e := range f.entries {
		if e.Active && e.Profile == profile && e.Seniority == seniority && e.WorkMode == workMode {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) Insert(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error) {
	entry.Active = true
	f.inserted = &entry
	return entry, nil
}

func (f *fakeRepo) DeactivateTuple(ctx context.Context, tx pgx.Tx, profile string, seniority Seniority, workMode WorkMode, location *string) error {
	f.deactivatedTuple = true
	return nil
}

func (f *fakeRepo) Deactivate(ctx context.Context, id string) (Entry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			e.Active = false
			return e, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (f *fakeRepo) List(ctx context.Context, activeOnly bool) ([]Entry, error) {
	return f.entries, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
