package store

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
)

func openPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DB_SOURCE")
	if dsn == "" {
		t.Skip("TEST_DB_SOURCE not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// freshID avoids collisions with rows left by earlier runs.
func freshID() identifier.ID {
	return identifier.Parts{Year: 2024, Suffix: ulid.Make().String()}.ID()
}

func TestPostgresRecordRoundTrip(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	id := freshID()

	if err := s.CreateRecord(ctx, newRecord(t, id)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateRecord(ctx, newRecord(t, id)); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	_, err := s.UpdateRecord(ctx, id, func(r *domain.AccidentRecord) (bool, error) {
		if _, err := r.AttachVehicle(domain.VehicleInvolvement{Registration: "AB12CDE", InsurerID: "ins-a", FaultPercent: 70}, t0); err != nil {
			return false, err
		}
		if _, err := r.AttachAssessment("AB12CDE", domain.DamageAssessment{AssessorID: "dvla-1", Severity: domain.SeverityLight, EstimatedRepairCost: 4200}, t0); err != nil {
			return false, err
		}
		return r.AddWitness(domain.WitnessStatement{Name: "J. Doe", Statement: "Saw it."}, t0)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Vehicles) != 1 || got.Vehicles[0].Assessment == nil || got.Vehicles[0].Assessment.EstimatedRepairCost != 4200 {
		t.Fatalf("vehicle not persisted: %+v", got.Vehicles)
	}
	if len(got.Witnesses) != 1 || got.Version != 4 {
		t.Fatalf("unexpected record: witnesses=%d version=%d", len(got.Witnesses), got.Version)
	}
}

func TestPostgresConcurrentAttachSerialized(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	id := freshID()
	if err := s.CreateRecord(ctx, newRecord(t, id)); err != nil {
		t.Fatal(err)
	}

	regs := []string{"A1", "B2", "C3", "D4", "E5", "F6", "G7", "H8"}
	var wg sync.WaitGroup
	for _, reg := range regs {
		wg.Add(1)
		go func(reg string) {
			defer wg.Done()
			_, err := s.UpdateRecord(ctx, id, func(r *domain.AccidentRecord) (bool, error) {
				return r.AttachVehicle(domain.VehicleInvolvement{Registration: reg}, t0)
			})
			if err != nil {
				t.Errorf("attach %s: %v", reg, err)
			}
		}(reg)
	}
	wg.Wait()

	got, _ := s.GetRecord(ctx, id)
	if len(got.Vehicles) != len(regs) || got.Version != int64(len(regs))+1 {
		t.Fatalf("lost update: %d vehicles at version %d", len(got.Vehicles), got.Version)
	}
}

func TestPostgresNextSuffixIsSequential(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()

	a, err := s.NextSuffix(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.NextSuffix(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a == b || !identifier.Validate("ACC-2024-"+a) || !identifier.Validate("ACC-2024-"+b) {
		t.Fatalf("unexpected suffixes %q, %q", a, b)
	}
}

func TestPostgresIdempotencyKeys(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	key := "test-" + ulid.Make().String()

	if existing, err := s.ReserveKey(ctx, key, "h1"); err != nil || existing != nil {
		t.Fatalf("reserve: existing=%v err=%v", existing, err)
	}
	if _, err := s.ReserveKey(ctx, key, "h1"); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := s.CompleteKey(ctx, key, 201, []byte(`{"id":"1"}`)); err != nil {
		t.Fatal(err)
	}
	existing, err := s.ReserveKey(ctx, key, "h1")
	if err != nil || existing == nil || existing.ResponseStatus != 201 {
		t.Fatalf("replay: existing=%+v err=%v", existing, err)
	}
	if _, err := s.ReserveKey(ctx, key, "h2"); !errors.Is(err, ErrIdempotencyMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

// approvedRecord stores an approved accident with vehicles insured by a (70%
// at fault) and b (30%).
func approvedRecord(t *testing.T, s *PostgresStore, a, b string) *domain.AccidentRecord {
	t.Helper()
	ctx := context.Background()
	rec := newRecord(t, freshID())
	for _, v := range []domain.VehicleInvolvement{
		{Registration: "AB12CDE", InsurerID: a, PolicyNumber: "P-1", DriverID: "drv-1", FaultPercent: 70},
		{Registration: "XY34ZZZ", InsurerID: b, PolicyNumber: "P-2", DriverID: "drv-2", FaultPercent: 30},
	} {
		if _, err := rec.AttachVehicle(v, t0); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := rec.Submit(t0); err != nil {
		t.Fatal(err)
	}
	render := func(*domain.AccidentRecord) (string, error) { return "document", nil }
	if _, err := rec.Approve("officer-2", "", t0, render); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("create record: %v", err)
	}
	return rec
}

func TestPostgresClaimLifecycleRoundTrip(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	rec := approvedRecord(t, s, "ins-a", "ins-b")

	c, err := domain.NewClaim(ulid.Make().String(), rec, "xy34zzz", 12500, t0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateClaim(ctx, c); err != nil {
		t.Fatalf("create claim: %v", err)
	}
	if err := s.CreateClaim(ctx, c); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	steps := []struct {
		name string
		fn   ClaimMutation
	}{
		{"assign", func(c *domain.Claim) (bool, error) { return c.Assign("adj-1", t0) }},
		{"request info", func(c *domain.Claim) (bool, error) {
			return c.RequestInfo(domain.Message{ID: "m1", AuthorID: "adj-1", Body: "Photos?"}, t0)
		}},
		{"reply", func(c *domain.Claim) (bool, error) {
			return c.Reply(domain.Message{ID: "m2", AuthorID: "drv-2", Body: "Sent."}, t0)
		}},
		{"decide", func(c *domain.Claim) (bool, error) { return c.Decide(domain.OutcomeApproved, 10800, t0) }},
		{"pay", func(c *domain.Claim) (bool, error) { return c.MarkPaid(t0) }},
	}
	for _, step := range steps {
		if _, err := s.UpdateClaim(ctx, c.ID, step.fn); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
	}

	// A retried message is not stored twice.
	again, err := s.UpdateClaim(ctx, c.ID, func(c *domain.Claim) (bool, error) {
		return c.RequestInfo(domain.Message{ID: "m1", AuthorID: "adj-1", Body: "Photos?"}, t0)
	})
	if err != nil {
		t.Fatalf("retried message: %v", err)
	}

	got, err := s.GetClaim(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != again.Version || got.Version != 6 {
		t.Fatalf("unexpected version %d (retry returned %d)", got.Version, again.Version)
	}
	if got.Status != domain.ClaimPaid || got.SettledAmount != 10800 || got.ClaimedAmount != 12500 {
		t.Fatalf("unexpected claim: %+v", got)
	}
	if got.InsurerID != "ins-b" || got.PolicyNumber != "P-2" || got.VehicleRef != "XY34ZZZ" || got.AdjusterID != "adj-1" {
		t.Fatalf("vehicle facts not persisted: %+v", got)
	}
	if got.AssignedAt == nil || got.DecidedAt == nil || got.PaidAt == nil {
		t.Fatalf("timestamps not persisted: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].ID != "m1" || got.Messages[1].ID != "m2" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}

	listed, err := s.ListClaims(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].ID != c.ID || len(listed[0].Messages) != 2 {
		t.Fatalf("unexpected claim list: %+v", listed)
	}

	if _, err := s.GetClaim(ctx, "missing-"+c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresSubrogationResolveRetry(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	suffix := ulid.Make().String()
	a, b := "ins-a-"+suffix, "ins-b-"+suffix
	rec := approvedRecord(t, s, a, b)

	sub, err := domain.NewSubrogation(ulid.Make().String(), rec, a, b, 5000, 70, t0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSubrogation(ctx, sub); err != nil {
		t.Fatal(err)
	}

	resolve := func(o domain.Outcome) SubrogationMutation {
		return func(sub *domain.SubrogationClaim) (bool, error) { return sub.Resolve(o, t0) }
	}
	first, err := s.UpdateSubrogation(ctx, sub.ID, resolve(domain.OutcomeApproved))
	if err != nil {
		t.Fatal(err)
	}
	retry, err := s.UpdateSubrogation(ctx, sub.ID, resolve(domain.OutcomeApproved))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Status != domain.SubrogationApproved || retry.Version != first.Version || retry.ResolvedAt == nil {
		t.Fatalf("retry changed the claim: first=%+v retry=%+v", first, retry)
	}
	if _, err := s.UpdateSubrogation(ctx, sub.ID, resolve(domain.OutcomeRejected)); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, err := s.GetSubrogation(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.SubrogationApproved || got.Version != 2 {
		t.Fatalf("unexpected stored subrogation: %+v", got)
	}
}

func TestPostgresLedgerScenario(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()
	// Insurer ids are unique per run so earlier rows do not leak into the balance.
	suffix := ulid.Make().String()
	a, b := "ins-a-"+suffix, "ins-b-"+suffix
	rec := approvedRecord(t, s, a, b)

	filings := []struct {
		claimant, respondent string
		amount               domain.Amount
		outcome              domain.Outcome
	}{
		{a, b, 5000, domain.OutcomeApproved},
		{b, a, 2000, domain.OutcomeApproved},
		{a, b, 900, domain.OutcomeRejected},
		{b, a, 400, ""},
	}
	for _, f := range filings {
		sub, err := domain.NewSubrogation(ulid.Make().String(), rec, f.claimant, f.respondent, f.amount, 50, t0)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.CreateSubrogation(ctx, sub); err != nil {
			t.Fatal(err)
		}
		if f.outcome == "" {
			continue
		}
		if _, err := s.UpdateSubrogation(ctx, sub.ID, func(sub *domain.SubrogationClaim) (bool, error) {
			return sub.Resolve(f.outcome, t0)
		}); err != nil {
			t.Fatal(err)
		}
	}

	approved, err := s.ListApprovedSubrogations(ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(approved) != 2 {
		t.Fatalf("expected 2 approved subrogations, got %+v", approved)
	}
	if got := domain.NetBalance(approved, a, b); got != 3000 {
		t.Fatalf("NetBalance(a, b) = %d, want 3000", got)
	}
	reverse, err := s.ListApprovedSubrogations(ctx, b, a)
	if err != nil {
		t.Fatal(err)
	}
	if got := domain.NetBalance(reverse, b, a); got != -3000 {
		t.Fatalf("NetBalance(b, a) = %d, want -3000", got)
	}

	all, err := s.ListSubrogations(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(filings) {
		t.Fatalf("expected %d subrogations for the accident, got %d", len(filings), len(all))
	}
}

func TestPostgresAdvanceSequence(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()

	first, err := s.NextSuffix(ctx)
	if err != nil {
		t.Fatal(err)
	}
	n, _ := strconv.ParseInt(first, 10, 64)
	if err := s.AdvanceSequence(ctx, n+10); err != nil {
		t.Fatal(err)
	}
	// Never moves backwards.
	if err := s.AdvanceSequence(ctx, 1); err != nil {
		t.Fatal(err)
	}
	next, err := s.NextSuffix(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m, _ := strconv.ParseInt(next, 10, 64); m <= n+10 {
		t.Fatalf("next suffix %s not past %d", next, n+10)
	}
}
