package service

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
	"go.uber.org/zap"
)

// FileClaim opens a claim against one vehicle of an approved accident.
//
// The gate reads a snapshot rather than locking the record: approval is
// terminal and freezes the vehicles, so a snapshot that shows an approved
// report stays true.
func (s *Service) FileClaim(ctx context.Context, id identifier.ID, vehicleRef string, amount domain.Amount) (*domain.Claim, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	c, err := domain.NewClaim(s.genID.Generate().String(), rec, vehicleRef, amount, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateClaim(ctx, c); err != nil {
		return nil, err
	}

	s.log.Info("claim filed",
		zap.String("claim_id", c.ID),
		zap.String("identifier", id.String()),
		zap.String("vehicle", c.VehicleRef),
		zap.Int64("claimed_amount", int64(c.ClaimedAmount)),
	)
	s.emit(ctx, "claim", domain.Event{Kind: domain.EventClaimFiled, AccidentID: id, SubjectID: c.ID, Status: string(c.Status), At: now})
	return c, nil
}

func (s *Service) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	return s.store.GetClaim(ctx, claimID)
}

func (s *Service) Assign(ctx context.Context, claimID, adjusterID string) (*domain.Claim, error) {
	return s.mutateClaim(ctx, claimID, domain.EventClaimAssigned, func(c *domain.Claim, now time.Time) (bool, error) {
		return c.Assign(adjusterID, now)
	})
}

// RequestInfo posts an adjuster question. A message without an id gets one,
// which means only callers that supply their own id get retry safety.
func (s *Service) RequestInfo(ctx context.Context, claimID string, m domain.Message) (*domain.Claim, error) {
	m = withMessageID(m)
	return s.mutateClaim(ctx, claimID, domain.EventClaimInfoRequested, func(c *domain.Claim, now time.Time) (bool, error) {
		return c.RequestInfo(m, now)
	})
}

// Reply posts the driver's answer to the claim thread.
func (s *Service) Reply(ctx context.Context, claimID string, m domain.Message) (*domain.Claim, error) {
	m = withMessageID(m)
	return s.mutateClaim(ctx, claimID, domain.EventClaimReplied, func(c *domain.Claim, now time.Time) (bool, error) {
		return c.Reply(m, now)
	})
}

func (s *Service) Decide(ctx context.Context, claimID string, outcome domain.Outcome, settled domain.Amount) (*domain.Claim, error) {
	return s.mutateClaim(ctx, claimID, domain.EventClaimDecided, func(c *domain.Claim, now time.Time) (bool, error) {
		return c.Decide(outcome, settled, now)
	})
}

func (s *Service) MarkPaid(ctx context.Context, claimID string) (*domain.Claim, error) {
	return s.mutateClaim(ctx, claimID, domain.EventClaimPaid, func(c *domain.Claim, now time.Time) (bool, error) {
		return c.MarkPaid(now)
	})
}

func (s *Service) mutateClaim(ctx context.Context, claimID string, kind domain.EventKind, fn func(*domain.Claim, time.Time) (bool, error)) (*domain.Claim, error) {
	now := s.clock()
	applied := false
	c, err := s.store.UpdateClaim(ctx, claimID, func(c *domain.Claim) (bool, error) {
		ok, err := fn(c, now)
		applied = ok
		return ok, err
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.emit(ctx, "claim", domain.Event{Kind: kind, AccidentID: c.AccidentID, SubjectID: c.ID, Status: string(c.Status), At: now})
	}
	return c, nil
}

func withMessageID(m domain.Message) domain.Message {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	return m
}
