package service

import (
	"context"
	"strings"

	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
	"go.uber.org/zap"
)

// FileSubrogation records a pending recovery claim by claimant against
// respondent for a settled accident.
func (s *Service) FileSubrogation(ctx context.Context, id identifier.ID, claimant, respondent string, amount domain.Amount, faultPct int) (*domain.SubrogationClaim, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	sub, err := domain.NewSubrogation(s.genID.Generate().String(), rec, claimant, respondent, amount, faultPct, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSubrogation(ctx, sub); err != nil {
		return nil, err
	}

	s.log.Info("subrogation filed",
		zap.String("subrogation_id", sub.ID),
		zap.String("identifier", id.String()),
		zap.String("claimant", sub.ClaimantInsurer),
		zap.String("respondent", sub.RespondentInsurer),
		zap.Int64("amount", int64(sub.Amount)),
	)
	s.emit(ctx, "subrogation", domain.Event{Kind: domain.EventSubrogationFiled, AccidentID: id, SubjectID: sub.ID, Status: string(sub.Status), At: now})
	return sub, nil
}

func (s *Service) GetSubrogation(ctx context.Context, subID string) (*domain.SubrogationClaim, error) {
	return s.store.GetSubrogation(ctx, subID)
}

func (s *Service) Resolve(ctx context.Context, subID string, outcome domain.Outcome) (*domain.SubrogationClaim, error) {
	now := s.clock()
	applied := false
	sub, err := s.store.UpdateSubrogation(ctx, subID, func(sub *domain.SubrogationClaim) (bool, error) {
		ok, err := sub.Resolve(outcome, now)
		applied = ok
		return ok, err
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.emit(ctx, "subrogation", domain.Event{Kind: domain.EventSubrogationResolved, AccidentID: sub.AccidentID, SubjectID: sub.ID, Status: string(sub.Status), At: now})
	}
	return sub, nil
}

// NetBalance is what b owes a. It is recomputed from the approved claims on
// every call.
func (s *Service) NetBalance(ctx context.Context, a, b string) (domain.Amount, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0, domain.ErrInvalidInsurer
	}
	claims, err := s.store.ListApprovedSubrogations(ctx, a, b)
	if err != nil {
		return 0, err
	}
	balanceQueriesTotal.Inc()
	return domain.NetBalance(claims, a, b), nil
}
