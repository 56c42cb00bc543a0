package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
	"go.uber.org/zap"
)

// Submit sends a draft report for supervisor review.
func (s *Service) Submit(ctx context.Context, id identifier.ID) (*domain.AccidentRecord, error) {
	return s.mutateRecord(ctx, id, "report", domain.EventReportSubmitted, "", func(r *domain.AccidentRecord, now time.Time) (bool, error) {
		return r.Submit(now)
	})
}

// Approve closes the report, freezing vehicles and assessments, and stores
// the rendered document. The fault check, the freeze and the rendering all
// happen under the record's write lock, so an attachment racing with
// approval either lands before it or fails with ErrReportFrozen.
func (s *Service) Approve(ctx context.Context, id identifier.ID, reviewerID, notes string) (*domain.AccidentRecord, error) {
	rec, err := s.mutateRecord(ctx, id, "report", domain.EventReportApproved, "", func(r *domain.AccidentRecord, now time.Time) (bool, error) {
		return r.Approve(reviewerID, notes, now, s.render)
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			s.log.Error("report approval failed", zap.String("identifier", id.String()), zap.Error(err))
		}
		return nil, err
	}
	return rec, nil
}

func (s *Service) Reject(ctx context.Context, id identifier.ID, reviewerID, reason string) (*domain.AccidentRecord, error) {
	return s.mutateRecord(ctx, id, "report", domain.EventReportRejected, "", func(r *domain.AccidentRecord, now time.Time) (bool, error) {
		return r.Reject(reviewerID, reason, now)
	})
}
