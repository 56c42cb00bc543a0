package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
	"go.uber.org/zap"
)

// OpenRecord mints a fresh identifier and creates a draft record under it.
func (s *Service) OpenRecord(ctx context.Context, f domain.RecordFields) (*domain.AccidentRecord, error) {
	id, err := s.issuer.Issue(ctx)
	if err != nil {
		return nil, err
	}
	return s.CreateRecord(ctx, id, f)
}

// CreateRecord stores a draft record under id. The first writer wins.
func (s *Service) CreateRecord(ctx context.Context, id identifier.ID, f domain.RecordFields) (*domain.AccidentRecord, error) {
	now := s.clock()
	rec, err := domain.NewAccidentRecord(id, f, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info("accident record created", zap.String("identifier", id.String()), zap.String("author", rec.AuthorID))
	s.emit(ctx, "report", domain.Event{Kind: domain.EventRecordCreated, AccidentID: id, Status: string(rec.Status()), At: now})
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, id identifier.ID) (*domain.AccidentRecord, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.store.GetRecord(ctx, id)
}

// UpdateDraft edits the scene facts of a draft record.
func (s *Service) UpdateDraft(ctx context.Context, id identifier.ID, u domain.DraftUpdate) (*domain.AccidentRecord, error) {
	return s.mutateRecord(ctx, id, "", domain.EventRecordEdited, "", func(r *domain.AccidentRecord, now time.Time) (bool, error) {
		if err := r.ApplyDraft(u, now); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *Service) AttachVehicle(ctx context.Context, id identifier.ID, v domain.VehicleInvolvement) (*domain.AccidentRecord, error) {
	return s.mutateRecord(ctx, id, "", domain.EventVehicleAttached, v.Registration, func(r *domain.AccidentRecord, now time.Time) (bool, error) {
		return r.AttachVehicle(v, now)
	})
}

// AttachAssessment records a DVLA damage assessment against one vehicle.
func (s *Service) AttachAssessment(ctx context.Context, id identifier.ID, registration string, a domain.DamageAssessment) (*domain.AccidentRecord, error) {
	return s.mutateRecord(ctx, id, "", domain.EventAssessmentAttached, registration, func(r *domain.AccidentRecord, now time.Time) (bool, error) {
		return r.AttachAssessment(registration, a, now)
	})
}

func (s *Service) AddWitness(ctx context.Context, id identifier.ID, w domain.WitnessStatement) (*domain.AccidentRecord, error) {
	return s.mutateRecord(ctx, id, "", domain.EventWitnessAdded, "", func(r *domain.AccidentRecord, now time.Time) (bool, error) {
		return r.AddWitness(w, now)
	})
}

// ListClaims returns every claim filed against the accident, closed ones included.
func (s *Service) ListClaims(ctx context.Context, id identifier.ID) ([]domain.Claim, error) {
	if _, err := s.GetRecord(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListClaims(ctx, id)
}

func (s *Service) ListSubrogations(ctx context.Context, id identifier.ID) ([]domain.SubrogationClaim, error) {
	if _, err := s.GetRecord(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListSubrogations(ctx, id)
}

// mutateRecord applies fn under the record's write lock and emits kind if
// fn reported a change. machine names the state machine for metrics, or is
// empty for plain edits.
func (s *Service) mutateRecord(ctx context.Context, id identifier.ID, machine string, kind domain.EventKind, subject string, fn func(*domain.AccidentRecord, time.Time) (bool, error)) (*domain.AccidentRecord, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	now := s.clock()
	applied := false
	rec, err := s.store.UpdateRecord(ctx, id, func(r *domain.AccidentRecord) (bool, error) {
		ok, err := fn(r, now)
		applied = ok
		return ok, err
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.emit(ctx, machine, domain.Event{Kind: kind, AccidentID: id, SubjectID: subject, Status: string(rec.Status()), At: now})
	}
	return rec, nil
}
