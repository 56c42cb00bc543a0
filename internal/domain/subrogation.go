package domain

import (
	"strings"
	"time"

	"github.com/punchamoorthee/crashledger/internal/identifier"
)

type SubrogationStatus string

const (
	SubrogationPending  SubrogationStatus = "pending"
	SubrogationApproved SubrogationStatus = "approved"
	SubrogationRejected SubrogationStatus = "rejected"
)

// SubrogationClaim is one insurer's recovery claim against another for a
// settled accident. It is directional: claimant never equals respondent.
type SubrogationClaim struct {
	ID                string            `json:"id"`
	AccidentID        identifier.ID     `json:"identifier"`
	ClaimantInsurer   string            `json:"claimant"`
	RespondentInsurer string            `json:"respondent"`
	Amount            Amount            `json:"amount"`
	FaultPercent      int               `json:"fault_pct"`
	Status            SubrogationStatus `json:"status"`
	FiledAt           time.Time         `json:"filed_at"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
	Version           int64             `json:"version"`
}

// NewSubrogation files a pending subrogation claim against an approved accident.
func NewSubrogation(id string, rec *AccidentRecord, claimant, respondent string, amount Amount, faultPct int, now time.Time) (*SubrogationClaim, error) {
	claimant = strings.TrimSpace(claimant)
	respondent = strings.TrimSpace(respondent)
	if claimant == "" || respondent == "" {
		return nil, ErrInvalidInsurer
	}
	if claimant == respondent {
		return nil, ErrSelfSubrogation
	}
	if !validPercent(faultPct) {
		return nil, ErrInvalidFaultPercent
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if rec.Report.Status != ReportApproved {
		return nil, ErrReportNotApproved
	}
	if !rec.InsurerInvolved(claimant) || !rec.InsurerInvolved(respondent) {
		return nil, ErrInsurerNotInvolved
	}
	return &SubrogationClaim{
		ID:                id,
		AccidentID:        rec.ID,
		ClaimantInsurer:   claimant,
		RespondentInsurer: respondent,
		Amount:            amount,
		FaultPercent:      faultPct,
		Status:            SubrogationPending,
		FiledAt:           now,
		Version:           1,
	}, nil
}

func (s *SubrogationClaim) Clone() *SubrogationClaim {
	if s == nil {
		return nil
	}
	out := *s
	out.ResolvedAt = cloneTime(s.ResolvedAt)
	return &out
}

// Resolve is terminal. Repeating the recorded outcome is a no-op.
func (s *SubrogationClaim) Resolve(outcome Outcome, now time.Time) (bool, error) {
	if !outcome.Valid() {
		return false, ErrInvalidOutcome
	}
	if s.Status != SubrogationPending {
		if string(s.Status) == string(outcome) {
			return false, nil
		}
		return false, ErrInvalidTransition
	}
	s.Status = SubrogationStatus(outcome)
	s.ResolvedAt = &now
	s.Version++
	return true, nil
}
