package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type ReportStatus string

const (
	ReportDraft           ReportStatus = "draft"
	ReportPendingApproval ReportStatus = "pending_approval"
	ReportApproved        ReportStatus = "approved"
	ReportRejected        ReportStatus = "rejected"
)

// Terminal reports whether no further report transition exists.
func (s ReportStatus) Terminal() bool {
	return s == ReportApproved || s == ReportRejected
}

// Report is the police sub-record of an accident.
type Report struct {
	Status          ReportStatus `json:"status"`
	SubmittedAt     *time.Time   `json:"submitted_at,omitempty"`
	ReviewerID      string       `json:"reviewer_id,omitempty"`
	ReviewNotes     string       `json:"review_notes,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
	Document        string       `json:"document,omitempty"`
	DocumentDigest  string       `json:"document_digest,omitempty"`
}

func (r Report) clone() Report {
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		r.SubmittedAt = &t
	}
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		r.ReviewedAt = &t
	}
	return r
}

// RenderFunc produces the canonical narrative document for an approved record.
type RenderFunc func(*AccidentRecord) (string, error)

// Submit moves a draft to pending approval. A retry while pending is a no-op.
func (r *AccidentRecord) Submit(now time.Time) (bool, error) {
	switch r.Report.Status {
	case ReportPendingApproval:
		return false, nil
	case ReportApproved, ReportRejected:
		return false, ErrInvalidTransition
	}
	if len(r.Vehicles) == 0 || strings.TrimSpace(r.Narrative) == "" {
		return false, ErrIncompleteReport
	}
	r.Report.Status = ReportPendingApproval
	r.Report.SubmittedAt = &now
	r.touch(now)
	return true, nil
}

// Approve closes the report and renders its document. On a terminal report
// it returns without error and without rendering again.
func (r *AccidentRecord) Approve(reviewerID, notes string, now time.Time, render RenderFunc) (bool, error) {
	if r.Report.Status.Terminal() {
		return false, nil
	}
	if r.Report.Status != ReportPendingApproval {
		return false, ErrInvalidTransition
	}
	reviewer, err := r.checkReviewer(reviewerID)
	if err != nil {
		return false, err
	}
	if r.FaultTotal() != 100 {
		return false, ErrFaultPercentageMismatch
	}

	r.Report.Status = ReportApproved
	r.Report.ReviewerID = reviewer
	r.Report.ReviewNotes = notes
	r.Report.ReviewedAt = &now
	r.touch(now)

	doc, err := render(r)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256([]byte(doc))
	r.Report.Document = doc
	r.Report.DocumentDigest = hex.EncodeToString(sum[:])
	return true, nil
}

// Reject closes the report without a document. On a terminal report it
// returns without error.
func (r *AccidentRecord) Reject(reviewerID, reason string, now time.Time) (bool, error) {
	if r.Report.Status.Terminal() {
		return false, nil
	}
	if r.Report.Status != ReportPendingApproval {
		return false, ErrInvalidTransition
	}
	reviewer, err := r.checkReviewer(reviewerID)
	if err != nil {
		return false, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, ErrMissingReason
	}

	r.Report.Status = ReportRejected
	r.Report.ReviewerID = reviewer
	r.Report.RejectionReason = reason
	r.Report.ReviewedAt = &now
	r.touch(now)
	return true, nil
}

func (r *AccidentRecord) checkReviewer(reviewerID string) (string, error) {
	reviewer := strings.TrimSpace(reviewerID)
	if reviewer == "" {
		return "", ErrMissingReviewer
	}
	if reviewer == r.AuthorID {
		return "", ErrSelfReview
	}
	return reviewer, nil
}
