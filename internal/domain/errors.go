package domain

import (
	"errors"

	"github.com/punchamoorthee/crashledger/internal/identifier"
)

// Validation errors. The request is rejected and nothing is applied.
var (
	ErrInvalidIdentifier       = identifier.ErrMalformed
	ErrIncompleteReport        = errors.New("report needs at least one vehicle and a narrative")
	ErrFaultPercentageMismatch = errors.New("fault percentages must sum to 100")
	ErrInvalidFaultPercent     = errors.New("fault percentage must be between 0 and 100")
	ErrSelfReview              = errors.New("reviewer must differ from the reporting officer")
	ErrMissingReviewer         = errors.New("reviewer id required")
	ErrMissingReason           = errors.New("rejection reason required")
	ErrMissingAuthor           = errors.New("reporting officer id required")
	ErrInvalidVehicle          = errors.New("vehicle registration required")
	ErrInvalidAssessment       = errors.New("assessment needs an assessor and a known severity")
	ErrAssessorMismatch        = errors.New("vehicle already assessed by another officer")
	ErrInvalidWitness          = errors.New("witness statement required")
	ErrInvalidAmount           = errors.New("amount must be a positive integer")
	ErrSettlementExceedsClaim  = errors.New("settled amount exceeds claimed amount")
	ErrInvalidOutcome          = errors.New("outcome must be approved or rejected")
	ErrMissingAdjuster         = errors.New("adjuster id required")
	ErrEmptyMessage            = errors.New("message body required")
	ErrSelfSubrogation         = errors.New("claimant and respondent insurer must differ")
	ErrInvalidInsurer          = errors.New("insurer id required")
	ErrInsurerNotInvolved      = errors.New("insurer covers no vehicle in this accident")
)

// Conflict errors. A concurrent writer won; re-read before retrying.
var (
	ErrAlreadyExists     = errors.New("already exists")
	ErrReportFrozen      = errors.New("report is closed for changes")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrReportNotApproved = errors.New("accident report is not approved")
)

// Not-found errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrVehicleNotFound = errors.New("vehicle not found in accident record")
)

// Kind classifies an error for callers that map it onto a transport status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindNotFound, []error{ErrNotFound, ErrVehicleNotFound}},
	{KindConflict, []error{ErrAlreadyExists, ErrReportFrozen, ErrInvalidTransition, ErrReportNotApproved}},
	{KindValidation, []error{
		ErrInvalidIdentifier, ErrIncompleteReport, ErrFaultPercentageMismatch, ErrInvalidFaultPercent,
		ErrSelfReview, ErrMissingReviewer, ErrMissingReason, ErrMissingAuthor, ErrInvalidVehicle,
		ErrInvalidAssessment, ErrAssessorMismatch, ErrInvalidWitness, ErrInvalidAmount,
		ErrSettlementExceedsClaim, ErrInvalidOutcome, ErrMissingAdjuster, ErrEmptyMessage,
		ErrSelfSubrogation, ErrInvalidInsurer, ErrInsurerNotInvolved,
	}},
}

// KindOf reports the class of err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}
