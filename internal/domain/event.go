package domain

import (
	"time"

	"github.com/punchamoorthee/crashledger/internal/identifier"
)

type EventKind string

const (
	EventRecordCreated       EventKind = "record.created"
	EventRecordEdited        EventKind = "record.edited"
	EventVehicleAttached     EventKind = "vehicle.attached"
	EventAssessmentAttached  EventKind = "assessment.attached"
	EventWitnessAdded        EventKind = "witness.added"
	EventReportSubmitted     EventKind = "report.submitted"
	EventReportApproved      EventKind = "report.approved"
	EventReportRejected      EventKind = "report.rejected"
	EventClaimFiled          EventKind = "claim.filed"
	EventClaimAssigned       EventKind = "claim.assigned"
	EventClaimInfoRequested  EventKind = "claim.info_requested"
	EventClaimReplied        EventKind = "claim.replied"
	EventClaimDecided        EventKind = "claim.decided"
	EventClaimPaid           EventKind = "claim.paid"
	EventSubrogationFiled    EventKind = "subrogation.filed"
	EventSubrogationResolved EventKind = "subrogation.resolved"
)

// Event describes a committed transition. SubjectID is the claim or
// subrogation id, or the vehicle registration, when one applies.
type Event struct {
	Kind       EventKind     `json:"kind"`
	AccidentID identifier.ID `json:"identifier"`
	SubjectID  string        `json:"subject_id,omitempty"`
	Status     string        `json:"status,omitempty"`
	At         time.Time     `json:"at"`
}
