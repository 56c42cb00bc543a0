package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/punchamoorthee/crashledger/internal/identifier"
)

// Amount is a monetary value in the smallest currency unit.
type Amount int64

// Severity is the DVLA damage tier.
type Severity string

const (
	SeverityNone       Severity = "none"
	SeverityLight      Severity = "light"
	SeverityModerate   Severity = "moderate"
	SeveritySevere     Severity = "severe"
	SeverityDemolished Severity = "demolished"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityNone, SeverityLight, SeverityModerate, SeveritySevere, SeverityDemolished:
		return true
	}
	return false
}

// Conditions at the scene.
type Conditions struct {
	Weather string `json:"weather"`
	Road    string `json:"road"`
	Light   string `json:"light"`
}

// DamageAssessment is attached to one vehicle by one DVLA officer.
type DamageAssessment struct {
	AssessorID          string    `json:"assessor_id"`
	Severity            Severity  `json:"severity"`
	Roadworthy          bool      `json:"roadworthy"`
	EstimatedRepairCost Amount    `json:"estimated_repair_cost"`
	AssessedAt          time.Time `json:"assessed_at"`
}

// VehicleInvolvement is one vehicle's participation in an accident.
// Registration identifies the vehicle within its record.
type VehicleInvolvement struct {
	Registration      string            `json:"registration"`
	Make              string            `json:"make"`
	Model             string            `json:"model"`
	Year              int               `json:"year"`
	DriverID          string            `json:"driver_id"`
	DriverName        string            `json:"driver_name"`
	InsurerID         string            `json:"insurer_id"`
	PolicyNumber      string            `json:"policy_number"`
	FaultPercent      int               `json:"fault_percent"`
	DamageDescription string            `json:"damage_description"`
	Assessment        *DamageAssessment `json:"assessment,omitempty"`
	AttachedBy        string            `json:"attached_by"`
	AttachedAt        time.Time         `json:"attached_at"`
}

type WitnessStatement struct {
	Name       string    `json:"name"`
	Contact    string    `json:"contact"`
	Statement  string    `json:"statement"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordFields are the facts a police officer supplies when opening a record.
type RecordFields struct {
	OccurredAt time.Time
	Location   string
	Conditions Conditions
	Narrative  string
	AuthorID   string
}

// DraftUpdate carries optional edits to a draft record.
type DraftUpdate struct {
	OccurredAt *time.Time
	Location   *string
	Conditions *Conditions
	Narrative  *string
}

// AccidentRecord is the aggregate every agency attaches to.
type AccidentRecord struct {
	ID         identifier.ID        `json:"identifier"`
	OccurredAt time.Time            `json:"occurred_at"`
	Location   string               `json:"location"`
	Conditions Conditions           `json:"conditions"`
	Narrative  string               `json:"narrative"`
	AuthorID   string               `json:"author_id"`
	Vehicles   []VehicleInvolvement `json:"vehicles"`
	Witnesses  []WitnessStatement   `json:"witnesses"`
	Report     Report               `json:"report"`
	Version    int64                `json:"version"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// NewAccidentRecord opens a draft record.
func NewAccidentRecord(id identifier.ID, f RecordFields, now time.Time) (*AccidentRecord, error) {
	if !identifier.Validate(id.String()) {
		return nil, ErrInvalidIdentifier
	}
	author := strings.TrimSpace(f.AuthorID)
	if author == "" {
		return nil, ErrMissingAuthor
	}
	return &AccidentRecord{
		ID:         id,
		OccurredAt: f.OccurredAt.UTC(),
		Location:   f.Location,
		Conditions: f.Conditions,
		Narrative:  f.Narrative,
		AuthorID:   author,
		Vehicles:   []VehicleInvolvement{},
		Witnesses:  []WitnessStatement{},
		Report:     Report{Status: ReportDraft},
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Status is derived from the report sub-record.
func (r *AccidentRecord) Status() ReportStatus { return r.Report.Status }

// Frozen reports whether vehicles, assessments and witnesses are closed.
func (r *AccidentRecord) Frozen() bool { return r.Report.Status.Terminal() }

// FaultTotal sums fault percentages across all vehicles.
func (r *AccidentRecord) FaultTotal() int {
	total := 0
	for _, v := range r.Vehicles {
		total += v.FaultPercent
	}
	return total
}

// Vehicle finds a vehicle by registration.
func (r *AccidentRecord) Vehicle(registration string) (*VehicleInvolvement, bool) {
	reg := normalizeRegistration(registration)
	for i := range r.Vehicles {
		if r.Vehicles[i].Registration == reg {
			return &r.Vehicles[i], true
		}
	}
	return nil, false
}

// InsurerInvolved reports whether insurer covers any vehicle in the record.
func (r *AccidentRecord) InsurerInvolved(insurer string) bool {
	for _, v := range r.Vehicles {
		if v.InsurerID == insurer {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r *AccidentRecord) Clone() *AccidentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Vehicles = make([]VehicleInvolvement, len(r.Vehicles))
	for i, v := range r.Vehicles {
		if v.Assessment != nil {
			a := *v.Assessment
			v.Assessment = &a
		}
		c.Vehicles[i] = v
	}
	c.Witnesses = slices.Clone(r.Witnesses)
	if c.Witnesses == nil {
		c.Witnesses = []WitnessStatement{}
	}
	c.Report = r.Report.clone()
	return &c
}

// ApplyDraft edits the scene facts. Only drafts are editable.
func (r *AccidentRecord) ApplyDraft(u DraftUpdate, now time.Time) error {
	if r.Frozen() {
		return ErrReportFrozen
	}
	if r.Report.Status != ReportDraft {
		return ErrInvalidTransition
	}
	if u.OccurredAt != nil {
		r.OccurredAt = u.OccurredAt.UTC()
	}
	if u.Location != nil {
		r.Location = *u.Location
	}
	if u.Conditions != nil {
		r.Conditions = *u.Conditions
	}
	if u.Narrative != nil {
		r.Narrative = *u.Narrative
	}
	r.touch(now)
	return nil
}

// AttachVehicle adds a vehicle or replaces the entry with the same
// registration. An existing assessment is kept. Re-attaching identical
// facts reports no change.
func (r *AccidentRecord) AttachVehicle(v VehicleInvolvement, now time.Time) (bool, error) {
	if r.Frozen() {
		return false, ErrReportFrozen
	}
	v.Registration = normalizeRegistration(v.Registration)
	if v.Registration == "" {
		return false, ErrInvalidVehicle
	}
	if !validPercent(v.FaultPercent) {
		return false, ErrInvalidFaultPercent
	}
	v.Assessment = nil
	existing, ok := r.Vehicle(v.Registration)
	if ok {
		v.Assessment = existing.Assessment
		v.AttachedAt = existing.AttachedAt
		if *existing == v {
			return false, nil
		}
	}
	v.AttachedAt = now
	if ok {
		*existing = v
	} else {
		r.Vehicles = append(r.Vehicles, v)
	}
	r.touch(now)
	return true, nil
}

// AttachAssessment sets or revises a vehicle's damage assessment. Only the
// officer who first assessed the vehicle may revise it.
func (r *AccidentRecord) AttachAssessment(registration string, a DamageAssessment, now time.Time) (bool, error) {
	if r.Frozen() {
		return false, ErrReportFrozen
	}
	v, ok := r.Vehicle(registration)
	if !ok {
		return false, ErrVehicleNotFound
	}
	a.AssessorID = strings.TrimSpace(a.AssessorID)
	if a.AssessorID == "" || !a.Severity.Valid() {
		return false, ErrInvalidAssessment
	}
	if a.EstimatedRepairCost < 0 {
		return false, ErrInvalidAmount
	}
	if prev := v.Assessment; prev != nil {
		if prev.AssessorID != a.AssessorID {
			return false, ErrAssessorMismatch
		}
		if prev.Severity == a.Severity && prev.Roadworthy == a.Roadworthy && prev.EstimatedRepairCost == a.EstimatedRepairCost {
			return false, nil
		}
	}
	a.AssessedAt = now
	v.Assessment = &a
	r.touch(now)
	return true, nil
}

// AddWitness appends a statement. An identical statement is not recorded twice.
func (r *AccidentRecord) AddWitness(w WitnessStatement, now time.Time) (bool, error) {
	if r.Frozen() {
		return false, ErrReportFrozen
	}
	if strings.TrimSpace(w.Statement) == "" {
		return false, ErrInvalidWitness
	}
	for _, existing := range r.Witnesses {
		if existing.Name == w.Name && existing.Contact == w.Contact && existing.Statement == w.Statement {
			return false, nil
		}
	}
	w.RecordedAt = now
	r.Witnesses = append(r.Witnesses, w)
	r.touch(now)
	return true, nil
}

func (r *AccidentRecord) touch(now time.Time) {
	r.UpdatedAt = now
	r.Version++
}

func normalizeRegistration(reg string) string {
	return strings.ToUpper(strings.TrimSpace(reg))
}

func validPercent(p int) bool { return p >= 0 && p <= 100 }
