package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/punchamoorthee/crashledger/internal/identifier"
)

type ClaimStatus string

const (
	ClaimSubmitted ClaimStatus = "submitted"
	ClaimAssigned  ClaimStatus = "assigned"
	ClaimReview    ClaimStatus = "review"
	ClaimApproved  ClaimStatus = "approved"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimPaid      ClaimStatus = "paid"
)

// Outcome of a claim decision or a subrogation resolution.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

func (o Outcome) Valid() bool { return o == OutcomeApproved || o == OutcomeRejected }

// Message is one entry in a claim's thread. ID makes a retried post a no-op.
type Message struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"author_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// Claim is a driver-filed insurance claim against one vehicle of an
// approved accident. Insurer, policy, driver and fault are copied from the
// vehicle at filing time.
type Claim struct {
	ID            string        `json:"id"`
	AccidentID    identifier.ID `json:"identifier"`
	VehicleRef    string        `json:"vehicle_ref"`
	InsurerID     string        `json:"insurer_id"`
	PolicyNumber  string        `json:"policy_number"`
	DriverID      string        `json:"driver_id"`
	FaultPercent  int           `json:"fault_percent"`
	ClaimedAmount Amount        `json:"claimed_amount"`
	SettledAmount Amount        `json:"settled_amount,omitempty"`
	Status        ClaimStatus   `json:"status"`
	AdjusterID    string        `json:"adjuster_id,omitempty"`
	Messages      []Message     `json:"messages"`
	SubmittedAt   time.Time     `json:"submitted_at"`
	AssignedAt    *time.Time    `json:"assigned_at,omitempty"`
	DecidedAt     *time.Time    `json:"decided_at,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	Version       int64         `json:"version"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewClaim files a claim. The accident report must be approved.
func NewClaim(id string, rec *AccidentRecord, vehicleRef string, amount Amount, now time.Time) (*Claim, error) {
	if rec.Report.Status != ReportApproved {
		return nil, ErrReportNotApproved
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	v, ok := rec.Vehicle(vehicleRef)
	if !ok {
		return nil, ErrVehicleNotFound
	}
	return &Claim{
		ID:            id,
		AccidentID:    rec.ID,
		VehicleRef:    v.Registration,
		InsurerID:     v.InsurerID,
		PolicyNumber:  v.PolicyNumber,
		DriverID:      v.DriverID,
		FaultPercent:  v.FaultPercent,
		ClaimedAmount: amount,
		Status:        ClaimSubmitted,
		Messages:      []Message{},
		SubmittedAt:   now,
		Version:       1,
		UpdatedAt:     now,
	}, nil
}

// Terminal reports whether no further transition leaves s.
func (s ClaimStatus) Terminal() bool { return s == ClaimRejected || s == ClaimPaid }

func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = slices.Clone(c.Messages)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	out.AssignedAt = cloneTime(c.AssignedAt)
	out.DecidedAt = cloneTime(c.DecidedAt)
	out.PaidAt = cloneTime(c.PaidAt)
	return &out
}

// Assign hands a submitted claim to an adjuster.
func (c *Claim) Assign(adjusterID string, now time.Time) (bool, error) {
	adjuster := strings.TrimSpace(adjusterID)
	if adjuster == "" {
		return false, ErrMissingAdjuster
	}
	if c.Status == ClaimAssigned && c.AdjusterID == adjuster {
		return false, nil
	}
	if c.Status != ClaimSubmitted {
		return false, ErrInvalidTransition
	}
	c.Status = ClaimAssigned
	c.AdjusterID = adjuster
	c.AssignedAt = &now
	c.touch(now)
	return true, nil
}

// RequestInfo posts an adjuster question and moves the claim into review.
func (c *Claim) RequestInfo(m Message, now time.Time) (bool, error) {
	if c.hasMessage(m.ID) {
		return false, nil
	}
	if c.Status != ClaimAssigned && c.Status != ClaimReview {
		return false, ErrInvalidTransition
	}
	if err := c.appendMessage(m, now); err != nil {
		return false, err
	}
	c.Status = ClaimReview
	return true, nil
}

// Reply posts to the thread without changing state.
func (c *Claim) Reply(m Message, now time.Time) (bool, error) {
	if c.hasMessage(m.ID) {
		return false, nil
	}
	if c.Status != ClaimAssigned && c.Status != ClaimReview {
		return false, ErrInvalidTransition
	}
	if err := c.appendMessage(m, now); err != nil {
		return false, err
	}
	return true, nil
}

// Decide approves or rejects the claim. An approval settles for at most the
// claimed amount. Repeating the recorded decision is a no-op.
func (c *Claim) Decide(outcome Outcome, settled Amount, now time.Time) (bool, error) {
	if !outcome.Valid() {
		return false, ErrInvalidOutcome
	}
	switch c.Status {
	case ClaimApproved, ClaimPaid:
		if outcome == OutcomeApproved && settled == c.SettledAmount {
			return false, nil
		}
		return false, ErrInvalidTransition
	case ClaimRejected:
		if outcome == OutcomeRejected {
			return false, nil
		}
		return false, ErrInvalidTransition
	case ClaimAssigned, ClaimReview:
	default:
		return false, ErrInvalidTransition
	}

	if outcome == OutcomeApproved {
		if settled <= 0 {
			return false, ErrInvalidAmount
		}
		if settled > c.ClaimedAmount {
			return false, ErrSettlementExceedsClaim
		}
		c.Status = ClaimApproved
		c.SettledAmount = settled
	} else {
		c.Status = ClaimRejected
		c.SettledAmount = 0
	}
	c.DecidedAt = &now
	c.touch(now)
	return true, nil
}

// MarkPaid records payment of an approved claim.
func (c *Claim) MarkPaid(now time.Time) (bool, error) {
	switch c.Status {
	case ClaimPaid:
		return false, nil
	case ClaimApproved:
	default:
		return false, ErrInvalidTransition
	}
	c.Status = ClaimPaid
	c.PaidAt = &now
	c.touch(now)
	return true, nil
}

func (c *Claim) hasMessage(id string) bool {
	if id == "" {
		return false
	}
	for _, m := range c.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (c *Claim) appendMessage(m Message, now time.Time) error {
	if strings.TrimSpace(m.Body) == "" {
		return ErrEmptyMessage
	}
	m.SentAt = now
	c.Messages = append(c.Messages, m)
	c.touch(now)
	return nil
}

func (c *Claim) touch(now time.Time) {
	c.UpdatedAt = now
	c.Version++
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
