package narrative

import (
	"strings"
	"testing"
	"time"

	"github.com/punchamoorthee/crashledger/internal/domain"
)

func approvedRecord() *domain.AccidentRecord {
	at := time.Date(2024, 3, 14, 8, 30, 0, 0, time.UTC)
	reviewed := at.Add(48 * time.Hour)
	return &domain.AccidentRecord{
		ID:         "ACC-2024-0001",
		OccurredAt: at,
		Location:   "A4 westbound, junction 3",
		Conditions: domain.Conditions{Weather: "rain", Road: "wet"},
		Narrative:  "Vehicle 1 braked; vehicle 2 failed to stop.",
		AuthorID:   "officer-1",
		Vehicles: []domain.VehicleInvolvement{
			{Registration: "AB12CDE", Make: "Ford", Model: "Focus", Year: 2019, DriverID: "d-1", InsurerID: "ins-a", FaultPercent: 30,
				Assessment: &domain.DamageAssessment{AssessorID: "dvla-1", Severity: domain.SeverityModerate, Roadworthy: true, EstimatedRepairCost: 1250000}},
			{Registration: "XY34ZZZ", InsurerID: "ins-b", FaultPercent: 70},
		},
		Witnesses: []domain.WitnessStatement{{Name: "J. Doe", Statement: "Saw it all.", RecordedAt: at}},
		Report: domain.Report{
			Status:      domain.ReportApproved,
			ReviewerID:  "officer-2",
			ReviewNotes: "consistent with scene photos",
			ReviewedAt:  &reviewed,
		},
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	rec := approvedRecord()
	first, err := Render(rec)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := Render(rec.Clone())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if first != second {
		t.Fatal("expected identical documents for identical records")
	}
}

func TestRenderIncludesRecordFacts(t *testing.T) {
	doc, err := Render(approvedRecord())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"ACCIDENT REPORT ACC-2024-0001",
		"Occurred:   2024-03-14T08:30:00Z",
		"Light:      -",
		"Reviewed by:       officer-2",
		"1. AB12CDE Ford Focus (2019)",
		"Fault:   70%",
		"Assessment by dvla-1: moderate, roadworthy, est. repair 12500.00",
		"WITNESSES (1)",
		`"Saw it all."`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q\n%s", want, doc)
		}
	}
}

func TestRenderNil(t *testing.T) {
	if _, err := Render(nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}
