package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
)

type createAccidentRequest struct {
	OccurredAt time.Time         `json:"occurred_at"`
	Location   string            `json:"location"`
	Conditions domain.Conditions `json:"conditions"`
	Narrative  string            `json:"narrative"`
	AuthorID   string            `json:"author_id"`
}

type createAccidentResponse struct {
	Identifier identifier.ID          `json:"identifier"`
	Record     *domain.AccidentRecord `json:"record"`
}

type updateDraftRequest struct {
	OccurredAt *time.Time         `json:"occurred_at"`
	Location   *string            `json:"location"`
	Conditions *domain.Conditions `json:"conditions"`
	Narrative  *string            `json:"narrative"`
}

type vehicleRequest struct {
	Registration      string `json:"registration"`
	Make              string `json:"make"`
	Model             string `json:"model"`
	Year              int    `json:"year"`
	DriverID          string `json:"driver_id"`
	DriverName        string `json:"driver_name"`
	InsurerID         string `json:"insurer_id"`
	PolicyNumber      string `json:"policy_number"`
	FaultPercent      int    `json:"fault_percent"`
	DamageDescription string `json:"damage_description"`
	AttachedBy        string `json:"attached_by"`
}

type assessmentRequest struct {
	AssessorID          string          `json:"assessor_id"`
	Severity            domain.Severity `json:"severity"`
	Roadworthy          bool            `json:"roadworthy"`
	EstimatedRepairCost Amount          `json:"estimated_repair_cost"`
}

type witnessRequest struct {
	Name      string `json:"name"`
	Contact   string `json:"contact"`
	Statement string `json:"statement"`
}

type reviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Notes      string `json:"notes"`
	Reason     string `json:"reason"`
}

func accidentID(r *http.Request) identifier.ID {
	return identifier.ID(mux.Vars(r)["id"])
}

func (h *Handler) CreateAccidentHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccidentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.service.OpenRecord(r.Context(), domain.RecordFields{
		OccurredAt: req.OccurredAt,
		Location:   req.Location,
		Conditions: req.Conditions,
		Narrative:  req.Narrative,
		AuthorID:   req.AuthorID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/accidents/"+rec.ID.String())
	respondWithJSON(w, http.StatusCreated, createAccidentResponse{Identifier: rec.ID, Record: rec})
}

func (h *Handler) GetAccidentHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetRecord(r.Context(), accidentID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *Handler) UpdateDraftHandler(w http.ResponseWriter, r *http.Request) {
	var req updateDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.UpdateDraft(r.Context(), accidentID(r), domain.DraftUpdate{
		OccurredAt: req.OccurredAt,
		Location:   req.Location,
		Conditions: req.Conditions,
		Narrative:  req.Narrative,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *Handler) AttachVehicleHandler(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.AttachVehicle(r.Context(), accidentID(r), domain.VehicleInvolvement{
		Registration:      req.Registration,
		Make:              req.Make,
		Model:             req.Model,
		Year:              req.Year,
		DriverID:          req.DriverID,
		DriverName:        req.DriverName,
		InsurerID:         req.InsurerID,
		PolicyNumber:      req.PolicyNumber,
		FaultPercent:      req.FaultPercent,
		DamageDescription: req.DamageDescription,
		AttachedBy:        req.AttachedBy,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *Handler) AttachAssessmentHandler(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.AttachAssessment(r.Context(), accidentID(r), mux.Vars(r)["registration"], domain.DamageAssessment{
		AssessorID:          req.AssessorID,
		Severity:            req.Severity,
		Roadworthy:          req.Roadworthy,
		EstimatedRepairCost: domain.Amount(req.EstimatedRepairCost),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *Handler) AddWitnessHandler(w http.ResponseWriter, r *http.Request) {
	var req witnessRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.AddWitness(r.Context(), accidentID(r), domain.WitnessStatement{
		Name:      req.Name,
		Contact:   req.Contact,
		Statement: req.Statement,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *Handler) SubmitReportHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Submit(r.Context(), accidentID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *Handler) ApproveReportHandler(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.Approve(r.Context(), accidentID(r), req.ReviewerID, req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *Handler) RejectReportHandler(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.Reject(r.Context(), accidentID(r), req.ReviewerID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListAccidentClaimsHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := h.service.ListClaims(r.Context(), accidentID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, claims)
}

func (h *Handler) ListAccidentSubrogationsHandler(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.ListSubrogations(r.Context(), accidentID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, subs)
}
