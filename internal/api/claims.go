package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
)

type fileClaimRequest struct {
	Identifier identifier.ID `json:"identifier"`
	VehicleRef string        `json:"vehicle_ref"`
	Amount     Amount        `json:"amount"`
}

type assignRequest struct {
	AdjusterID string `json:"adjuster_id"`
}

type messageRequest struct {
	MessageID string `json:"message_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
}

type decideRequest struct {
	Outcome       domain.Outcome `json:"outcome"`
	SettledAmount Amount         `json:"settled_amount"`
}

func claimID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func (h *Handler) FileClaimHandler(w http.ResponseWriter, r *http.Request) {
	var req fileClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.FileClaim(r.Context(), req.Identifier, req.VehicleRef, domain.Amount(req.Amount))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/claims/"+c.ID)
	respondWithJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetClaimHandler(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetClaim(r.Context(), claimID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *Handler) AssignClaimHandler(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.Assign(r.Context(), claimID(r), req.AdjusterID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *Handler) RequestInfoHandler(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.RequestInfo(r.Context(), claimID(r), domain.Message{ID: req.MessageID, AuthorID: req.AuthorID, Body: req.Body})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *Handler) ReplyHandler(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.Reply(r.Context(), claimID(r), domain.Message{ID: req.MessageID, AuthorID: req.AuthorID, Body: req.Body})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *Handler) DecideClaimHandler(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.Decide(r.Context(), claimID(r), req.Outcome, domain.Amount(req.SettledAmount))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *Handler) PayClaimHandler(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.MarkPaid(r.Context(), claimID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}
