package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
)

type fileSubrogationRequest struct {
	Identifier identifier.ID `json:"identifier"`
	Claimant   string        `json:"claimant"`
	Respondent string        `json:"respondent"`
	Amount     Amount        `json:"amount"`
	FaultPct   int           `json:"fault_pct"`
}

type resolveRequest struct {
	Outcome domain.Outcome `json:"outcome"`
}

type balanceResponse struct {
	InsurerA   string        `json:"insurer_a"`
	InsurerB   string        `json:"insurer_b"`
	NetBalance domain.Amount `json:"net_balance"`
}

func (h *Handler) FileSubrogationHandler(w http.ResponseWriter, r *http.Request) {
	var req fileSubrogationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := h.service.FileSubrogation(r.Context(), req.Identifier, req.Claimant, req.Respondent, domain.Amount(req.Amount), req.FaultPct)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/subrogations/"+sub.ID)
	respondWithJSON(w, http.StatusCreated, sub)
}

func (h *Handler) GetSubrogationHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.GetSubrogation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

func (h *Handler) ResolveSubrogationHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := h.service.Resolve(r.Context(), mux.Vars(r)["id"], req.Outcome)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

func (h *Handler) NetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	a, b := vars["insurerA"], vars["insurerB"]
	bal, err := h.service.NetBalance(r.Context(), a, b)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, balanceResponse{InsurerA: a, InsurerB: b, NetBalance: bal})
}
