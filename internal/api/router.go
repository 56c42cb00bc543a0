package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path variables exclude ':' so custom verbs like "/claims/{id}:assign" split cleanly.
const idVar = "{id:[^/:]+}"

// NewRouter wires every route onto a fresh mux.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(h.observe)

	v1.HandleFunc("/accidents", h.idempotent(h.CreateAccidentHandler)).Methods(http.MethodPost)
	v1.HandleFunc("/accidents/"+idVar, h.GetAccidentHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accidents/"+idVar, h.UpdateDraftHandler).Methods(http.MethodPatch)
	v1.HandleFunc("/accidents/"+idVar+"/vehicles", h.AttachVehicleHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accidents/"+idVar+"/vehicles/{registration}/assessment", h.AttachAssessmentHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accidents/"+idVar+"/witnesses", h.AddWitnessHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accidents/"+idVar+"/report:submit", h.SubmitReportHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accidents/"+idVar+"/report:approve", h.ApproveReportHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accidents/"+idVar+"/report:reject", h.RejectReportHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accidents/"+idVar+"/claims", h.ListAccidentClaimsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accidents/"+idVar+"/subrogations", h.ListAccidentSubrogationsHandler).Methods(http.MethodGet)

	v1.HandleFunc("/claims", h.idempotent(h.FileClaimHandler)).Methods(http.MethodPost)
	v1.HandleFunc("/claims/"+idVar, h.GetClaimHandler).Methods(http.MethodGet)
	v1.HandleFunc("/claims/"+idVar+":assign", h.AssignClaimHandler).Methods(http.MethodPost)
	v1.HandleFunc("/claims/"+idVar+":request-info", h.RequestInfoHandler).Methods(http.MethodPost)
	v1.HandleFunc("/claims/"+idVar+":reply", h.ReplyHandler).Methods(http.MethodPost)
	v1.HandleFunc("/claims/"+idVar+":decide", h.DecideClaimHandler).Methods(http.MethodPost)
	v1.HandleFunc("/claims/"+idVar+":pay", h.PayClaimHandler).Methods(http.MethodPost)

	v1.HandleFunc("/subrogations", h.idempotent(h.FileSubrogationHandler)).Methods(http.MethodPost)
	v1.HandleFunc("/subrogations/"+idVar, h.GetSubrogationHandler).Methods(http.MethodGet)
	v1.HandleFunc("/subrogations/"+idVar+":resolve", h.ResolveSubrogationHandler).Methods(http.MethodPost)

	v1.HandleFunc("/ledger/{insurerA}/{insurerB}", h.NetBalanceHandler).Methods(http.MethodGet)

	return r
}
