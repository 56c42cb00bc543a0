package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/logging"
	"github.com/punchamoorthee/crashledger/internal/service"
	"github.com/punchamoorthee/crashledger/internal/store"
	"go.uber.org/zap"
)

// KeyStore persists Idempotency-Key reservations and their responses.
type KeyStore interface {
	ReserveKey(ctx context.Context, key, requestHash string) (*store.IdempotencyRecord, error)
	CompleteKey(ctx context.Context, key string, status int, body []byte) error
	ReleaseKey(ctx context.Context, key string) error
}

type Handler struct {
	service *service.Service
	keys    KeyStore
	log     *zap.Logger
}

func NewHandler(svc *service.Service, keys KeyStore, log *zap.Logger) *Handler {
	return &Handler{service: svc, keys: keys, log: log.Named("api")}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps an error onto its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, errMalformedBody) {
		return http.StatusBadRequest
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// fail writes err. Internal errors are logged and never echoed to the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		respondWithError(w, code, "Internal Server Error")
		return
	}
	respondWithError(w, code, err.Error())
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
