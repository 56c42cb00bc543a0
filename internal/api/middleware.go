package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/crashledger/internal/logging"
	"github.com/punchamoorthee/crashledger/internal/store"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crashledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

const (
	requestIDHeader   = "X-Request-Id"
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replay"
)

// statusRecorder remembers the status and, when capture is set, the body.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	capture bool
	body    bytes.Buffer
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	if rec.capture {
		rec.body.Write(b)
	}
	return rec.ResponseWriter.Write(b)
}

func endpointOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// observe assigns a request id, attaches a request logger to the context,
// records the per-endpoint metrics and logs the outcome.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := endpointOf(r)

		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		log := h.log.With(zap.String("request_id", reqID))
		r = r.WithContext(logging.WithContext(r.Context(), log))

		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		timer.ObserveDuration()

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
		}
		if rec.status >= http.StatusInternalServerError {
			log.Error("request", fields...)
		} else {
			log.Info("request", fields...)
		}
	})
}

// idempotent makes a create endpoint replay-safe. Every request must carry
// an Idempotency-Key. The first response is stored with the request hash; a
// replay with the same body gets the stored response back without running
// the handler.
func (h *Handler) idempotent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			respondWithError(w, http.StatusBadRequest, "Missing Idempotency-Key")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Stream read error")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body))

		hash := sha256.New()
		hash.Write([]byte(r.Method + " " + r.URL.Path + "\n"))
		hash.Write(body)
		reqHash := hex.EncodeToString(hash.Sum(nil))

		existing, err := h.keys.ReserveKey(r.Context(), key, reqHash)
		switch {
		case errors.Is(err, store.ErrIdempotencyConflict):
			respondWithError(w, http.StatusConflict, "Request processing in progress")
			return
		case errors.Is(err, store.ErrIdempotencyMismatch):
			respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
			return
		case err != nil:
			h.fail(w, r, err)
			return
		}

		if existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(replayHeader, "true")
			w.WriteHeader(existing.ResponseStatus)
			w.Write(existing.ResponseBody)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, capture: true}
		next(rec, r)

		// Transient outcomes free the key so the client can retry.
		if rec.status >= http.StatusInternalServerError || rec.status == http.StatusConflict {
			if err := h.keys.ReleaseKey(r.Context(), key); err != nil {
				logging.FromContext(r.Context()).Warn("idempotency key release failed", zap.String("key", key), zap.Error(err))
			}
			return
		}
		if err := h.keys.CompleteKey(r.Context(), key, rec.status, rec.body.Bytes()); err != nil {
			logging.FromContext(r.Context()).Error("idempotency key completion failed", zap.String("key", key), zap.Error(err))
		}
	}
}
