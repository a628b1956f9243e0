package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/trafficwatch/backend/internal/metrics"
	"github.com/trafficwatch/backend/internal/traffic"
)

const DefaultMaxBodyBytes = 64 << 10

// Sink records an accepted event and returns the counters as of that record.
type Sink interface {
	Submit(traffic.Event) traffic.Stats
}

// Ack acknowledges an accepted submission.
type Ack struct {
	Status           string `json:"status"`
	TotalEvents      uint64 `json:"totalEvents"`
	SuspiciousEvents uint64 `json:"suspiciousEvents"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type Endpoint struct {
	sink         Sink
	maxBodyBytes int64
	metrics      *metrics.Metrics
}

func NewEndpoint(sink Sink, maxBodyBytes int64, m *metrics.Metrics) *Endpoint {
	if maxBodyBytes < 1 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Endpoint{sink: sink, maxBodyBytes: maxBodyBytes, metrics: m}
}

// Submit validates raw and, when it is well formed, records the event
// synchronously. Rejected submissions leave the counters untouched.
func (e *Endpoint) Submit(raw []byte) (Ack, error) {
	ev, err := Parse(raw)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			e.metrics.ObserveRejected(string(ve.Reason))
		}
		return Ack{}, err
	}
	st := e.sink.Submit(ev)
	return Ack{
		Status:           "ok",
		TotalEvents:      st.TotalEvents,
		SuspiciousEvents: st.SuspiciousEvents,
	}, nil
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			e.metrics.ObserveRejected("body_too_large")
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:   "body_too_large",
				Message: "request body exceeds the size limit",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable_body", Message: err.Error()})
		return
	}

	ack, err := e.Submit(body)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			log.Debug().Str("reason", string(ve.Reason)).Str("field", ve.Field).Msg("submission rejected")
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:   string(ve.Reason),
				Field:   ve.Field,
				Message: ve.Detail,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode error")
	}
}
