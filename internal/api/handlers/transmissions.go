// Package handlers provides HTTP handlers for the ledger API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/api/middleware"
	"github.com/drfirst/go-iis/internal/domain/transmission"
)

// MaxListLimit caps the limit query parameter
const MaxListLimit = 1000

// TransmissionHandler serves read-only views of the ledger
type TransmissionHandler struct {
	ledger *transmission.Ledger
	logger *zap.Logger
}

// NewTransmissionHandler creates a new handler
func NewTransmissionHandler(ledger *transmission.Ledger, logger *zap.Logger) *TransmissionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransmissionHandler{ledger: ledger, logger: logger}
}

// Routes returns the handler routes
func (h *TransmissionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/summary", h.Summary)
	r.Get("/{type}/{source}/{key}", h.Find)
	return r
}

// ListResponse is the response for a ledger listing
type ListResponse struct {
	Transmissions []*transmission.Record `json:"transmissions"`
	Count         int                    `json:"count"`
}

// List handles GET /transmissions
func (h *TransmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("transmission-handler").Start(r.Context(), "list_transmissions")
	defer span.End()

	f, err := parseFilter(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("msg_type", string(f.Type)), attribute.Int("limit", f.Limit))

	recs, err := h.ledger.List(ctx, f)
	if err != nil {
		h.logger.Error("list failed", zap.Error(err), zap.String("request_id", middleware.GetRequestID(ctx)))
		jsonError(w, "failed to list transmissions", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*transmission.Record{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Transmissions: recs, Count: len(recs)})
}

// Summary handles GET /transmissions/summary
func (h *TransmissionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows, err := h.ledger.Summary(ctx)
	if err != nil {
		h.logger.Error("summary failed", zap.Error(err), zap.String("request_id", middleware.GetRequestID(ctx)))
		jsonError(w, "failed to summarize transmissions", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []transmission.SummaryRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": rows})
}

// Find handles GET /transmissions/{type}/{source}/{key}
func (h *TransmissionHandler) Find(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, err := parseType(chi.URLParam(r, "type"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	recs, err := h.ledger.Find(ctx, t, chi.URLParam(r, "source"), chi.URLParam(r, "key"))
	if errors.Is(err, transmission.ErrNotFound) {
		jsonError(w, "transmission not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("find failed", zap.Error(err), zap.String("request_id", middleware.GetRequestID(ctx)))
		jsonError(w, "failed to find transmission", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Transmissions: recs, Count: len(recs)})
}

func parseFilter(r *http.Request) (transmission.Filter, error) {
	q := r.URL.Query()
	f := transmission.Filter{
		Source: q.Get("source"),
		Key:    q.Get("key"),
		Limit:  transmission.DefaultListLimit,
	}

	if v := q.Get("type"); v != "" {
		t, err := parseType(v)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	// result= selects rows with an empty result
	if q.Has("result") {
		result := q.Get("result")
		f.Result = &result
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxListLimit {
			return f, errors.New("limit must be between 1 and " + strconv.Itoa(MaxListLimit))
		}
		f.Limit = n
	}
	return f, nil
}

func parseType(v string) (transmission.MessageType, error) {
	switch t := transmission.MessageType(strings.ToUpper(v)); t {
	case transmission.TypeVXU, transmission.TypeQBP, transmission.TypeORD:
		return t, nil
	}
	return "", errors.New("type must be one of VXU, QBP, ORD")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
