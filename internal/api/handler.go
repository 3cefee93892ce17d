// Package api is the HTTP boundary of the operations console: the alert
// feed read, the operator write operations and the health/metrics surface.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"opsconsole/internal/errs"
	"opsconsole/internal/feed"
	"opsconsole/internal/schema"
)

const maxPayload = 1 * 1024 * 1024

// Handler serves the console API over the alert feed facade.
type Handler struct {
	feed      *feed.Facade
	logger    *slog.Logger
	startTime time.Time
}

// NewHandler creates the console API handler.
func NewHandler(f *feed.Facade, logger *slog.Logger) *Handler {
	return &Handler{
		feed:      f,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}
}

// AlertRef identifies one alert by its vendor natural key.
type AlertRef struct {
	Source   schema.Source `json:"source"`
	SourceID string        `json:"source_id"`
}

func toKeys(refs []AlertRef) []schema.SourceKey {
	keys := make([]schema.SourceKey, len(refs))
	for i, r := range refs {
		keys[i] = schema.SourceKey{Source: r.Source, SourceID: r.SourceID}
	}
	return keys
}

// HandleListAlerts handles GET /v1/alerts.
func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := feed.Filter{}
	q := r.URL.Query()
	if v := q.Get("min_severity"); v != "" {
		filter.MinSeverity = schema.ParseSeverity(v)
	}
	if q.Get("include_closed") == "true" {
		filter.IncludeClosed = true
	}
	for _, s := range q["source"] {
		filter.Sources = append(filter.Sources, schema.Source(s))
	}

	result, err := h.feed.List(r.Context(), filter)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type ownershipRequest struct {
	Alerts []AlertRef `json:"alerts"`
	Actor  string     `json:"actor"`
}

// HandleTakeOwnership handles POST /v1/alerts/ownership.
func (h *Handler) HandleTakeOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.feed.TakeOwnership(r.Context(), toKeys(req.Alerts), req.Actor); err != nil {
		h.respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleReleaseOwnership handles DELETE /v1/alerts/ownership.
func (h *Handler) HandleReleaseOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.feed.ReleaseOwnership(r.Context(), toKeys(req.Alerts), req.Actor); err != nil {
		h.respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

type closeRequest struct {
	Alerts []AlertRef `json:"alerts"`
	Actor  string     `json:"actor"`
	Note   string     `json:"note"`
}

// HandleClose handles POST /v1/alerts/close.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.feed.Close(r.Context(), toKeys(req.Alerts), req.Actor, req.Note); err != nil {
		h.respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

type reopenRequest struct {
	Alert AlertRef `json:"alert"`
	Actor string   `json:"actor"`
}

// HandleReopen handles POST /v1/alerts/reopen.
func (h *Handler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	var req reopenRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := schema.SourceKey{Source: req.Alert.Source, SourceID: req.Alert.SourceID}
	if err := h.feed.Reopen(r.Context(), key, req.Actor); err != nil {
		h.respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

type linkTicketRequest struct {
	Alerts   []AlertRef `json:"alerts"`
	TicketID string     `json:"ticket_id"`
	Summary  string     `json:"summary"`
	Actor    string     `json:"actor"`
}

// HandleLinkTicket handles POST /v1/alerts/ticket.
func (h *Handler) HandleLinkTicket(w http.ResponseWriter, r *http.Request) {
	var req linkTicketRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.feed.LinkTicket(r.Context(), toKeys(req.Alerts), req.TicketID, req.Summary, req.Actor); err != nil {
		h.respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

type createTicketRequest struct {
	Alerts    []AlertRef `json:"alerts"`
	CompanyID string     `json:"company_id"`
	Actor     string     `json:"actor"`
}

// HandleCreateTicket handles POST /v1/alerts/ticket/create.
func (h *Handler) HandleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if !h.decode(w, r, &req) {
		return
	}
	ticket, err := h.feed.CreateAndLinkTicket(r.Context(), toKeys(req.Alerts), req.CompanyID, req.Actor)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "ticket": ticket})
}

type mitigateRequest struct {
	Alert  AlertRef `json:"alert"`
	Action string   `json:"action"`
	Actor  string   `json:"actor"`
}

// HandleMitigate handles POST /v1/alerts/mitigate.
func (h *Handler) HandleMitigate(w http.ResponseWriter, r *http.Request) {
	var req mitigateRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := schema.SourceKey{Source: req.Alert.Source, SourceID: req.Alert.SourceID}
	if err := h.feed.DispatchMitigation(r.Context(), key, req.Action, req.Actor); err != nil {
		h.respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleAlertTickets handles GET /v1/alerts/{id}/tickets.
func (h *Handler) HandleAlertTickets(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("id")
	match, err := h.feed.TicketsFor(r.Context(), alertID)
	if err != nil {
		h.respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, match)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayload)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// respondMappedError translates the error taxonomy to HTTP status codes.
func (h *Handler) respondMappedError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errs.IsConflict(err):
		respondError(w, http.StatusConflict, err.Error())
	case errs.IsMitigationDispatch(err):
		respondError(w, http.StatusBadGateway, err.Error())
	case errs.IsNotConfigured(err):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{
		"success":    false,
		"error":      message,
		"request_id": uuid.New().String(),
	})
}
