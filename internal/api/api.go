package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sentinel/internal/clock"
	"sentinel/internal/domain"
)

// Core exposes the control-plane operations the HTTP boundary needs.
// Params: context plus operation-specific identifiers and payloads.
// Returns: domain results and taxonomy errors for status mapping.
type Core interface {
	AddScheduled(ctx context.Context, checkID string, window domain.MaintenanceWindow) (domain.MaintenanceWindow, error)
	EndScheduled(ctx context.Context, checkID, windowID string, at int64) error
	SetUnscheduled(ctx context.Context, checkID string, window domain.MaintenanceWindow) (domain.MaintenanceWindow, error)
	ClearUnscheduled(ctx context.Context, checkID string, at int64) error
	Acknowledge(ctx context.Context, checkID, summary string, durationSec int64) (domain.MaintenanceWindow, error)
	SetEnabled(ctx context.Context, checkID string, enabled bool) error
	Outages(ctx context.Context, checkID, tag string, from, to *int64) (map[string][]domain.Outage, error)
	Downtime(ctx context.Context, checkID, tag string, from, to *int64) (map[string]domain.DowntimeReport, error)
}

// Handler serves maintenance control and report queries.
// Params: core operations, clock for instant defaults, and logger.
// Returns: HTTP handler with pattern-routed endpoints.
type Handler struct {
	core   Core
	clock  clock.Clock
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates the control-plane handler and registers its routes.
// Params: core operations, clock, and optional logger.
// Returns: configured handler.
func NewHandler(core Core, clk clock.Clock, logger *slog.Logger) *Handler {
	h := &Handler{core: core, clock: clk, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /checks/{id}/maintenance/scheduled", h.addScheduled)
	h.mux.HandleFunc("DELETE /checks/{id}/maintenance/scheduled/{windowID}", h.endScheduled)
	h.mux.HandleFunc("POST /checks/{id}/maintenance/unscheduled", h.setUnscheduled)
	h.mux.HandleFunc("DELETE /checks/{id}/maintenance/unscheduled", h.clearUnscheduled)
	h.mux.HandleFunc("POST /checks/{id}/ack", h.acknowledge)
	h.mux.HandleFunc("POST /checks/{id}/enabled", h.setEnabled)
	h.mux.HandleFunc("GET /reports/outages", h.outages)
	h.mux.HandleFunc("GET /reports/downtime", h.downtime)
	return h
}

// ServeHTTP dispatches one control-plane request.
// Params: HTTP request/response writer pair.
// Returns: none.
func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	h.mux.ServeHTTP(writer, request)
}

type windowRequest struct {
	Start   int64  `json:"start_time"`
	End     int64  `json:"end_time"`
	Summary string `json:"summary"`
}

type ackRequest struct {
	Summary     string `json:"summary"`
	DurationSec int64  `json:"duration_sec"`
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) addScheduled(writer http.ResponseWriter, request *http.Request) {
	var payload windowRequest
	if !h.decodeBody(writer, request, &payload) {
		return
	}
	window, err := h.core.AddScheduled(request.Context(), request.PathValue("id"), domain.MaintenanceWindow{
		Start:   payload.Start,
		End:     payload.End,
		Summary: payload.Summary,
	})
	if err != nil {
		h.writeError(writer, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, window)
}

func (h *Handler) endScheduled(writer http.ResponseWriter, request *http.Request) {
	at, ok := h.queryInstant(writer, request, "at")
	if !ok {
		return
	}
	err := h.core.EndScheduled(request.Context(), request.PathValue("id"), request.PathValue("windowID"), at)
	if err != nil {
		h.writeError(writer, err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setUnscheduled(writer http.ResponseWriter, request *http.Request) {
	var payload windowRequest
	if !h.decodeBody(writer, request, &payload) {
		return
	}
	window, err := h.core.SetUnscheduled(request.Context(), request.PathValue("id"), domain.MaintenanceWindow{
		Start:   payload.Start,
		End:     payload.End,
		Summary: payload.Summary,
	})
	if err != nil {
		h.writeError(writer, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, window)
}

func (h *Handler) clearUnscheduled(writer http.ResponseWriter, request *http.Request) {
	at, ok := h.queryInstant(writer, request, "at")
	if !ok {
		return
	}
	if err := h.core.ClearUnscheduled(request.Context(), request.PathValue("id"), at); err != nil {
		h.writeError(writer, err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (h *Handler) acknowledge(writer http.ResponseWriter, request *http.Request) {
	var payload ackRequest
	if !h.decodeBody(writer, request, &payload) {
		return
	}
	window, err := h.core.Acknowledge(request.Context(), request.PathValue("id"), payload.Summary, payload.DurationSec)
	if err != nil {
		h.writeError(writer, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, window)
}

func (h *Handler) setEnabled(writer http.ResponseWriter, request *http.Request) {
	var payload enabledRequest
	if !h.decodeBody(writer, request, &payload) {
		return
	}
	if err := h.core.SetEnabled(request.Context(), request.PathValue("id"), payload.Enabled); err != nil {
		h.writeError(writer, err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (h *Handler) outages(writer http.ResponseWriter, request *http.Request) {
	checkID, tag, from, to, ok := h.reportQuery(writer, request)
	if !ok {
		return
	}
	result, err := h.core.Outages(request.Context(), checkID, tag, from, to)
	if err != nil {
		h.writeError(writer, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, result)
}

func (h *Handler) downtime(writer http.ResponseWriter, request *http.Request) {
	checkID, tag, from, to, ok := h.reportQuery(writer, request)
	if !ok {
		return
	}
	result, err := h.core.Downtime(request.Context(), checkID, tag, from, to)
	if err != nil {
		h.writeError(writer, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, result)
}

// reportQuery extracts the check/tag selector and optional range bounds.
// Params: request with check=, tag=, from=, to= query parameters.
// Returns: selector values, optional bounds, and false after writing an error.
func (h *Handler) reportQuery(writer http.ResponseWriter, request *http.Request) (string, string, *int64, *int64, bool) {
	query := request.URL.Query()
	checkID := query.Get("check")
	tag := query.Get("tag")
	if (checkID == "") == (tag == "") {
		h.writeError(writer, domain.NewValidationError("check", errors.New("exactly one of check= or tag= is required")))
		return "", "", nil, nil, false
	}
	from, ok := h.optionalInstant(writer, query.Get("from"), "from")
	if !ok {
		return "", "", nil, nil, false
	}
	to, ok := h.optionalInstant(writer, query.Get("to"), "to")
	if !ok {
		return "", "", nil, nil, false
	}
	return checkID, tag, from, to, true
}

// optionalInstant parses one optional instant query parameter.
// Params: raw value (unix seconds or RFC3339) and parameter name.
// Returns: parsed instant pointer (nil when absent) and false after an error.
func (h *Handler) optionalInstant(writer http.ResponseWriter, raw, name string) (*int64, bool) {
	if raw == "" {
		return nil, true
	}
	value, err := parseInstant(raw)
	if err != nil {
		h.writeError(writer, domain.NewValidationError(name, err))
		return nil, false
	}
	return &value, true
}

// queryInstant parses one instant query parameter, defaulting to now.
// Params: request and parameter name.
// Returns: unix seconds and false after writing an error.
func (h *Handler) queryInstant(writer http.ResponseWriter, request *http.Request, name string) (int64, bool) {
	raw := request.URL.Query().Get(name)
	if raw == "" {
		return h.clock.Now().Unix(), true
	}
	value, err := parseInstant(raw)
	if err != nil {
		h.writeError(writer, domain.NewValidationError(name, err))
		return 0, false
	}
	return value, true
}

// parseInstant accepts unix seconds or an RFC3339 timestamp.
// Params: raw query value.
// Returns: unix seconds or parse error.
func parseInstant(raw string) (int64, error) {
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return seconds, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, errors.New("expected unix seconds or RFC3339 timestamp")
	}
	return parsed.Unix(), nil
}

// decodeBody decodes one JSON request body.
// Params: writer for error responses, request, and destination pointer.
// Returns: false after writing a 400 on decode failure.
func (h *Handler) decodeBody(writer http.ResponseWriter, request *http.Request, dst any) bool {
	defer request.Body.Close()
	decoder := json.NewDecoder(request.Body)
	if err := decoder.Decode(dst); err != nil {
		h.writeError(writer, domain.NewValidationError("body", err))
		return false
	}
	return true
}

// writeJSON writes one JSON response with the given status.
// Params: writer, status code, and payload.
// Returns: none.
func (h *Handler) writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(payload); err != nil && h.logger != nil {
		h.logger.Warn("response encode failed", "error", err.Error())
	}
}

// writeError maps taxonomy errors onto HTTP status codes.
// Params: writer and operation error.
// Returns: JSON error body with mapped status.
func (h *Handler) writeError(writer http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError && h.logger != nil {
		h.logger.Error("control request failed", "error", err.Error())
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(map[string]string{"error": err.Error()})
}
