package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sentinelstack/sentinel-engine/internal/models"
	"github.com/sentinelstack/sentinel-engine/internal/services"
	"github.com/sentinelstack/sentinel-engine/internal/utils"
)

// Handler carries the HTTP endpoints for the monitor service.
type Handler struct {
	logger  *slog.Logger
	monitor *services.MonitorService
}

// NewHandler constructs the HTTP handler set.
func NewHandler(logger *slog.Logger, monitor *services.MonitorService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, monitor: monitor}
}

// Routes builds the request mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/observations", h.postObservation)
	mux.HandleFunc("GET /api/v1/observations/recent", h.getRecent)
	mux.HandleFunc("GET /api/v1/sources/{id}/stats", h.getSourceStats)
	mux.HandleFunc("GET /api/v1/overview", h.getOverview)
	mux.HandleFunc("GET /api/v1/blocked", h.getBlocked)
	mux.HandleFunc("DELETE /api/v1/blocked/{id}", h.deleteBlocked)
	mux.HandleFunc("GET /api/v1/offenders", h.getOffenders)
	mux.HandleFunc("GET /healthz", h.healthz)
	return mux
}

// observationRequest is the wire shape of an inbound observation. The
// timestamp is RFC3339; when omitted the server clock is used.
type observationRequest struct {
	SourceID       string `json:"source_id"`
	Endpoint       string `json:"endpoint"`
	Timestamp      string `json:"timestamp,omitempty"`
	ResponseTimeMs int    `json:"response_time_ms"`
	StatusCode     int    `json:"status_code"`
}

func (h *Handler) postObservation(w http.ResponseWriter, r *http.Request) {
	var req observationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ts := time.Now()
	if req.Timestamp != "" {
		parsed, err := utils.ParseRFC3339(req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
		ts = parsed
	}

	decision, err := h.monitor.Observe(models.Observation{
		SourceID:       req.SourceID,
		Endpoint:       req.Endpoint,
		Timestamp:      ts,
		ResponseTimeMs: req.ResponseTimeMs,
		StatusCode:     req.StatusCode,
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidObservation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("observe failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) getRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	recent := h.monitor.Recent(limit)
	if recent == nil {
		recent = []models.AnnotatedObservation{}
	}
	writeJSON(w, http.StatusOK, recent)
}

func (h *Handler) getSourceStats(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("id")
	stats, err := h.monitor.Stats(sourceID)
	if err != nil {
		if errors.Is(err, models.ErrUnknownSource) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		h.logger.Error("stats failed", slog.String("source_id", sourceID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) getOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Overview())
}

func (h *Handler) getBlocked(w http.ResponseWriter, r *http.Request) {
	blocked := h.monitor.ListBlocked()
	if blocked == nil {
		blocked = []models.BlockEntry{}
	}
	writeJSON(w, http.StatusOK, blocked)
}

func (h *Handler) deleteBlocked(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("id")
	// Unblocking an unknown source is a no-op, not an error.
	h.monitor.Unblock(sourceID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getOffenders(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offenders := h.monitor.Offenders(limit)
	if offenders == nil {
		offenders = []models.Offender{}
	}
	writeJSON(w, http.StatusOK, offenders)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
