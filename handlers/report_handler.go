package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/utils"
)

const (
	defaultReportLimit = 100
	maxReportLimit     = 1000
)

// HistoryReader lists past transactions, newest last.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]*models.HistoryEntry, error)
}

// RouteReader lists recorded routing decisions.
type RouteReader interface {
	Decisions(ctx context.Context, limit int) ([]*models.RouteDecision, error)
}

// DeadLetterReader lists events that exhausted recovery.
type DeadLetterReader interface {
	DeadLetters(ctx context.Context) ([]models.DeadLetter, error)
}

// TrailReader returns the audit trail of one request.
type TrailReader interface {
	Trail(ctx context.Context, correlationID string) ([]*models.AuditLog, error)
}

// ReportSources are the read models behind the report endpoints.
type ReportSources struct {
	History     HistoryReader
	Routes      RouteReader
	DeadLetters DeadLetterReader
	Audit       TrailReader
}

// ReportHandler serves read-only views of pipeline activity
type ReportHandler struct {
	sources ReportSources
	logger  *zap.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(sources ReportSources, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		sources: sources,
		logger:  logger,
	}
}

// parseLimit reads ?limit=, defaulting and capping it.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultReportLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, false
	}
	if limit > maxReportLimit {
		limit = maxReportLimit
	}
	return limit, true
}

// HandleHistory handles GET /api/v1/tx/history
func (h *ReportHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "limit must be a positive integer", nil)
		return
	}

	entries, err := h.sources.History.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list history", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve transaction history")
		return
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	_ = utils.WriteOK(w, entries)
}

// HandleRoutes handles GET /api/v1/routing/routes
func (h *ReportHandler) HandleRoutes(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "limit must be a positive integer", nil)
		return
	}

	decisions, err := h.sources.Routes.Decisions(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list route decisions", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve routing decisions")
		return
	}
	if decisions == nil {
		decisions = []*models.RouteDecision{}
	}
	_ = utils.WriteOK(w, decisions)
}

// HandleDeadLetters handles GET /api/v1/dead-letters
func (h *ReportHandler) HandleDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := h.sources.DeadLetters.DeadLetters(r.Context())
	if err != nil {
		h.logger.Error("failed to list dead letters", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve dead letters")
		return
	}
	if letters == nil {
		letters = []models.DeadLetter{}
	}
	_ = utils.WriteOK(w, letters)
}

// HandleAuditTrail handles GET /api/v1/audit/{correlationID}
func (h *ReportHandler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	logs, err := h.sources.Audit.Trail(r.Context(), correlationID)
	if err != nil {
		h.logger.Error("failed to read audit trail", zap.String("correlation_id", correlationID), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve audit trail")
		return
	}
	if len(logs) == 0 {
		_ = utils.WriteNotFound(w, "No audit trail for correlation id")
		return
	}
	_ = utils.WriteOK(w, logs)
}
