package reconcile

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-retail/meridian-erp/internal/platform/httpx"
)

// Handler exposes the reconciliation reports over HTTP. Everything here is
// read-only.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reconcile handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary/{agencyID}", h.handleSummary)
	r.Get("/summary/{agencyID}/export", h.handleSummaryCSV)
	r.Get("/history/{agencyID}", h.handleHistory)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	agencyID := chi.URLParam(r, "agencyID")
	summary, err := h.service.SummaryByAgency(r.Context(), agencyID)
	if err != nil {
		h.logger.Error("reconcile summary", slog.String("agency_id", agencyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleSummaryCSV(w http.ResponseWriter, r *http.Request) {
	agencyID := chi.URLParam(r, "agencyID")
	summary, err := h.service.SummaryByAgency(r.Context(), agencyID)
	if err != nil {
		h.logger.Error("reconcile export", slog.String("agency_id", agencyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=reconciliation-%s.csv", agencyID))
	if err := WriteSummaryCSV(w, summary); err != nil {
		h.logger.Error("reconcile export write", slog.Any("error", err))
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	agencyID := chi.URLParam(r, "agencyID")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := h.service.History(r.Context(), agencyID, limit)
	if err != nil {
		h.logger.Error("reconcile history", slog.String("agency_id", agencyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"agency_id": agencyID, "entries": entries})
}
