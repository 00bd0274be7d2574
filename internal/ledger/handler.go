package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian-erp/internal/platform/httpx"
	"github.com/meridian-retail/meridian-erp/internal/shared"
)

// AppendMetrics counts append attempts for observability.
type AppendMetrics interface {
	ObserveLedgerAppend(txType string, err error)
}

// Handler exposes the ledger append sink and history reads over HTTP.
// Upstream producers (sales, receipt sync, returns) POST well-formed
// entries; the handler owns no business rules.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  AppendMetrics
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// WithMetrics attaches append counters.
func (h *Handler) WithMetrics(m AppendMetrics) *Handler {
	h.metrics = m
	return h
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.handleAppend)
	r.Get("/entries", h.handleRecent)
}

type appendEntryRequest struct {
	ProductID     string     `json:"product_id" validate:"required"`
	Color         string     `json:"color"`
	Size          string     `json:"size"`
	AgencyID      string     `json:"agency_id" validate:"required"`
	Type          string     `json:"transaction_type" validate:"required"`
	Quantity      int64      `json:"quantity" validate:"required"`
	ReferenceName string     `json:"reference_name"`
	SourceSystem  string     `json:"source_system" validate:"required"`
	SourceRef     string     `json:"source_ref"`
	OccurredAt    *time.Time `json:"occurred_at"`
}

type entryResponse struct {
	ID            int64     `json:"id"`
	ProductID     string    `json:"product_id"`
	Color         string    `json:"color,omitempty"`
	Size          string    `json:"size,omitempty"`
	AgencyID      string    `json:"agency_id"`
	Type          string    `json:"transaction_type"`
	Quantity      int64     `json:"quantity"`
	ReferenceName string    `json:"reference_name,omitempty"`
	SourceSystem  string    `json:"source_system,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ID:            e.ID,
		ProductID:     e.ProductKey.ProductID,
		Color:         e.ProductKey.Color,
		Size:          e.ProductKey.Size,
		AgencyID:      e.AgencyID,
		Type:          string(e.Type),
		Quantity:      e.Quantity,
		ReferenceName: e.ReferenceName,
		SourceSystem:  e.SourceSystem,
		OccurredAt:    e.OccurredAt,
	}
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if !actor.Known() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "actor identity required")
		return
	}
	var req appendEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := AppendInput{
		ProductKey:    ProductKey{ProductID: req.ProductID, Color: req.Color, Size: req.Size},
		AgencyID:      req.AgencyID,
		Type:          TransactionType(req.Type),
		Quantity:      req.Quantity,
		ReferenceName: req.ReferenceName,
		SourceSystem:  req.SourceSystem,
		SourceRef:     req.SourceRef,
		ActorID:       actor.UserID,
	}
	if req.OccurredAt != nil {
		input.OccurredAt = *req.OccurredAt
	}
	entry, err := h.service.Append(r.Context(), input)
	if h.metrics != nil {
		h.metrics.ObserveLedgerAppend(req.Type, err)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrZeroQuantity), errors.Is(err, ErrUnknownType), errors.Is(err, ErrMissingIdentity):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, shared.ErrIdempotencyConflict):
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
		default:
			h.logger.Error("ledger append", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	agencyID := r.URL.Query().Get("agency_id")
	if agencyID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "agency_id is required")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := h.service.RecentByAgency(r.Context(), agencyID, limit)
	if err != nil {
		h.logger.Error("ledger recent", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}
