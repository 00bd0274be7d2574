package adjustments

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-retail/meridian-erp/internal/ledger"
	"github.com/meridian-retail/meridian-erp/internal/platform/httpx"
	"github.com/meridian-retail/meridian-erp/internal/shared"
)

// ReviewMetrics counts review actions for observability.
type ReviewMetrics interface {
	ObserveReview(action string, err error)
}

// Handler exposes request submission and the review workflow over HTTP.
// The acting user comes from the request context; review endpoints reject
// actors without the reviewer role.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  ReviewMetrics
}

// NewHandler constructs the adjustments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// WithMetrics attaches review counters.
func (h *Handler) WithMetrics(m ReviewMetrics) *Handler {
	h.metrics = m
	return h
}

func (h *Handler) observeReview(action string, err error) {
	if h.metrics != nil {
		h.metrics.ObserveReview(action, err)
	}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/requests", h.handleSubmit)
	r.Get("/requests", h.handleList)
	r.Get("/requests/{id}", h.handleGet)
	r.Post("/requests/{id}/approve", h.handleApprove)
	r.Post("/requests/{id}/reject", h.handleReject)
	r.Post("/batches", h.handleSubmitBatch)
	r.Get("/batches/{id}", h.handleGetBatch)
	r.Post("/batches/{id}/approve", h.handleApproveBatch)
	r.Post("/batches/{id}/reject", h.handleRejectBatch)
}

type submitRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	Color         string `json:"color"`
	Size          string `json:"size"`
	AgencyID      string `json:"agency_id" validate:"required"`
	TargetStock   int64  `json:"target_stock" validate:"min=0"`
	Reason        string `json:"reason" validate:"required"`
	Justification string `json:"justification" validate:"required"`
}

type batchItemRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	Color         string `json:"color"`
	Size          string `json:"size"`
	TargetStock   int64  `json:"target_stock" validate:"min=0"`
	Reason        string `json:"reason"`
	Justification string `json:"justification" validate:"required"`
}

type submitBatchRequest struct {
	BatchName     string             `json:"batch_name" validate:"required"`
	AgencyID      string             `json:"agency_id" validate:"required"`
	DefaultReason string             `json:"default_reason"`
	Items         []batchItemRequest `json:"items" validate:"required,min=1,dive"`
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

type requestResponse struct {
	ID                    uuid.UUID  `json:"id"`
	ProductID             string     `json:"product_id"`
	Color                 string     `json:"color,omitempty"`
	Size                  string     `json:"size,omitempty"`
	AgencyID              string     `json:"agency_id"`
	CurrentStockAtRequest int64      `json:"current_stock_at_request"`
	TargetStock           int64      `json:"target_stock"`
	Delta                 int64      `json:"delta"`
	Reason                string     `json:"reason"`
	Justification         string     `json:"justification"`
	RequestedBy           string     `json:"requested_by"`
	RequestedByName       string     `json:"requested_by_name"`
	RequestedAt           time.Time  `json:"requested_at"`
	Status                string     `json:"status"`
	ReviewerName          string     `json:"reviewer_name,omitempty"`
	ReviewedAt            *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes           string     `json:"review_notes,omitempty"`
	BatchID               string     `json:"batch_id,omitempty"`
	BatchName             string     `json:"batch_name,omitempty"`
}

func toRequestResponse(req Request) requestResponse {
	out := requestResponse{
		ID:                    req.ID,
		ProductID:             req.ProductKey.ProductID,
		Color:                 req.ProductKey.Color,
		Size:                  req.ProductKey.Size,
		AgencyID:              req.AgencyID,
		CurrentStockAtRequest: req.CurrentStockAtRequest,
		TargetStock:           req.TargetStock,
		Delta:                 req.Delta(),
		Reason:                string(req.Reason),
		Justification:         req.Justification,
		RequestedBy:           req.RequestedBy,
		RequestedByName:       req.RequestedByName,
		RequestedAt:           req.RequestedAt,
		Status:                string(req.Status),
		ReviewerName:          req.ReviewerName,
		ReviewedAt:            req.ReviewedAt,
		ReviewNotes:           req.ReviewNotes,
		BatchName:             req.BatchName,
	}
	if req.BatchID != uuid.Nil {
		out.BatchID = req.BatchID.String()
	}
	return out
}

type submitOutcomeResponse struct {
	Index     int    `json:"index"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type reviewOutcomeResponse struct {
	RequestID uuid.UUID `json:"request_id"`
	Error     string    `json:"error,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	request, err := h.service.SubmitSingle(r.Context(), actor, SubmitInput{
		ProductKey:    ledger.ProductKey{ProductID: req.ProductID, Color: req.Color, Size: req.Size},
		AgencyID:      req.AgencyID,
		TargetStock:   req.TargetStock,
		Reason:        Reason(req.Reason),
		Justification: req.Justification,
	})
	if err != nil {
		h.respondServiceError(w, "submit request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRequestResponse(request))
}

func (h *Handler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var req submitBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]BatchItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, BatchItem{
			ProductKey:    ledger.ProductKey{ProductID: item.ProductID, Color: item.Color, Size: item.Size},
			TargetStock:   item.TargetStock,
			Reason:        Reason(item.Reason),
			Justification: item.Justification,
		})
	}
	result, err := h.service.SubmitBatch(r.Context(), actor, req.BatchName, req.AgencyID, Reason(req.DefaultReason), items)
	if err != nil {
		h.respondServiceError(w, "submit batch", err)
		return
	}
	outcomes := make([]submitOutcomeResponse, 0, len(result.Outcomes))
	accepted := 0
	for _, o := range result.Outcomes {
		out := submitOutcomeResponse{Index: o.Index}
		if o.Err != nil {
			out.Error = shared.UserSafeMessage(o.Err)
		} else {
			out.RequestID = o.RequestID.String()
			accepted++
		}
		outcomes = append(outcomes, out)
	}
	// 207: some items may have been rejected while siblings succeeded.
	status := http.StatusCreated
	if accepted < len(result.Outcomes) {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, map[string]any{
		"batch_id":   result.BatchID,
		"batch_name": result.BatchName,
		"accepted":   accepted,
		"outcomes":   outcomes,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	request, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(request))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	agencyID := r.URL.Query().Get("agency_id")
	if agencyID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "agency_id is required")
		return
	}
	filter := ListFilter{
		AgencyID: agencyID,
		Status:   Status(r.URL.Query().Get("status")),
		Page:     queryInt(r, "page", 1),
		PerPage:  queryInt(r, "per_page", 20),
	}
	requests, page, err := h.service.ListRequests(r.Context(), filter)
	if err != nil {
		h.logger.Error("list requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestResponse(req))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": out, "pagination": page})
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	members, err := h.service.ListBatch(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]requestResponse, 0, len(members))
	for _, req := range members {
		out = append(out, toRequestResponse(req))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batch_id": id, "requests": out})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	reviewer := shared.ActorFromContext(r.Context())
	request, err := h.service.Approve(r.Context(), id, reviewer)
	h.observeReview("APPROVE", err)
	if err != nil {
		h.respondServiceError(w, "approve request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(request))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
	}
	reviewer := shared.ActorFromContext(r.Context())
	request, err := h.service.Reject(r.Context(), id, reviewer, req.Notes)
	h.observeReview("REJECT", err)
	if err != nil {
		h.respondServiceError(w, "reject request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(request))
}

func (h *Handler) handleApproveBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	reviewer := shared.ActorFromContext(r.Context())
	outcomes, err := h.service.ApproveBatch(r.Context(), id, reviewer)
	if err != nil {
		h.respondServiceError(w, "approve batch", err)
		return
	}
	h.respondBatchReview(w, id, outcomes)
}

func (h *Handler) handleRejectBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
	}
	reviewer := shared.ActorFromContext(r.Context())
	outcomes, err := h.service.RejectBatch(r.Context(), id, reviewer, req.Notes)
	if err != nil {
		h.respondServiceError(w, "reject batch", err)
		return
	}
	h.respondBatchReview(w, id, outcomes)
}

func (h *Handler) respondBatchReview(w http.ResponseWriter, batchID uuid.UUID, outcomes []ReviewOutcome) {
	out := make([]reviewOutcomeResponse, 0, len(outcomes))
	applied := 0
	for _, o := range outcomes {
		resp := reviewOutcomeResponse{RequestID: o.RequestID}
		if o.Err != nil {
			resp.Error = shared.UserSafeMessage(o.Err)
		} else {
			applied++
		}
		out = append(out, resp)
	}
	status := http.StatusOK
	if applied < len(outcomes) {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, map[string]any{
		"batch_id": batchID,
		"applied":  applied,
		"outcomes": out,
	})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	if !shared.IsValidation(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
