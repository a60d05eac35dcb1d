package invoice

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/tenant"
)

// Handler exposes the invoice HTTP endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service  *Service
	Validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validate
	if v == nil {
		v = validator.New()
	}
	return &Handler{service: cfg.Service, validate: v}
}

// Create handles POST /v1/invoices.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	var input CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
		return
	}
	detail, err := h.service.Create(r.Context(), orgID, input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": detail})
}

// List handles GET /v1/invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	page, limit := common.ParsePagination(r, 20)
	result, err := h.service.List(r.Context(), orgID, ListParams{
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customerId")),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: int(result.Total)},
	})
}

// Get handles GET /v1/invoices/{invoiceID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	detail, err := h.service.Get(r.Context(), orgID, chi.URLParam(r, "invoiceID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// Save handles PUT /v1/invoices/{invoiceID}.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	var input SaveInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
		return
	}
	detail, err := h.service.Save(r.Context(), orgID, chi.URLParam(r, "invoiceID"), input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// RecordPayment handles POST /v1/invoices/{invoiceID}/payments.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	var input PaymentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
		return
	}
	detail, err := h.service.RecordPayment(r.Context(), orgID, chi.URLParam(r, "invoiceID"), input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": detail})
}

// Delete handles DELETE /v1/invoices/{invoiceID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	if err := h.service.Delete(r.Context(), orgID, chi.URLParam(r, "invoiceID")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
