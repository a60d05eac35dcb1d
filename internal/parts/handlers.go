package parts

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

// Handler exposes the parts catalog HTTP endpoints.
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

// Create handles POST /v1/parts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	input, ok := h.decode(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Create(r.Context(), orgID, input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// List handles GET /v1/parts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	page, limit := common.ParsePagination(r, 50)
	result, err := h.service.List(r.Context(), orgID, strings.TrimSpace(r.URL.Query().Get("q")), limit, (page-1)*limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: page, PerPage: limit, TotalItems: int(result.Total)},
	})
}

// Get handles GET /v1/parts/{partID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	rec, err := h.service.Get(r.Context(), orgID, chi.URLParam(r, "partID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// Update handles PUT /v1/parts/{partID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	input, ok := h.decode(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Update(r.Context(), orgID, chi.URLParam(r, "partID"), input)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// Delete handles DELETE /v1/parts/{partID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	if err := h.service.Delete(r.Context(), orgID, chi.URLParam(r, "partID")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LowStock handles GET /v1/parts/low-stock.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	threshold := 5.0
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 {
			threshold = parsed
		}
	}
	items, err := h.service.LowStock(r.Context(), orgID, threshold, 50)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// LineCandidates handles GET /v1/parts/candidates.
func (h *Handler) LineCandidates(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	candidates, err := h.service.LineCandidates(r.Context(), orgID, strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": candidates})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var input Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return Input{}, false
	}
	if err := h.validate.Struct(input); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
		return Input{}, false
	}
	return input, true
}
