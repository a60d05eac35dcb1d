package customer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/tenant"
)

type storage interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, orgID, id string) (Record, error)
	List(ctx context.Context, orgID, search string, limit, offset int) ([]Record, int64, error)
	Update(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, orgID, id string) error
}

// Handler exposes the customer HTTP endpoints.
type Handler struct {
	store    storage
	validate *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Store    storage
	Validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validate
	if v == nil {
		v = validator.New()
	}
	return &Handler{store: cfg.Store, validate: v}
}

// Input carries the writable customer fields.
type Input struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Create handles POST /v1/customers.
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
	rec, err := h.store.Insert(r.Context(), Record{
		OrgID: orgID, Name: input.Name, Email: input.Email,
		Phone: input.Phone, Address: input.Address, Notes: input.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// List handles GET /v1/customers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	page, limit := common.ParsePagination(r, 20)
	search := strings.TrimSpace(r.URL.Query().Get("q"))
	rows, total, err := h.store.List(r.Context(), orgID, search, limit, (page-1)*limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": common.Pagination{Page: page, PerPage: limit, TotalItems: int(total)},
	})
}

// Get handles GET /v1/customers/{customerID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	rec, err := h.store.Get(r.Context(), orgID, chi.URLParam(r, "customerID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// Update handles PUT /v1/customers/{customerID}.
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
	rec, err := h.store.Update(r.Context(), Record{
		ID: chi.URLParam(r, "customerID"), OrgID: orgID, Name: input.Name,
		Email: input.Email, Phone: input.Phone, Address: input.Address, Notes: input.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// Delete handles DELETE /v1/customers/{customerID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	if err := h.store.Delete(r.Context(), orgID, chi.URLParam(r, "customerID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
		return
	}
	common.WriteError(w, err)
}
