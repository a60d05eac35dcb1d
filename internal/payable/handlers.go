package payable

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/tenant"
)

type storage interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, orgID, id string) (Record, error)
	List(ctx context.Context, orgID, status string, overdue bool, limit, offset int) ([]Record, int64, error)
	Update(ctx context.Context, rec Record) (Record, error)
	MarkPaid(ctx context.Context, orgID, id string, at time.Time) (Record, error)
	Delete(ctx context.Context, orgID, id string) error
}

// Handler exposes the supplier payables HTTP endpoints.
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

// Input carries the writable payable fields.
type Input struct {
	Supplier    string     `json:"supplier" validate:"required"`
	Description string     `json:"description,omitempty"`
	Amount      float64    `json:"amount" validate:"gt=0"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Create handles POST /v1/payables.
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
		OrgID: orgID, Supplier: input.Supplier, Description: input.Description,
		Amount: input.Amount, DueDate: input.DueDate,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// List handles GET /v1/payables.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	page, limit := common.ParsePagination(r, 50)
	overdue := r.URL.Query().Get("overdue") == "true"
	rows, total, err := h.store.List(r.Context(), orgID, strings.TrimSpace(r.URL.Query().Get("status")), overdue, limit, (page-1)*limit)
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

// Get handles GET /v1/payables/{payableID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	rec, err := h.store.Get(r.Context(), orgID, chi.URLParam(r, "payableID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// Update handles PUT /v1/payables/{payableID}.
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
		ID: chi.URLParam(r, "payableID"), OrgID: orgID, Supplier: input.Supplier,
		Description: input.Description, Amount: input.Amount, DueDate: input.DueDate,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// MarkPaid handles POST /v1/payables/{payableID}/pay.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	rec, err := h.store.MarkPaid(r.Context(), orgID, chi.URLParam(r, "payableID"), time.Now().UTC())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// Delete handles DELETE /v1/payables/{payableID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	if err := h.store.Delete(r.Context(), orgID, chi.URLParam(r, "payableID")); err != nil {
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
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "payable not found", nil)
		return
	}
	common.WriteError(w, err)
}
