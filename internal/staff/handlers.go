package staff

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

	"github.com/workshoplabs/backend-garage/internal/auth"
	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/tenant"
)

type storage interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, orgID, id string) (Record, error)
	List(ctx context.Context, orgID, role string, limit, offset int) ([]Record, int64, error)
	Update(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, orgID, id string) error
	ClockIn(ctx context.Context, orgID, staffID string, at time.Time) (Attendance, error)
	ClockOut(ctx context.Context, orgID, staffID string, at time.Time) (Attendance, error)
	ListAttendance(ctx context.Context, orgID, staffID string, limit int) ([]Attendance, error)
}

// Handler exposes staff management and attendance HTTP endpoints.
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

// Input carries the writable staff fields. Password is hashed before storage
// and never returned; on update an empty password keeps the current one.
type Input struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required,oneof=admin mechanic front_desk"`
	Active   *bool  `json:"active,omitempty"`
	Password string `json:"password,omitempty" validate:"omitempty,min=8"`
}

// Create handles POST /v1/staff.
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
	if input.Password == "" {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "password is required", nil)
		return
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	rec, err := h.store.Insert(r.Context(), Record{
		OrgID: orgID, Name: input.Name, Email: strings.ToLower(strings.TrimSpace(input.Email)),
		Role: input.Role, Active: active, PasswordHash: hash,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// List handles GET /v1/staff.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	page, limit := common.ParsePagination(r, 50)
	rows, total, err := h.store.List(r.Context(), orgID, strings.TrimSpace(r.URL.Query().Get("role")), limit, (page-1)*limit)
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

// Get handles GET /v1/staff/{staffID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	rec, err := h.store.Get(r.Context(), orgID, chi.URLParam(r, "staffID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// Update handles PUT /v1/staff/{staffID}.
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
	var hash string
	if input.Password != "" {
		var err error
		hash, err = auth.HashPassword(input.Password)
		if err != nil {
			common.WriteError(w, err)
			return
		}
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	rec, err := h.store.Update(r.Context(), Record{
		ID: chi.URLParam(r, "staffID"), OrgID: orgID, Name: input.Name,
		Email: strings.ToLower(strings.TrimSpace(input.Email)), Role: input.Role,
		Active: active, PasswordHash: hash,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// Delete handles DELETE /v1/staff/{staffID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	if err := h.store.Delete(r.Context(), orgID, chi.URLParam(r, "staffID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClockIn handles POST /v1/staff/{staffID}/clock-in.
func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	entry, err := h.store.ClockIn(r.Context(), orgID, chi.URLParam(r, "staffID"), time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrAlreadyClockedIn) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "already clocked in", nil)
			return
		}
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": entry})
}

// ClockOut handles POST /v1/staff/{staffID}/clock-out.
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	entry, err := h.store.ClockOut(r.Context(), orgID, chi.URLParam(r, "staffID"), time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "no open attendance entry", nil)
			return
		}
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entry})
}

// Attendance handles GET /v1/staff/{staffID}/attendance.
func (h *Handler) Attendance(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "ORG_REQUIRED", "organization could not be resolved", nil)
		return
	}
	_, limit := common.ParsePagination(r, 50)
	entries, err := h.store.ListAttendance(r.Context(), orgID, chi.URLParam(r, "staffID"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
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
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "staff member not found", nil)
		return
	}
	common.WriteError(w, err)
}
