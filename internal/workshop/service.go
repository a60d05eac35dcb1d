package workshop

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/workshoplabs/backend-garage/internal/billing"
	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/events"
)

type storage interface {
	Insert(ctx context.Context, t Task) (Task, error)
	Get(ctx context.Context, orgID, id string) (Task, error)
	List(ctx context.Context, orgID string, params ListParams) ([]Task, int64, error)
	Update(ctx context.Context, t Task) (Task, error)
	Delete(ctx context.Context, orgID, id string) error
}

// Service manages workshop tasks and derives labor line candidates from
// completed work.
type Service struct {
	store  storage
	bus    *events.Bus
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  storage
	Bus    *events.Bus
	Logger zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("workshop: store is required")
	}
	return &Service{store: cfg.Store, bus: cfg.Bus, logger: cfg.Logger}, nil
}

// Input carries the writable task fields.
type Input struct {
	VehicleID   string  `json:"vehicleId" validate:"required,uuid4"`
	MechanicID  string  `json:"mechanicId,omitempty" validate:"omitempty,uuid4"`
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty" validate:"omitempty,oneof=open in_progress completed cancelled"`
	LaborRate   float64 `json:"laborRate" validate:"gte=0"`
	Hours       float64 `json:"hours" validate:"gte=0"`
}

// Create persists a new task.
func (s *Service) Create(ctx context.Context, orgID string, input Input) (Task, error) {
	return s.store.Insert(ctx, Task{
		OrgID:       orgID,
		VehicleID:   input.VehicleID,
		MechanicID:  input.MechanicID,
		Title:       input.Title,
		Description: input.Description,
		Status:      input.Status,
		LaborRate:   input.LaborRate,
		Hours:       input.Hours,
	})
}

// Get loads one task.
func (s *Service) Get(ctx context.Context, orgID, id string) (Task, error) {
	t, err := s.store.Get(ctx, orgID, id)
	return t, s.mapErr(err)
}

// List returns tasks matching the filters.
func (s *Service) List(ctx context.Context, orgID string, params ListParams) ([]Task, int64, error) {
	return s.store.List(ctx, orgID, params)
}

// Update rewrites a task; completing it stamps the completion time and emits
// a task.completed event.
func (s *Service) Update(ctx context.Context, orgID, id string, input Input) (Task, error) {
	t, err := s.store.Get(ctx, orgID, id)
	if err != nil {
		return Task{}, s.mapErr(err)
	}
	wasCompleted := t.Status == StatusCompleted

	t.MechanicID = input.MechanicID
	t.Title = input.Title
	t.Description = input.Description
	if input.Status != "" {
		t.Status = input.Status
	}
	t.LaborRate = input.LaborRate
	t.Hours = input.Hours
	if t.Status == StatusCompleted && t.CompletedAt == nil {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	if t.Status != StatusCompleted {
		t.CompletedAt = nil
	}

	t, err = s.store.Update(ctx, t)
	if err != nil {
		return Task{}, s.mapErr(err)
	}
	if !wasCompleted && t.Status == StatusCompleted && s.bus != nil {
		if _, err := s.bus.Emit(ctx, events.TopicTaskCompleted, t.ID, orgID, map[string]any{
			"title":     t.Title,
			"vehicleId": t.VehicleID,
			"hours":     t.Hours,
		}); err != nil {
			s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("event_emit_failed")
		}
	}
	return t, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	return s.mapErr(s.store.Delete(ctx, orgID, id))
}

// LaborCandidate is a suggested invoice line derived from a completed task.
type LaborCandidate struct {
	TaskID    string           `json:"taskId"`
	Title     string           `json:"title"`
	Suggested billing.LineItem `json:"suggested"`
}

// LaborCandidates lists completed tasks for a vehicle as ready-to-add labor
// lines. The suggested line carries the task reference so the reconciler can
// match it on subsequent edits.
func (s *Service) LaborCandidates(ctx context.Context, orgID, vehicleID string) ([]LaborCandidate, error) {
	tasks, _, err := s.store.List(ctx, orgID, ListParams{
		VehicleID: vehicleID,
		Status:    StatusCompleted,
		Limit:     100,
	})
	if err != nil {
		return nil, err
	}
	out := make([]LaborCandidate, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, LaborCandidate{
			TaskID: t.ID,
			Title:  t.Title,
			Suggested: billing.LineItem{
				Description:  t.Title,
				Kind:         billing.KindLabor,
				Quantity:     t.Hours,
				UnitPrice:    t.LaborRate,
				SourceTaskID: t.ID,
			},
		})
	}
	return out, nil
}

func (s *Service) mapErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return common.NewAppError("NOT_FOUND", "task not found", http.StatusNotFound, err)
	}
	return err
}
