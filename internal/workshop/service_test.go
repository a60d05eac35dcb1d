package workshop_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/backend-garage/internal/billing"
	"github.com/workshoplabs/backend-garage/internal/events"
	"github.com/workshoplabs/backend-garage/internal/workshop"
)

type memTasks struct {
	tasks  map[string]workshop.Task
	nextID int
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[string]workshop.Task)}
}

func (m *memTasks) Insert(_ context.Context, t workshop.Task) (workshop.Task, error) {
	m.nextID++
	t.ID = time.Now().Format("task-") + string(rune('a'+m.nextID))
	if t.Status == "" {
		t.Status = workshop.StatusOpen
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memTasks) Get(_ context.Context, orgID, id string) (workshop.Task, error) {
	t, ok := m.tasks[id]
	if !ok || t.OrgID != orgID {
		return workshop.Task{}, workshop.ErrNotFound
	}
	return t, nil
}

func (m *memTasks) List(_ context.Context, orgID string, params workshop.ListParams) ([]workshop.Task, int64, error) {
	var out []workshop.Task
	for _, t := range m.tasks {
		if t.OrgID != orgID {
			continue
		}
		if params.VehicleID != "" && t.VehicleID != params.VehicleID {
			continue
		}
		if params.Status != "" && t.Status != params.Status {
			continue
		}
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

func (m *memTasks) Update(_ context.Context, t workshop.Task) (workshop.Task, error) {
	if _, ok := m.tasks[t.ID]; !ok {
		return workshop.Task{}, workshop.ErrNotFound
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memTasks) Delete(_ context.Context, orgID, id string) error {
	t, ok := m.tasks[id]
	if !ok || t.OrgID != orgID {
		return workshop.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

type topicSink struct{ topics []string }

func (s *topicSink) InsertEvent(_ context.Context, ev events.Event) (events.Event, error) {
	s.topics = append(s.topics, ev.Topic)
	ev.ID = "ev"
	return ev, nil
}

func TestCompletingTaskEmitsEvent(t *testing.T) {
	store := newMemTasks()
	sink := &topicSink{}
	svc, err := workshop.NewService(workshop.ServiceConfig{
		Store:  store,
		Bus:    &events.Bus{Store: sink},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	created, err := svc.Create(context.Background(), "org-1", workshop.Input{
		VehicleID: "44444444-4444-4444-8444-444444444444",
		Title:     "Replace timing belt",
		LaborRate: 75,
		Hours:     3,
	})
	require.NoError(t, err)
	require.Equal(t, workshop.StatusOpen, created.Status)

	updated, err := svc.Update(context.Background(), "org-1", created.ID, workshop.Input{
		VehicleID: created.VehicleID,
		Title:     created.Title,
		Status:    workshop.StatusCompleted,
		LaborRate: 75,
		Hours:     3.5,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	require.Equal(t, []string{events.TopicTaskCompleted}, sink.topics)

	// completing again must not re-emit
	_, err = svc.Update(context.Background(), "org-1", created.ID, workshop.Input{
		VehicleID: created.VehicleID,
		Title:     created.Title,
		Status:    workshop.StatusCompleted,
		LaborRate: 75,
		Hours:     3.5,
	})
	require.NoError(t, err)
	require.Len(t, sink.topics, 1)
}

func TestLaborCandidatesCarryTaskReference(t *testing.T) {
	store := newMemTasks()
	svc, err := workshop.NewService(workshop.ServiceConfig{Store: store, Logger: zerolog.Nop()})
	require.NoError(t, err)

	created, err := svc.Create(context.Background(), "org-1", workshop.Input{
		VehicleID: "44444444-4444-4444-8444-444444444444",
		Title:     "Brake service",
		LaborRate: 60,
		Hours:     2,
	})
	require.NoError(t, err)
	_, err = svc.Update(context.Background(), "org-1", created.ID, workshop.Input{
		VehicleID: created.VehicleID,
		Title:     created.Title,
		Status:    workshop.StatusCompleted,
		LaborRate: 60,
		Hours:     2,
	})
	require.NoError(t, err)

	candidates, err := svc.LaborCandidates(context.Background(), "org-1", created.VehicleID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, created.ID, candidates[0].Suggested.SourceTaskID)
	require.Equal(t, billing.KindLabor, candidates[0].Suggested.Kind)
	require.Equal(t, 120.0, candidates[0].Suggested.Amount())
}
