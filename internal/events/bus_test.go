package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/backend-garage/internal/events"
)

type stubStore struct {
	last events.Event
}

func (s *stubStore) InsertEvent(_ context.Context, event events.Event) (events.Event, error) {
	event.ID = uuid.NewString()
	event.OccurredAt = time.Now()
	s.last = event
	return event, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), events.TopicInvoiceCreated, "inv-1", "org-1", map[string]any{"total": 42.5})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, events.TopicInvoiceCreated, store.last.Topic)
	require.Equal(t, "org-1", store.last.OrgID)
	require.JSONEq(t, `{"total":42.5}`, string(store.last.Payload))
	require.Len(t, notifier.events, 1)
}

func TestEmitRequiresTopicAndAggregate(t *testing.T) {
	bus := &events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), "", "inv-1", "org-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicInvoicePaid, "", "org-1", nil)
	require.Error(t, err)
}

func TestEmitSurfacesNotifierFailure(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{err: errors.New("smtp down")}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), events.TopicInvoicePaid, "inv-1", "org-1", nil)
	require.Error(t, err)
	// the event is still persisted even when a notifier fails
	require.NotEmpty(t, ev.ID)
}

func TestEmitRejectsInvalidJSONPayload(t *testing.T) {
	bus := &events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), events.TopicInvoicePaid, "inv-1", "org-1", []byte("{nope"))
	require.Error(t, err)
}
