package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists domain events in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// InsertEvent writes the event and returns it with its assigned id and timestamp.
func (s PGStore) InsertEvent(ctx context.Context, event Event) (Event, error) {
	event.ID = uuid.NewString()
	event.OccurredAt = time.Now().UTC()
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO domain_events (id, topic, aggregate_id, org_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, event.Topic, event.AggregateID, event.OrgID, event.Payload, event.OccurredAt)
	if err != nil {
		return Event{}, err
	}
	return event, nil
}
