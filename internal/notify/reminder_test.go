package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/lock"
	"github.com/workshoplabs/backend-garage/internal/notify"
	"github.com/workshoplabs/backend-garage/internal/queue"
)

type stubReminderStore struct {
	overdue  []notify.OverdueInvoice
	reminded []string
}

func (s *stubReminderStore) ListOverdueInvoices(context.Context, time.Time, int) ([]notify.OverdueInvoice, error) {
	return s.overdue, nil
}

func (s *stubReminderStore) GetOverdueInvoice(_ context.Context, orgID, invoiceID string) (notify.OverdueInvoice, error) {
	for _, inv := range s.overdue {
		if inv.ID == invoiceID && inv.OrgID == orgID {
			return inv, nil
		}
	}
	return notify.OverdueInvoice{}, notify.ErrInvoiceNotFound
}

func (s *stubReminderStore) MarkReminded(_ context.Context, invoiceID string, _ time.Time) error {
	s.reminded = append(s.reminded, invoiceID)
	return nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestScanEnqueuesOverdueInvoices(t *testing.T) {
	client := newRedis(t)
	store := &stubReminderStore{overdue: []notify.OverdueInvoice{
		{ID: "inv-1", OrgID: "org-1", Number: "INV-001", CustomerEmail: "a@b.test", BalanceDue: 10},
		{ID: "inv-2", OrgID: "org-1", Number: "INV-002", CustomerEmail: "c@d.test", BalanceDue: 20},
	}}

	scanner := notify.Scanner{
		Store:  store,
		Queue:  queue.Enqueuer{R: client, Prefix: "garage"},
		Lock:   lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
		Logger: zerolog.Nop(),
	}

	require.NoError(t, scanner.Scan(context.Background()))

	depth, err := client.ZCard(context.Background(), "garage:queue:"+notify.ReminderTaskKind()).Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), depth)

	// second scan on the same day enqueues nothing new
	require.NoError(t, scanner.Scan(context.Background()))
	depth, err = client.ZCard(context.Background(), "garage:queue:"+notify.ReminderTaskKind()).Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), depth)
}

func TestDispatcherSendsAndMarks(t *testing.T) {
	store := &stubReminderStore{overdue: []notify.OverdueInvoice{
		{ID: "inv-1", OrgID: "org-1", Number: "INV-001", CustomerName: "Budi", CustomerEmail: "budi@garage.test", Total: 108.1, BalanceDue: 58.1, DueDate: time.Now().AddDate(0, 0, -10)},
	}}
	mail := &common.InMemoryEmail{}
	dispatcher := notify.Dispatcher{Store: store, Mail: mail, Logger: zerolog.Nop()}

	payload, _ := json.Marshal(map[string]string{"invoiceId": "inv-1", "orgId": "org-1"})
	err := dispatcher.HandleTask(context.Background(), queue.Task{Kind: notify.ReminderTaskKind(), Payload: payload})
	require.NoError(t, err)

	require.Len(t, mail.Outbox, 1)
	require.Equal(t, "budi@garage.test", mail.Outbox[0].To)
	require.Contains(t, mail.Outbox[0].Subject, "INV-001")
	require.Equal(t, []string{"inv-1"}, store.reminded)
}

func TestDispatcherSkipsSettledInvoice(t *testing.T) {
	store := &stubReminderStore{overdue: []notify.OverdueInvoice{
		{ID: "inv-1", OrgID: "org-1", Number: "INV-001", CustomerEmail: "x@y.test", BalanceDue: 0},
	}}
	mail := &common.InMemoryEmail{}
	dispatcher := notify.Dispatcher{Store: store, Mail: mail, Logger: zerolog.Nop()}

	payload, _ := json.Marshal(map[string]string{"invoiceId": "inv-1", "orgId": "org-1"})
	require.NoError(t, dispatcher.HandleTask(context.Background(), queue.Task{Payload: payload}))
	require.Empty(t, mail.Outbox)
	require.Empty(t, store.reminded)
}

func TestDispatcherIgnoresMalformedPayload(t *testing.T) {
	dispatcher := notify.Dispatcher{Store: &stubReminderStore{}, Mail: &common.InMemoryEmail{}, Logger: zerolog.Nop()}
	require.NoError(t, dispatcher.HandleTask(context.Background(), queue.Task{Payload: []byte("{broken")}))
}
