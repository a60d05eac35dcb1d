package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/lock"
	"github.com/workshoplabs/backend-garage/internal/obs"
	"github.com/workshoplabs/backend-garage/internal/queue"
	"github.com/workshoplabs/backend-garage/internal/resilience"
)

const reminderTaskKind = "reminder:dispatch"

// ReminderTaskKind returns the queue kind used for overdue-invoice reminders.
func ReminderTaskKind() string { return reminderTaskKind }

// OverdueInvoice is the projection the reminder pipeline works with.
type OverdueInvoice struct {
	ID            string
	OrgID         string
	Number        string
	CustomerName  string
	CustomerEmail string
	Total         float64
	BalanceDue    float64
	DueDate       time.Time
}

// ReminderStore lists invoices past due and records dispatched reminders.
type ReminderStore interface {
	ListOverdueInvoices(ctx context.Context, asOf time.Time, graceDays int) ([]OverdueInvoice, error)
	GetOverdueInvoice(ctx context.Context, orgID, invoiceID string) (OverdueInvoice, error)
	MarkReminded(ctx context.Context, invoiceID string, at time.Time) error
}

type reminderPayload struct {
	InvoiceID string `json:"invoiceId"`
	OrgID     string `json:"orgId"`
}

// Scanner walks overdue invoices on a schedule and enqueues reminder tasks.
// The distributed lock keeps concurrent workers from double-scanning.
type Scanner struct {
	Store       ReminderStore
	Queue       queue.Enqueuer
	Lock        lock.Locker
	LockKey     string
	LockTTL     time.Duration
	GraceDays   int
	MaxAttempts int
	Logger      zerolog.Logger
}

// Scan performs a single pass. Invoices already reminded today are skipped via
// the queue's idempotency key.
func (s Scanner) Scan(ctx context.Context) error {
	if s.Store == nil {
		return errors.New("notify: reminder store not configured")
	}
	lockKey := s.LockKey
	if lockKey == "" {
		lockKey = "garage:reminder:scan"
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.Lock.WithLock(ctx, lockKey, ttl, func(ctx context.Context) error {
		started := time.Now()
		defer func() {
			if obs.ReminderScanDuration != nil {
				obs.ReminderScanDuration.Observe(obs.DurationMillis(time.Since(started)))
			}
		}()

		asOf := time.Now().UTC()
		overdue, err := s.Store.ListOverdueInvoices(ctx, asOf, s.GraceDays)
		if err != nil {
			return fmt.Errorf("notify: list overdue invoices: %w", err)
		}
		day := asOf.Format("2006-01-02")
		var enqueued int
		for _, inv := range overdue {
			payload, err := json.Marshal(reminderPayload{InvoiceID: inv.ID, OrgID: inv.OrgID})
			if err != nil {
				continue
			}
			task := queue.Task{
				Kind:           reminderTaskKind,
				Payload:        payload,
				IdempotencyKey: fmt.Sprintf("%s:%s", inv.ID, day),
				MaxAttempts:    s.MaxAttempts,
			}
			if err := s.Queue.Enqueue(ctx, task); err != nil {
				s.Logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("reminder_enqueue_failed")
				continue
			}
			enqueued++
		}
		s.Logger.Info().Int("overdue", len(overdue)).Int("enqueued", enqueued).Msg("reminder_scan_complete")
		return nil
	})
}

// Dispatcher delivers a single reminder email. It runs as the queue handler for
// reminder tasks; transient mail failures are surfaced so the queue retries.
type Dispatcher struct {
	Store   ReminderStore
	Mail    common.EmailSender
	Breaker *resilience.Breaker
	From    string
	Logger  zerolog.Logger
}

// HandleTask processes one reminder task.
func (d Dispatcher) HandleTask(ctx context.Context, task queue.Task) error {
	if d.Store == nil || d.Mail == nil {
		return errors.New("notify: dispatcher not configured")
	}
	var payload reminderPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		// malformed payloads are not retryable
		d.Logger.Error().Err(err).Msg("reminder_payload_invalid")
		d.count("invalid")
		return nil
	}
	inv, err := d.Store.GetOverdueInvoice(ctx, payload.OrgID, payload.InvoiceID)
	if err != nil {
		d.count("load_error")
		return fmt.Errorf("notify: load invoice %s: %w", payload.InvoiceID, err)
	}
	if inv.BalanceDue <= 0 {
		// settled between scan and dispatch
		d.count("settled")
		return nil
	}
	if strings.TrimSpace(inv.CustomerEmail) == "" {
		d.count("no_recipient")
		return nil
	}
	if d.Breaker != nil && !d.Breaker.Allow(ctx) {
		d.count("circuit_open")
		return resilience.ErrOpenCircuit
	}
	err = d.Mail.Send(inv.CustomerEmail, reminderSubject(inv), reminderBody(inv))
	if d.Breaker != nil {
		d.Breaker.Report(ctx, err == nil)
	}
	if err != nil {
		d.count("error")
		return fmt.Errorf("notify: send reminder for %s: %w", inv.ID, err)
	}
	if err := d.Store.MarkReminded(ctx, inv.ID, time.Now().UTC()); err != nil {
		d.Logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("reminder_mark_failed")
	}
	d.count("sent")
	d.Logger.Info().Str("invoice_id", inv.ID).Str("org_id", inv.OrgID).Msg("reminder_sent")
	return nil
}

func (d Dispatcher) count(result string) {
	if obs.ReminderDispatchTotal != nil {
		obs.ReminderDispatchTotal.WithLabelValues(result).Inc()
	}
}

func reminderSubject(inv OverdueInvoice) string {
	return fmt.Sprintf("Payment reminder for invoice %s", inv.Number)
}

func reminderBody(inv OverdueInvoice) string {
	name := strings.TrimSpace(inv.CustomerName)
	if name == "" {
		name = "customer"
	}
	return fmt.Sprintf(
		"Hello %s,\n\nInvoice %s issued for your vehicle remains unpaid.\nOutstanding balance: %.2f (of %.2f total).\nDue date: %s.\n\nPlease settle the balance at your earliest convenience.",
		name, inv.Number, inv.BalanceDue, inv.Total, inv.DueDate.Format("2006-01-02"),
	)
}
