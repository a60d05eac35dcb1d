package invoice

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/workshoplabs/backend-garage/internal/billing"
	"github.com/workshoplabs/backend-garage/internal/common"
	"github.com/workshoplabs/backend-garage/internal/events"
	"github.com/workshoplabs/backend-garage/internal/obs"
)

// Invoice payment statuses. The status column is a cached projection of the
// derived balance; the balance itself is always recomputed from line items and
// payments.
const (
	StatusUnpaid  = "unpaid"
	StatusPartial = "partial"
	StatusPaid    = "paid"
)

type storage interface {
	billing.ItemStore
	InsertInvoice(ctx context.Context, rec Record) (Record, error)
	GetInvoice(ctx context.Context, orgID, id string) (Record, error)
	ListInvoices(ctx context.Context, orgID string, params ListParams) ([]Record, int64, error)
	UpdateInvoiceHeader(ctx context.Context, rec Record) (Record, error)
	UpdateStatus(ctx context.Context, orgID, id, status string) error
	DeleteInvoice(ctx context.Context, orgID, id string) error
	ListItems(ctx context.Context, invoiceID string) ([]billing.LineItem, error)
	ListPayments(ctx context.Context, invoiceID string) ([]billing.Payment, error)
	InsertPayment(ctx context.Context, payment billing.Payment) (billing.Payment, error)
	NextNumber(ctx context.Context, orgID string) (string, error)
}

// Service orchestrates invoice editing: header persistence, line-item
// reconciliation and payment recording.
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
		return nil, errors.New("invoice: store is required")
	}
	return &Service{store: cfg.Store, bus: cfg.Bus, logger: cfg.Logger}, nil
}

// ItemInput is a desired line item as submitted by the client.
type ItemInput struct {
	Description  string  `json:"description" validate:"required"`
	Kind         string  `json:"kind" validate:"required,oneof=labor parts"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	SourcePartID string  `json:"sourcePartId,omitempty" validate:"omitempty,uuid4"`
	SourceTaskID string  `json:"sourceTaskId,omitempty" validate:"omitempty,uuid4"`
}

// CreateInput creates a new invoice with an initial item set.
type CreateInput struct {
	CustomerID     string      `json:"customerId" validate:"required,uuid4"`
	VehicleID      string      `json:"vehicleId,omitempty" validate:"omitempty,uuid4"`
	DueDate        time.Time   `json:"dueDate" validate:"required"`
	DiscountType   string      `json:"discountType" validate:"omitempty,oneof=none percentage fixed"`
	DiscountValue  float64     `json:"discountValue"`
	TaxRatePercent float64     `json:"taxRatePercent" validate:"gte=0"`
	Notes          string      `json:"notes,omitempty"`
	Items          []ItemInput `json:"items" validate:"dive"`
}

// SaveInput replaces the header fields and the full desired item set of an
// existing invoice. The stored items are reconciled against Items rather than
// rewritten wholesale.
type SaveInput struct {
	DueDate        time.Time   `json:"dueDate" validate:"required"`
	DiscountType   string      `json:"discountType" validate:"omitempty,oneof=none percentage fixed"`
	DiscountValue  float64     `json:"discountValue"`
	TaxRatePercent float64     `json:"taxRatePercent" validate:"gte=0"`
	Notes          string      `json:"notes,omitempty"`
	Items          []ItemInput `json:"items" validate:"dive"`
}

// PaymentInput records money received against an invoice.
type PaymentInput struct {
	Amount float64   `json:"amount" validate:"required,gt=0"`
	Method string    `json:"method" validate:"required,oneof=cash card transfer other"`
	Date   time.Time `json:"date,omitempty"`
	Notes  string    `json:"notes,omitempty"`
}

// Detail is the full invoice payload returned by read and write operations.
type Detail struct {
	Record
	Items     []billing.LineItem `json:"items"`
	Payments  []billing.Payment  `json:"payments"`
	Breakdown billing.Breakdown  `json:"breakdown"`
}

// Create persists a new invoice and its initial line items.
func (s *Service) Create(ctx context.Context, orgID string, input CreateInput) (Detail, error) {
	number, err := s.store.NextNumber(ctx, orgID)
	if err != nil {
		return Detail{}, err
	}
	rec, err := s.store.InsertInvoice(ctx, Record{
		OrgID:          orgID,
		Number:         number,
		CustomerID:     input.CustomerID,
		VehicleID:      input.VehicleID,
		Status:         StatusUnpaid,
		DiscountType:   normalizeDiscountType(input.DiscountType),
		DiscountValue:  input.DiscountValue,
		TaxRatePercent: input.TaxRatePercent,
		DueDate:        input.DueDate,
		Notes:          input.Notes,
	})
	if err != nil {
		return Detail{}, err
	}

	diff := billing.DiffItems(nil, desiredItems(input.Items))
	if err := s.applyDiff(ctx, rec.ID, orgID, diff); err != nil {
		return Detail{}, err
	}

	detail, err := s.assemble(ctx, rec)
	if err != nil {
		return Detail{}, err
	}
	s.emit(ctx, events.TopicInvoiceCreated, rec.ID, orgID, map[string]any{
		"invoiceNumber": rec.Number,
		"total":         detail.Breakdown.Total,
	})
	return detail, nil
}

// Get returns the invoice with its derived breakdown.
func (s *Service) Get(ctx context.Context, orgID, id string) (Detail, error) {
	rec, err := s.store.GetInvoice(ctx, orgID, id)
	if err != nil {
		return Detail{}, s.mapStoreErr(err)
	}
	return s.assemble(ctx, rec)
}

// ListResult pages invoice headers.
type ListResult struct {
	Items []Record
	Total int64
	Page  int
	Limit int
}

// List returns a page of invoice headers for the org.
func (s *Service) List(ctx context.Context, orgID string, params ListParams) (ListResult, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}
	if params.Page <= 0 {
		params.Page = 1
	}
	items, total, err := s.store.ListInvoices(ctx, orgID, params)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// Save updates the invoice header and reconciles the stored line items against
// the submitted set.
func (s *Service) Save(ctx context.Context, orgID, id string, input SaveInput) (Detail, error) {
	rec, err := s.store.GetInvoice(ctx, orgID, id)
	if err != nil {
		return Detail{}, s.mapStoreErr(err)
	}

	rec.DiscountType = normalizeDiscountType(input.DiscountType)
	rec.DiscountValue = input.DiscountValue
	rec.TaxRatePercent = input.TaxRatePercent
	rec.DueDate = input.DueDate
	rec.Notes = input.Notes
	rec, err = s.store.UpdateInvoiceHeader(ctx, rec)
	if err != nil {
		return Detail{}, s.mapStoreErr(err)
	}

	existing, err := s.store.ListItems(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	diff := billing.DiffItems(existing, desiredItems(input.Items))
	if err := s.applyDiff(ctx, id, orgID, diff); err != nil {
		return Detail{}, err
	}

	detail, err := s.assemble(ctx, rec)
	if err != nil {
		return Detail{}, err
	}
	s.emit(ctx, events.TopicInvoiceItemsReconciled, id, orgID, map[string]any{
		"invoiceNumber": rec.Number,
		"added":         len(diff.ToAdd),
		"updated":       len(diff.ToUpdate),
		"deleted":       len(diff.ToDeleteIDs),
	})
	return detail, nil
}

// RecordPayment appends a payment and refreshes the cached status.
func (s *Service) RecordPayment(ctx context.Context, orgID, id string, input PaymentInput) (Detail, error) {
	rec, err := s.store.GetInvoice(ctx, orgID, id)
	if err != nil {
		return Detail{}, s.mapStoreErr(err)
	}
	wasPaid := rec.Status == StatusPaid

	if _, err := s.store.InsertPayment(ctx, billing.Payment{
		InvoiceID: id,
		Date:      input.Date,
		Amount:    input.Amount,
		Method:    input.Method,
		Notes:     input.Notes,
	}); err != nil {
		return Detail{}, err
	}
	if obs.PaymentRecordedTotal != nil {
		obs.PaymentRecordedTotal.WithLabelValues(input.Method).Inc()
	}

	detail, err := s.assemble(ctx, rec)
	if err != nil {
		return Detail{}, err
	}
	s.emit(ctx, events.TopicPaymentRecorded, id, orgID, map[string]any{
		"invoiceNumber": rec.Number,
		"amount":        input.Amount,
		"method":        input.Method,
	})
	if !wasPaid && detail.Status == StatusPaid {
		s.emit(ctx, events.TopicInvoicePaid, id, orgID, map[string]any{
			"invoiceNumber": rec.Number,
			"total":         detail.Breakdown.Total,
		})
	}
	return detail, nil
}

// Delete removes an invoice and its dependents.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	return s.mapStoreErr(s.store.DeleteInvoice(ctx, orgID, id))
}

// applyDiff runs the reconciler and translates its failure mode into an API
// error that names the failed phase and the still-pending work.
func (s *Service) applyDiff(ctx context.Context, invoiceID, orgID string, diff billing.ItemDiff) error {
	if obs.InvoiceReconcileOps != nil {
		obs.InvoiceReconcileOps.WithLabelValues("insert").Observe(float64(len(diff.ToAdd)))
		obs.InvoiceReconcileOps.WithLabelValues("update").Observe(float64(len(diff.ToUpdate)))
		obs.InvoiceReconcileOps.WithLabelValues("delete").Observe(float64(len(diff.ToDeleteIDs)))
	}
	err := billing.ApplyDiff(ctx, invoiceID, orgID, diff, s.store)
	if err == nil {
		s.countReconcile("ok", "none")
		return nil
	}
	var recErr *billing.ReconciliationError
	if errors.As(err, &recErr) {
		s.countReconcile("error", string(recErr.Phase))
		s.logger.Error().Err(recErr.Err).
			Str("invoice_id", invoiceID).
			Str("phase", string(recErr.Phase)).
			Int("pending_add", len(recErr.Pending.ToAdd)).
			Int("pending_update", len(recErr.Pending.ToUpdate)).
			Int("pending_delete", len(recErr.Pending.ToDeleteIDs)).
			Msg("invoice_reconcile_failed")
		appErr := common.NewAppError("RECONCILE_FAILED", "line item reconciliation failed", http.StatusInternalServerError, recErr)
		appErr.Details = map[string]any{
			"phase":   string(recErr.Phase),
			"pending": recErr.Pending,
		}
		return appErr
	}
	s.countReconcile("error", "unknown")
	return err
}

func (s *Service) countReconcile(result, phase string) {
	if obs.InvoiceReconcileTotal != nil {
		obs.InvoiceReconcileTotal.WithLabelValues(result, phase).Inc()
	}
}

// assemble loads items and payments, computes the breakdown, and refreshes the
// cached status when it drifted.
func (s *Service) assemble(ctx context.Context, rec Record) (Detail, error) {
	items, err := s.store.ListItems(ctx, rec.ID)
	if err != nil {
		return Detail{}, err
	}
	payments, err := s.store.ListPayments(ctx, rec.ID)
	if err != nil {
		return Detail{}, err
	}
	breakdown := billing.ComputeBreakdown(billing.Invoice{
		ID:    rec.ID,
		Items: items,
		Discount: billing.DiscountSpec{
			Type:  billing.DiscountType(rec.DiscountType),
			Value: rec.DiscountValue,
		},
		TaxRatePercent: rec.TaxRatePercent,
		Payments:       payments,
	})
	status := statusFor(breakdown)
	if status != rec.Status {
		if err := s.store.UpdateStatus(ctx, rec.OrgID, rec.ID, status); err != nil {
			return Detail{}, err
		}
		rec.Status = status
	}
	if items == nil {
		items = []billing.LineItem{}
	}
	if payments == nil {
		payments = []billing.Payment{}
	}
	return Detail{Record: rec, Items: items, Payments: payments, Breakdown: breakdown}, nil
}

func (s *Service) emit(ctx context.Context, topic, aggregateID, orgID string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Emit(ctx, topic, aggregateID, orgID, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("event_emit_failed")
	}
}

func (s *Service) mapStoreErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return common.NewAppError("NOT_FOUND", "invoice not found", http.StatusNotFound, err)
	}
	return err
}

func desiredItems(inputs []ItemInput) []billing.LineItem {
	out := make([]billing.LineItem, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, billing.LineItem{
			Description:  strings.TrimSpace(in.Description),
			Kind:         billing.ItemKind(in.Kind),
			Quantity:     in.Quantity,
			UnitPrice:    in.UnitPrice,
			SourcePartID: in.SourcePartID,
			SourceTaskID: in.SourceTaskID,
		})
	}
	return out
}

func normalizeDiscountType(raw string) string {
	switch billing.DiscountType(raw) {
	case billing.DiscountPercentage, billing.DiscountFixed:
		return raw
	default:
		return string(billing.DiscountNone)
	}
}

func statusFor(b billing.Breakdown) string {
	switch {
	case b.Total > 0 && b.BalanceDue <= 0:
		return StatusPaid
	case b.PaidAmount > 0:
		return StatusPartial
	default:
		return StatusUnpaid
	}
}
