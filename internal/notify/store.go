package notify

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workshoplabs/backend-garage/internal/billing"
)

// ErrInvoiceNotFound is returned when a reminder references a missing invoice.
var ErrInvoiceNotFound = errors.New("notify: invoice not found")

// PGStore implements ReminderStore against Postgres. Balances are derived from
// line items and payments with the same arithmetic the invoice API uses.
type PGStore struct {
	Pool *pgxpool.Pool
}

type overdueCandidate struct {
	inv            OverdueInvoice
	discount       billing.DiscountSpec
	taxRatePercent float64
}

// ListOverdueInvoices returns unpaid invoices whose due date is more than
// graceDays in the past and which have not been reminded today.
func (s PGStore) ListOverdueInvoices(ctx context.Context, asOf time.Time, graceDays int) ([]OverdueInvoice, error) {
	cutoff := asOf.AddDate(0, 0, -graceDays)
	rows, err := s.Pool.Query(ctx, `
		SELECT i.id::text, i.org_id::text, i.number, i.discount_type, i.discount_value, i.tax_rate_percent, i.due_date,
		       c.name, COALESCE(c.email, '')
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.status <> 'paid'
		  AND i.due_date < $1
		  AND (i.reminded_at IS NULL OR i.reminded_at < date_trunc('day', $2::timestamptz))
	`, cutoff, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []overdueCandidate
	for rows.Next() {
		var c overdueCandidate
		var discountType string
		if err := rows.Scan(
			&c.inv.ID, &c.inv.OrgID, &c.inv.Number,
			&discountType, &c.discount.Value, &c.taxRatePercent,
			&c.inv.DueDate, &c.inv.CustomerName, &c.inv.CustomerEmail,
		); err != nil {
			return nil, err
		}
		c.discount.Type = billing.DiscountType(discountType)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.inv.ID)
	}
	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	payments, err := s.loadPayments(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]OverdueInvoice, 0, len(candidates))
	for _, c := range candidates {
		breakdown := billing.ComputeBreakdown(billing.Invoice{
			ID:             c.inv.ID,
			Items:          items[c.inv.ID],
			Discount:       c.discount,
			TaxRatePercent: c.taxRatePercent,
			Payments:       payments[c.inv.ID],
		})
		if breakdown.BalanceDue <= 0 {
			continue
		}
		c.inv.Total = breakdown.Total
		c.inv.BalanceDue = breakdown.BalanceDue
		out = append(out, c.inv)
	}
	return out, nil
}

// GetOverdueInvoice loads a single invoice with its derived balance.
func (s PGStore) GetOverdueInvoice(ctx context.Context, orgID, invoiceID string) (OverdueInvoice, error) {
	var c overdueCandidate
	var discountType string
	err := s.Pool.QueryRow(ctx, `
		SELECT i.id::text, i.org_id::text, i.number, i.discount_type, i.discount_value, i.tax_rate_percent, i.due_date,
		       c.name, COALESCE(c.email, '')
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.id = $1 AND i.org_id = $2
	`, invoiceID, orgID).Scan(
		&c.inv.ID, &c.inv.OrgID, &c.inv.Number,
		&discountType, &c.discount.Value, &c.taxRatePercent,
		&c.inv.DueDate, &c.inv.CustomerName, &c.inv.CustomerEmail,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return OverdueInvoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return OverdueInvoice{}, err
	}
	c.discount.Type = billing.DiscountType(discountType)

	items, err := s.loadItems(ctx, []string{c.inv.ID})
	if err != nil {
		return OverdueInvoice{}, err
	}
	payments, err := s.loadPayments(ctx, []string{c.inv.ID})
	if err != nil {
		return OverdueInvoice{}, err
	}
	breakdown := billing.ComputeBreakdown(billing.Invoice{
		ID:             c.inv.ID,
		Items:          items[c.inv.ID],
		Discount:       c.discount,
		TaxRatePercent: c.taxRatePercent,
		Payments:       payments[c.inv.ID],
	})
	c.inv.Total = breakdown.Total
	c.inv.BalanceDue = breakdown.BalanceDue
	return c.inv, nil
}

// MarkReminded stamps the invoice so the next scan skips it.
func (s PGStore) MarkReminded(ctx context.Context, invoiceID string, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `UPDATE invoices SET reminded_at = $2 WHERE id = $1`, invoiceID, at)
	return err
}

func (s PGStore) loadItems(ctx context.Context, invoiceIDs []string) (map[string][]billing.LineItem, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT invoice_id::text, quantity, unit_price
		FROM invoice_items
		WHERE invoice_id = ANY($1::uuid[])
	`, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]billing.LineItem)
	for rows.Next() {
		var invoiceID string
		var item billing.LineItem
		if err := rows.Scan(&invoiceID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		out[invoiceID] = append(out[invoiceID], item)
	}
	return out, rows.Err()
}

func (s PGStore) loadPayments(ctx context.Context, invoiceIDs []string) (map[string][]billing.Payment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT invoice_id::text, amount
		FROM payments
		WHERE invoice_id = ANY($1::uuid[])
	`, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]billing.Payment)
	for rows.Next() {
		var invoiceID string
		var payment billing.Payment
		if err := rows.Scan(&invoiceID, &payment.Amount); err != nil {
			return nil, err
		}
		out[invoiceID] = append(out[invoiceID], payment)
	}
	return out, rows.Err()
}
