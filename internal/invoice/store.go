package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workshoplabs/backend-garage/internal/billing"
)

// ErrNotFound is returned when an invoice does not exist within the org scope.
var ErrNotFound = errors.New("invoice: not found")

// Record is the persisted invoice header. Monetary totals are always derived,
// never stored.
type Record struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"orgId"`
	Number         string     `json:"number"`
	CustomerID     string     `json:"customerId"`
	VehicleID      string     `json:"vehicleId,omitempty"`
	Status         string     `json:"status"`
	DiscountType   string     `json:"discountType"`
	DiscountValue  float64    `json:"discountValue"`
	TaxRatePercent float64    `json:"taxRatePercent"`
	DueDate        time.Time  `json:"dueDate"`
	Notes          string     `json:"notes,omitempty"`
	RemindedAt     *time.Time `json:"remindedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ListParams filters org-scoped invoice listings.
type ListParams struct {
	Status     string
	CustomerID string
	Page       int
	Limit      int
}

// Store persists invoices, their line items and payments in Postgres. Its item
// methods satisfy the reconciler's storage contract.
type Store struct {
	Pool *pgxpool.Pool
}

const recordColumns = `id::text, org_id::text, number, customer_id::text, COALESCE(vehicle_id::text, ''), status,
	discount_type, discount_value, tax_rate_percent, due_date, COALESCE(notes, ''), reminded_at, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.OrgID, &rec.Number, &rec.CustomerID, &rec.VehicleID, &rec.Status,
		&rec.DiscountType, &rec.DiscountValue, &rec.TaxRatePercent, &rec.DueDate,
		&rec.Notes, &rec.RemindedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// InsertInvoice creates the invoice header.
func (s Store) InsertInvoice(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.NewString()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO invoices (id, org_id, number, customer_id, vehicle_id, status, discount_type, discount_value,
		                      tax_rate_percent, due_date, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
	`, rec.ID, rec.OrgID, rec.Number, rec.CustomerID, rec.VehicleID, rec.Status, rec.DiscountType,
		rec.DiscountValue, rec.TaxRatePercent, rec.DueDate, rec.Notes, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetInvoice loads the header within the org scope.
func (s Store) GetInvoice(ctx context.Context, orgID, id string) (Record, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM invoices WHERE id = $1 AND org_id = $2`, id, orgID)
	return scanRecord(row)
}

// ListInvoices returns a page of invoice headers plus the total count.
func (s Store) ListInvoices(ctx context.Context, orgID string, params ListParams) ([]Record, int64, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := s.Pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM invoices
		WHERE org_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR customer_id = $3::uuid)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, orgID, params.Status, params.CustomerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	err = s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM invoices
		WHERE org_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR customer_id = $3::uuid)
	`, orgID, params.Status, params.CustomerID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateInvoiceHeader rewrites the mutable header fields.
func (s Store) UpdateInvoiceHeader(ctx context.Context, rec Record) (Record, error) {
	rec.UpdatedAt = time.Now().UTC()
	tag, err := s.Pool.Exec(ctx, `
		UPDATE invoices
		SET discount_type = $3, discount_value = $4, tax_rate_percent = $5, due_date = $6,
		    notes = NULLIF($7, ''), updated_at = $8
		WHERE id = $1 AND org_id = $2
	`, rec.ID, rec.OrgID, rec.DiscountType, rec.DiscountValue, rec.TaxRatePercent, rec.DueDate, rec.Notes, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrNotFound
	}
	return s.GetInvoice(ctx, rec.OrgID, rec.ID)
}

// UpdateStatus refreshes the derived payment status.
func (s Store) UpdateStatus(ctx context.Context, orgID, id, status string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE invoices SET status = $3, updated_at = $4 WHERE id = $1 AND org_id = $2
	`, id, orgID, status, time.Now().UTC())
	return err
}

// DeleteInvoice removes the invoice and its dependent rows.
func (s Store) DeleteInvoice(ctx context.Context, orgID, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItems returns the persisted line items of an invoice.
func (s Store) ListItems(ctx context.Context, invoiceID string) ([]billing.LineItem, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id::text, invoice_id::text, org_id::text, description, kind, quantity, unit_price,
		       COALESCE(source_part_id::text, ''), COALESCE(source_task_id::text, '')
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY created_at, id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.LineItem
	for rows.Next() {
		var item billing.LineItem
		var kind string
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.OrgID, &item.Description, &kind,
			&item.Quantity, &item.UnitPrice, &item.SourcePartID, &item.SourceTaskID); err != nil {
			return nil, err
		}
		item.Kind = billing.ItemKind(kind)
		out = append(out, item)
	}
	return out, rows.Err()
}

// InsertItems persists new line items and returns them with assigned ids.
func (s Store) InsertItems(ctx context.Context, items []billing.LineItem) ([]billing.LineItem, error) {
	out := make([]billing.LineItem, 0, len(items))
	now := time.Now().UTC()
	for _, item := range items {
		item.ID = uuid.NewString()
		_, err := s.Pool.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, org_id, description, kind, quantity, unit_price,
			                           source_part_id, source_task_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::uuid, NULLIF($9, '')::uuid, $10)
		`, item.ID, item.InvoiceID, item.OrgID, item.Description, string(item.Kind),
			item.Quantity, item.UnitPrice, item.SourcePartID, item.SourceTaskID, now)
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// UpdateItem rewrites the mutable fields of a persisted line item.
func (s Store) UpdateItem(ctx context.Context, id string, values billing.LineItem) (billing.LineItem, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE invoice_items
		SET description = $2, kind = $3, quantity = $4, unit_price = $5
		WHERE id = $1
	`, id, values.Description, string(values.Kind), values.Quantity, values.UnitPrice)
	if err != nil {
		return billing.LineItem{}, err
	}
	if tag.RowsAffected() == 0 {
		return billing.LineItem{}, ErrNotFound
	}
	values.ID = id
	return values, nil
}

// DeleteItems removes line items by id.
func (s Store) DeleteItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.Pool.Exec(ctx, `DELETE FROM invoice_items WHERE id = ANY($1::uuid[])`, ids)
	return err
}

// ListPayments returns payments recorded against an invoice in entry order.
func (s Store) ListPayments(ctx context.Context, invoiceID string) ([]billing.Payment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id::text, invoice_id::text, paid_at, amount, method, COALESCE(notes, '')
		FROM payments
		WHERE invoice_id = $1
		ORDER BY paid_at, id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Payment
	for rows.Next() {
		var p billing.Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Date, &p.Amount, &p.Method, &p.Notes); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPayment appends a payment.
func (s Store) InsertPayment(ctx context.Context, payment billing.Payment) (billing.Payment, error) {
	payment.ID = uuid.NewString()
	if payment.Date.IsZero() {
		payment.Date = time.Now().UTC()
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payments (id, invoice_id, paid_at, amount, method, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, payment.ID, payment.InvoiceID, payment.Date, payment.Amount, payment.Method, payment.Notes)
	if err != nil {
		return billing.Payment{}, err
	}
	return payment, nil
}

// NextNumber allocates a sequential, org-scoped invoice number.
func (s Store) NextNumber(ctx context.Context, orgID string) (string, error) {
	var n int64
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO invoice_counters (org_id, counter)
		VALUES ($1, 1)
		ON CONFLICT (org_id) DO UPDATE SET counter = invoice_counters.counter + 1
		RETURNING counter
	`, orgID).Scan(&n)
	if err != nil {
		return "", err
	}
	return formatNumber(n), nil
}

func formatNumber(n int64) string {
	return time.Now().UTC().Format("INV-2006-") + padCounter(n)
}

// padCounter zero-pads to six digits and grows beyond that so counters past
// 999999 never wrap back onto earlier numbers.
func padCounter(n int64) string {
	return fmt.Sprintf("%06d", n)
}
