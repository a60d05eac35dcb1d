package payable

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a payable does not exist within the org scope.
var ErrNotFound = errors.New("payable: not found")

// Payable statuses.
const (
	StatusUnpaid = "unpaid"
	StatusPaid   = "paid"
)

// Record is money the workshop owes a supplier.
type Record struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"orgId"`
	Supplier    string     `json:"supplier"`
	Description string     `json:"description,omitempty"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Store persists supplier payables in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const columns = `id::text, org_id::text, supplier, COALESCE(description, ''), amount, status, due_date, paid_at, created_at, updated_at`

func scan(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.Supplier, &rec.Description, &rec.Amount, &rec.Status, &rec.DueDate, &rec.PaidAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Insert creates a payable in the unpaid state.
func (s Store) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.NewString()
	rec.Status = StatusUnpaid
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payables (id, org_id, supplier, description, amount, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.OrgID, rec.Supplier, rec.Description, rec.Amount, rec.Status, rec.DueDate, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get loads a payable within the org scope.
func (s Store) Get(ctx context.Context, orgID, id string) (Record, error) {
	return scan(s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM payables WHERE id = $1 AND org_id = $2`, id, orgID))
}

// List returns payables, optionally filtered by status, newest first. When
// overdue is set only unpaid payables past their due date are returned.
func (s Store) List(ctx context.Context, orgID, status string, overdue bool, limit, offset int) ([]Record, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+`
		FROM payables
		WHERE org_id = $1 AND ($2 = '' OR status = $2)
		  AND (NOT $3::boolean OR (status = 'unpaid' AND due_date IS NOT NULL AND due_date < now()))
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, orgID, status, overdue, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scan(rows)
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
		SELECT COUNT(*) FROM payables
		WHERE org_id = $1 AND ($2 = '' OR status = $2)
		  AND (NOT $3::boolean OR (status = 'unpaid' AND due_date IS NOT NULL AND due_date < now()))
	`, orgID, status, overdue).Scan(&total)
	return out, total, err
}

// Update rewrites the mutable fields of an unpaid payable.
func (s Store) Update(ctx context.Context, rec Record) (Record, error) {
	rec.UpdatedAt = time.Now().UTC()
	tag, err := s.Pool.Exec(ctx, `
		UPDATE payables
		SET supplier = $3, description = $4, amount = $5, due_date = $6, updated_at = $7
		WHERE id = $1 AND org_id = $2
	`, rec.ID, rec.OrgID, rec.Supplier, rec.Description, rec.Amount, rec.DueDate, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, rec.OrgID, rec.ID)
}

// MarkPaid settles a payable, stamping the payment time.
func (s Store) MarkPaid(ctx context.Context, orgID, id string, at time.Time) (Record, error) {
	return scan(s.Pool.QueryRow(ctx, `
		UPDATE payables
		SET status = $3, paid_at = $4, updated_at = $4
		WHERE id = $1 AND org_id = $2
		RETURNING `+columns+`
	`, id, orgID, StatusPaid, at))
}

// Delete removes a payable.
func (s Store) Delete(ctx context.Context, orgID, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM payables WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
