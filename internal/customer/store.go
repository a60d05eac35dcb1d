package customer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a customer does not exist within the org scope.
var ErrNotFound = errors.New("customer: not found")

// Record is a persisted customer.
type Record struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"orgId"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists customers in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const columns = `id::text, org_id::text, name, COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(address, ''), COALESCE(notes, ''), created_at, updated_at`

func scan(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.Name, &rec.Email, &rec.Phone, &rec.Address, &rec.Notes, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Insert creates a customer.
func (s Store) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.NewString()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO customers (id, org_id, name, email, phone, address, notes, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9)
	`, rec.ID, rec.OrgID, rec.Name, rec.Email, rec.Phone, rec.Address, rec.Notes, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get loads a customer within the org scope.
func (s Store) Get(ctx context.Context, orgID, id string) (Record, error) {
	return scan(s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE id = $1 AND org_id = $2`, id, orgID))
}

// List returns customers matching the optional search term, newest first.
func (s Store) List(ctx context.Context, orgID, search string, limit, offset int) ([]Record, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+`
		FROM customers
		WHERE org_id = $1
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR phone ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, orgID, search, limit, offset)
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
		SELECT COUNT(*) FROM customers
		WHERE org_id = $1
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR phone ILIKE '%' || $2 || '%')
	`, orgID, search).Scan(&total)
	return out, total, err
}

// Update rewrites the mutable fields of a customer.
func (s Store) Update(ctx context.Context, rec Record) (Record, error) {
	rec.UpdatedAt = time.Now().UTC()
	tag, err := s.Pool.Exec(ctx, `
		UPDATE customers
		SET name = $3, email = NULLIF($4, ''), phone = NULLIF($5, ''), address = NULLIF($6, ''),
		    notes = NULLIF($7, ''), updated_at = $8
		WHERE id = $1 AND org_id = $2
	`, rec.ID, rec.OrgID, rec.Name, rec.Email, rec.Phone, rec.Address, rec.Notes, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, rec.OrgID, rec.ID)
}

// Delete removes a customer.
func (s Store) Delete(ctx context.Context, orgID, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM customers WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
