package vehicle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a vehicle does not exist within the org scope.
var ErrNotFound = errors.New("vehicle: not found")

// Record is a persisted vehicle tied to a customer.
type Record struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"orgId"`
	CustomerID string    `json:"customerId"`
	Plate      string    `json:"plate"`
	Make       string    `json:"make,omitempty"`
	Model      string    `json:"model,omitempty"`
	Year       int       `json:"year,omitempty"`
	VIN        string    `json:"vin,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store persists vehicles in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const columns = `id::text, org_id::text, customer_id::text, plate, COALESCE(make, ''), COALESCE(model, ''),
	COALESCE(year, 0), COALESCE(vin, ''), COALESCE(notes, ''), created_at, updated_at`

func scan(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.CustomerID, &rec.Plate, &rec.Make, &rec.Model,
		&rec.Year, &rec.VIN, &rec.Notes, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Insert creates a vehicle.
func (s Store) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.NewString()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO vehicles (id, org_id, customer_id, plate, make, model, year, vin, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, 0), NULLIF($8, ''), NULLIF($9, ''), $10, $11)
	`, rec.ID, rec.OrgID, rec.CustomerID, rec.Plate, rec.Make, rec.Model, rec.Year, rec.VIN, rec.Notes, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get loads a vehicle within the org scope.
func (s Store) Get(ctx context.Context, orgID, id string) (Record, error) {
	return scan(s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM vehicles WHERE id = $1 AND org_id = $2`, id, orgID))
}

// List returns vehicles, optionally restricted to one customer or matched by plate.
func (s Store) List(ctx context.Context, orgID, customerID, plate string, limit, offset int) ([]Record, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+`
		FROM vehicles
		WHERE org_id = $1
		  AND ($2 = '' OR customer_id = $2::uuid)
		  AND ($3 = '' OR plate ILIKE '%' || $3 || '%')
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, orgID, customerID, plate, limit, offset)
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
		SELECT COUNT(*) FROM vehicles
		WHERE org_id = $1
		  AND ($2 = '' OR customer_id = $2::uuid)
		  AND ($3 = '' OR plate ILIKE '%' || $3 || '%')
	`, orgID, customerID, plate).Scan(&total)
	return out, total, err
}

// Update rewrites the mutable fields of a vehicle.
func (s Store) Update(ctx context.Context, rec Record) (Record, error) {
	rec.UpdatedAt = time.Now().UTC()
	tag, err := s.Pool.Exec(ctx, `
		UPDATE vehicles
		SET plate = $3, make = NULLIF($4, ''), model = NULLIF($5, ''), year = NULLIF($6, 0),
		    vin = NULLIF($7, ''), notes = NULLIF($8, ''), updated_at = $9
		WHERE id = $1 AND org_id = $2
	`, rec.ID, rec.OrgID, rec.Plate, rec.Make, rec.Model, rec.Year, rec.VIN, rec.Notes, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, rec.OrgID, rec.ID)
}

// Delete removes a vehicle.
func (s Store) Delete(ctx context.Context, orgID, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM vehicles WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
