package parts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a part does not exist within the org scope.
var ErrNotFound = errors.New("parts: not found")

// ErrDuplicateSKU is returned when another part in the org already carries the SKU.
var ErrDuplicateSKU = errors.New("parts: duplicate sku")

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSKU
	}
	return err
}

// Record is a stocked part in the org's inventory.
type Record struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"orgId"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UnitPrice   float64   `json:"unitPrice"`
	Quantity    float64   `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists parts in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const columns = `id::text, org_id::text, sku, name, COALESCE(description, ''), unit_price, quantity, created_at, updated_at`

func scan(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.SKU, &rec.Name, &rec.Description, &rec.UnitPrice, &rec.Quantity, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Insert creates a part.
func (s Store) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.NewString()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO parts (id, org_id, sku, name, description, unit_price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
	`, rec.ID, rec.OrgID, rec.SKU, rec.Name, rec.Description, rec.UnitPrice, rec.Quantity, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return Record{}, mapPgError(err)
	}
	return rec, nil
}

// Get loads a part within the org scope.
func (s Store) Get(ctx context.Context, orgID, id string) (Record, error) {
	return scan(s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM parts WHERE id = $1 AND org_id = $2`, id, orgID))
}

// List returns parts matching the optional search term.
func (s Store) List(ctx context.Context, orgID, search string, limit, offset int) ([]Record, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+`
		FROM parts
		WHERE org_id = $1
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR sku ILIKE '%' || $2 || '%')
		ORDER BY name
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
		SELECT COUNT(*) FROM parts
		WHERE org_id = $1
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR sku ILIKE '%' || $2 || '%')
	`, orgID, search).Scan(&total)
	return out, total, err
}

// Update rewrites the mutable fields of a part.
func (s Store) Update(ctx context.Context, rec Record) (Record, error) {
	rec.UpdatedAt = time.Now().UTC()
	tag, err := s.Pool.Exec(ctx, `
		UPDATE parts
		SET sku = $3, name = $4, description = NULLIF($5, ''), unit_price = $6, quantity = $7, updated_at = $8
		WHERE id = $1 AND org_id = $2
	`, rec.ID, rec.OrgID, rec.SKU, rec.Name, rec.Description, rec.UnitPrice, rec.Quantity, rec.UpdatedAt)
	if err != nil {
		return Record{}, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, rec.OrgID, rec.ID)
}

// AdjustQuantity applies a stock delta, e.g. when parts are consumed by an
// invoice line.
func (s Store) AdjustQuantity(ctx context.Context, orgID, id string, delta float64) (Record, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE parts SET quantity = quantity + $3, updated_at = $4 WHERE id = $1 AND org_id = $2
	`, id, orgID, delta, time.Now().UTC())
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, orgID, id)
}

// ListLowStock returns parts whose quantity is at or below the threshold,
// lowest stock first.
func (s Store) ListLowStock(ctx context.Context, orgID string, threshold float64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+`
		FROM parts
		WHERE org_id = $1 AND quantity <= $2
		ORDER BY quantity, name
		LIMIT $3
	`, orgID, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a part.
func (s Store) Delete(ctx context.Context, orgID, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM parts WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
