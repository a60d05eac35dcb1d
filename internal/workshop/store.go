package workshop

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a task does not exist within the org scope.
var ErrNotFound = errors.New("workshop: task not found")

// Task statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Task is a unit of work performed on a vehicle. Completed tasks become labor
// line candidates for the vehicle's invoice.
type Task struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"orgId"`
	VehicleID   string     `json:"vehicleId"`
	MechanicID  string     `json:"mechanicId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	LaborRate   float64    `json:"laborRate"`
	Hours       float64    `json:"hours"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ListParams filters task listings.
type ListParams struct {
	VehicleID  string
	MechanicID string
	Status     string
	Limit      int
	Offset     int
}

// Store persists workshop tasks in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const columns = `id::text, org_id::text, vehicle_id::text, COALESCE(mechanic_id::text, ''), title,
	COALESCE(description, ''), status, labor_rate, hours, completed_at, created_at, updated_at`

func scan(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.OrgID, &t.VehicleID, &t.MechanicID, &t.Title, &t.Description,
		&t.Status, &t.LaborRate, &t.Hours, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// Insert creates a task.
func (s Store) Insert(ctx context.Context, t Task) (Task, error) {
	t.ID = uuid.NewString()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = StatusOpen
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO workshop_tasks (id, org_id, vehicle_id, mechanic_id, title, description, status,
		                            labor_rate, hours, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
	`, t.ID, t.OrgID, t.VehicleID, t.MechanicID, t.Title, t.Description, t.Status, t.LaborRate, t.Hours, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// Get loads a task within the org scope.
func (s Store) Get(ctx context.Context, orgID, id string) (Task, error) {
	return scan(s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM workshop_tasks WHERE id = $1 AND org_id = $2`, id, orgID))
}

// List returns tasks matching the filters, newest first.
func (s Store) List(ctx context.Context, orgID string, params ListParams) ([]Task, int64, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+`
		FROM workshop_tasks
		WHERE org_id = $1
		  AND ($2 = '' OR vehicle_id = $2::uuid)
		  AND ($3 = '' OR mechanic_id = $3::uuid)
		  AND ($4 = '' OR status = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`, orgID, params.VehicleID, params.MechanicID, params.Status, limit, params.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	err = s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM workshop_tasks
		WHERE org_id = $1
		  AND ($2 = '' OR vehicle_id = $2::uuid)
		  AND ($3 = '' OR mechanic_id = $3::uuid)
		  AND ($4 = '' OR status = $4)
	`, orgID, params.VehicleID, params.MechanicID, params.Status).Scan(&total)
	return out, total, err
}

// Update rewrites the mutable fields of a task.
func (s Store) Update(ctx context.Context, t Task) (Task, error) {
	t.UpdatedAt = time.Now().UTC()
	tag, err := s.Pool.Exec(ctx, `
		UPDATE workshop_tasks
		SET mechanic_id = NULLIF($3, '')::uuid, title = $4, description = NULLIF($5, ''), status = $6,
		    labor_rate = $7, hours = $8, completed_at = $9, updated_at = $10
		WHERE id = $1 AND org_id = $2
	`, t.ID, t.OrgID, t.MechanicID, t.Title, t.Description, t.Status, t.LaborRate, t.Hours, t.CompletedAt, t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	if tag.RowsAffected() == 0 {
		return Task{}, ErrNotFound
	}
	return s.Get(ctx, t.OrgID, t.ID)
}

// Delete removes a task.
func (s Store) Delete(ctx context.Context, orgID, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM workshop_tasks WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
