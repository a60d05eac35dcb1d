package staff

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workshoplabs/backend-garage/internal/auth"
)

// ErrNotFound is returned when a staff member does not exist within the org scope.
var ErrNotFound = errors.New("staff: not found")

// ErrAlreadyClockedIn is returned when a staff member clocks in twice.
var ErrAlreadyClockedIn = errors.New("staff: open attendance entry exists")

// Staff roles.
const (
	RoleAdmin     = "admin"
	RoleMechanic  = "mechanic"
	RoleFrontDesk = "front_desk"
)

// Record is a staff member of the workshop.
type Record struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"orgId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Attendance is one clock-in/clock-out pair.
type Attendance struct {
	ID       string     `json:"id"`
	OrgID    string     `json:"orgId"`
	StaffID  string     `json:"staffId"`
	ClockIn  time.Time  `json:"clockIn"`
	ClockOut *time.Time `json:"clockOut,omitempty"`
}

// Store persists staff members and attendance in Postgres. It also backs the
// auth service's credential lookups.
type Store struct {
	Pool *pgxpool.Pool
}

const columns = `id::text, org_id::text, name, email, role, active, password_hash, created_at, updated_at`

func scan(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.Name, &rec.Email, &rec.Role, &rec.Active, &rec.PasswordHash, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// AccountByEmail implements auth.AccountStore. Lookup is global because login
// happens before the org is resolved; emails are unique across orgs.
func (s Store) AccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	rec, err := scan(s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM staff WHERE lower(email) = lower($1) AND active`, email))
	if errors.Is(err, ErrNotFound) {
		return auth.Account{}, auth.ErrAccountNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	return auth.Account{
		ID:           rec.ID,
		Email:        rec.Email,
		Name:         rec.Name,
		Role:         rec.Role,
		PasswordHash: rec.PasswordHash,
	}, nil
}

// Insert creates a staff member.
func (s Store) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.NewString()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO staff (id, org_id, name, email, role, active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.OrgID, rec.Name, rec.Email, rec.Role, rec.Active, rec.PasswordHash, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get loads a staff member within the org scope.
func (s Store) Get(ctx context.Context, orgID, id string) (Record, error) {
	return scan(s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM staff WHERE id = $1 AND org_id = $2`, id, orgID))
}

// List returns staff, optionally filtered by role.
func (s Store) List(ctx context.Context, orgID, role string, limit, offset int) ([]Record, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+`
		FROM staff
		WHERE org_id = $1 AND ($2 = '' OR role = $2)
		ORDER BY name
		LIMIT $3 OFFSET $4
	`, orgID, role, limit, offset)
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
		SELECT COUNT(*) FROM staff WHERE org_id = $1 AND ($2 = '' OR role = $2)
	`, orgID, role).Scan(&total)
	return out, total, err
}

// Update rewrites the mutable fields; an empty PasswordHash keeps the current one.
func (s Store) Update(ctx context.Context, rec Record) (Record, error) {
	rec.UpdatedAt = time.Now().UTC()
	tag, err := s.Pool.Exec(ctx, `
		UPDATE staff
		SET name = $3, email = $4, role = $5, active = $6,
		    password_hash = COALESCE(NULLIF($7, ''), password_hash), updated_at = $8
		WHERE id = $1 AND org_id = $2
	`, rec.ID, rec.OrgID, rec.Name, rec.Email, rec.Role, rec.Active, rec.PasswordHash, rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, rec.OrgID, rec.ID)
}

// Delete removes a staff member.
func (s Store) Delete(ctx context.Context, orgID, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM staff WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClockIn opens an attendance entry unless one is already open.
func (s Store) ClockIn(ctx context.Context, orgID, staffID string, at time.Time) (Attendance, error) {
	var open int
	err := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM staff_attendance WHERE staff_id = $1 AND org_id = $2 AND clock_out IS NULL
	`, staffID, orgID).Scan(&open)
	if err != nil {
		return Attendance{}, err
	}
	if open > 0 {
		return Attendance{}, ErrAlreadyClockedIn
	}
	entry := Attendance{ID: uuid.NewString(), OrgID: orgID, StaffID: staffID, ClockIn: at}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO staff_attendance (id, org_id, staff_id, clock_in) VALUES ($1, $2, $3, $4)
	`, entry.ID, entry.OrgID, entry.StaffID, entry.ClockIn)
	if err != nil {
		return Attendance{}, err
	}
	return entry, nil
}

// ClockOut closes the open attendance entry.
func (s Store) ClockOut(ctx context.Context, orgID, staffID string, at time.Time) (Attendance, error) {
	var entry Attendance
	err := s.Pool.QueryRow(ctx, `
		UPDATE staff_attendance
		SET clock_out = $3
		WHERE staff_id = $1 AND org_id = $2 AND clock_out IS NULL
		RETURNING id::text, org_id::text, staff_id::text, clock_in, clock_out
	`, staffID, orgID, at).Scan(&entry.ID, &entry.OrgID, &entry.StaffID, &entry.ClockIn, &entry.ClockOut)
	if errors.Is(err, pgx.ErrNoRows) {
		return Attendance{}, ErrNotFound
	}
	if err != nil {
		return Attendance{}, err
	}
	return entry, nil
}

// ListAttendance returns attendance entries for a staff member, newest first.
func (s Store) ListAttendance(ctx context.Context, orgID, staffID string, limit int) ([]Attendance, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id::text, org_id::text, staff_id::text, clock_in, clock_out
		FROM staff_attendance
		WHERE org_id = $1 AND staff_id = $2
		ORDER BY clock_in DESC
		LIMIT $3
	`, orgID, staffID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attendance
	for rows.Next() {
		var entry Attendance
		if err := rows.Scan(&entry.ID, &entry.OrgID, &entry.StaffID, &entry.ClockIn, &entry.ClockOut); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
