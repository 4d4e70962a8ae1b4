package staff

import (
	"context"
	"strings"

	"github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists staff assignments in PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a staff assignment repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save saves a new assignment
func (r *Repository) Save(ctx context.Context, a *Assignment) error {
	query := `
		INSERT INTO staff.assignments (
			id, staff_id, role, district_id, block_id, village_id,
			assigned_by, start_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.StaffID, a.Role, a.DistrictID, a.BlockID, a.VillageID,
		a.AssignedBy, a.StartDate, a.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			return errors.BadRequest("assignment references an unknown hierarchy node")
		}
		return errors.Wrap(err, "failed to save assignment")
	}

	return nil
}

// FindByID finds an assignment by ID
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Assignment, error) {
	query := `
		SELECT id, staff_id, role, district_id, block_id, village_id,
			assigned_by, start_date, created_at
		FROM staff.assignments
		WHERE id = $1`

	a := &Assignment{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.StaffID, &a.Role, &a.DistrictID, &a.BlockID, &a.VillageID,
		&a.AssignedBy, &a.StartDate, &a.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("assignment", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find assignment")
	}

	return a, nil
}

// ListByStaff lists a staff member's assignments
func (r *Repository) ListByStaff(ctx context.Context, staffID types.ID) ([]Assignment, error) {
	return r.list(ctx, `WHERE staff_id = $1`, staffID)
}

// List lists all assignments
func (r *Repository) List(ctx context.Context) ([]Assignment, error) {
	return r.list(ctx, "")
}

func (r *Repository) list(ctx context.Context, where string, args ...interface{}) ([]Assignment, error) {
	query := `
		SELECT id, staff_id, role, district_id, block_id, village_id,
			assigned_by, start_date, created_at
		FROM staff.assignments ` + where + `
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list assignments")
	}
	defer rows.Close()

	assignments := []Assignment{}
	for rows.Next() {
		var a Assignment
		err := rows.Scan(
			&a.ID, &a.StaffID, &a.Role, &a.DistrictID, &a.BlockID, &a.VillageID,
			&a.AssignedBy, &a.StartDate, &a.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan assignment")
		}
		assignments = append(assignments, a)
	}

	return assignments, nil
}

// Delete removes the assignment edge. Only the edge is deleted; the staff
// member and the hierarchy node are untouched.
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM staff.assignments WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete assignment")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("assignment", id.String())
	}

	return nil
}
