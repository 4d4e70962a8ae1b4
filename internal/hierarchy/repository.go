package hierarchy

import (
	"context"
	"strings"

	"github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides CRUD and snapshot loading for the containment tree.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new hierarchy repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadSnapshot reads the whole tree and builds a validated Store.
func (r *Repository) LoadSnapshot(ctx context.Context) (*Store, error) {
	districts, err := r.ListDistricts(ctx)
	if err != nil {
		return nil, err
	}
	blocks, err := r.ListBlocks(ctx, "")
	if err != nil {
		return nil, err
	}
	villages, err := r.ListVillages(ctx, "")
	if err != nil {
		return nil, err
	}
	store, err := NewStore(districts, blocks, villages)
	if err != nil {
		return nil, errors.Wrap(err, "hierarchy snapshot failed validation")
	}
	return store, nil
}

// --- District operations ---

func (r *Repository) SaveDistrict(ctx context.Context, d *District) error {
	query := `
		INSERT INTO hierarchy.districts (id, name, code, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, d.ID, d.Name, d.Code, d.State, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("district with this code already exists")
		}
		return errors.Wrap(err, "failed to save district")
	}
	return nil
}

func (r *Repository) FindDistrict(ctx context.Context, id types.ID) (*District, error) {
	d := &District{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, code, state, created_at, updated_at FROM hierarchy.districts WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.Code, &d.State, &d.CreatedAt, &d.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("district", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find district")
	}
	return d, nil
}

func (r *Repository) UpdateDistrict(ctx context.Context, d *District) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE hierarchy.districts SET name = $2, code = $3, state = $4, updated_at = $5 WHERE id = $1`,
		d.ID, d.Name, d.Code, d.State, d.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to update district")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("district", d.ID.String())
	}
	return nil
}

func (r *Repository) DeleteDistrict(ctx context.Context, id types.ID) error {
	var count int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM hierarchy.blocks WHERE district_id = $1`, id).Scan(&count); err != nil {
		return errors.Wrap(err, "failed to count blocks")
	}
	if count > 0 {
		return errors.Conflict("district still has blocks")
	}
	result, err := r.pool.Exec(ctx, `DELETE FROM hierarchy.districts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete district")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("district", id.String())
	}
	return nil
}

func (r *Repository) ListDistricts(ctx context.Context) ([]District, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, code, state, created_at, updated_at FROM hierarchy.districts ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list districts")
	}
	defer rows.Close()

	var districts []District
	for rows.Next() {
		var d District
		if err := rows.Scan(&d.ID, &d.Name, &d.Code, &d.State, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan district")
		}
		districts = append(districts, d)
	}
	return districts, nil
}

// --- Block operations ---

func (r *Repository) SaveBlock(ctx context.Context, b *Block) error {
	query := `
		INSERT INTO hierarchy.blocks (id, name, code, district_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, b.ID, b.Name, b.Code, b.DistrictID, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("block with this code already exists")
		}
		if strings.Contains(err.Error(), "foreign key") {
			return errors.BadRequest("block references unknown district")
		}
		return errors.Wrap(err, "failed to save block")
	}
	return nil
}

func (r *Repository) FindBlock(ctx context.Context, id types.ID) (*Block, error) {
	b := &Block{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, code, district_id, created_at, updated_at FROM hierarchy.blocks WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Code, &b.DistrictID, &b.CreatedAt, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("block", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find block")
	}
	return b, nil
}

func (r *Repository) UpdateBlock(ctx context.Context, b *Block) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE hierarchy.blocks SET name = $2, code = $3, updated_at = $4 WHERE id = $1`,
		b.ID, b.Name, b.Code, b.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to update block")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("block", b.ID.String())
	}
	return nil
}

func (r *Repository) DeleteBlock(ctx context.Context, id types.ID) error {
	var count int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM hierarchy.villages WHERE block_id = $1`, id).Scan(&count); err != nil {
		return errors.Wrap(err, "failed to count villages")
	}
	if count > 0 {
		return errors.Conflict("block still has villages")
	}
	result, err := r.pool.Exec(ctx, `DELETE FROM hierarchy.blocks WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete block")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("block", id.String())
	}
	return nil
}

// ListBlocks lists blocks, optionally restricted to a district.
func (r *Repository) ListBlocks(ctx context.Context, districtID types.ID) ([]Block, error) {
	query := `SELECT id, name, code, district_id, created_at, updated_at FROM hierarchy.blocks`
	args := []interface{}{}
	if !districtID.IsZero() {
		query += ` WHERE district_id = $1`
		args = append(args, districtID)
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list blocks")
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.ID, &b.Name, &b.Code, &b.DistrictID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan block")
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// --- Village operations ---

func (r *Repository) SaveVillage(ctx context.Context, v *Village) error {
	query := `
		INSERT INTO hierarchy.villages (id, name, code, block_id, population, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, v.ID, v.Name, v.Code, v.BlockID, v.Population, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("village with this code already exists")
		}
		if strings.Contains(err.Error(), "foreign key") {
			return errors.BadRequest("village references unknown block")
		}
		return errors.Wrap(err, "failed to save village")
	}
	return nil
}

func (r *Repository) FindVillage(ctx context.Context, id types.ID) (*Village, error) {
	v := &Village{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, code, block_id, population, created_at, updated_at FROM hierarchy.villages WHERE id = $1`, id,
	).Scan(&v.ID, &v.Name, &v.Code, &v.BlockID, &v.Population, &v.CreatedAt, &v.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("village", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find village")
	}
	return v, nil
}

func (r *Repository) UpdateVillage(ctx context.Context, v *Village) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE hierarchy.villages SET name = $2, code = $3, population = $4, updated_at = $5 WHERE id = $1`,
		v.ID, v.Name, v.Code, v.Population, v.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to update village")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("village", v.ID.String())
	}
	return nil
}

func (r *Repository) DeleteVillage(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM hierarchy.villages WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete village")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("village", id.String())
	}
	return nil
}

// ListVillages lists villages, optionally restricted to a block.
func (r *Repository) ListVillages(ctx context.Context, blockID types.ID) ([]Village, error) {
	query := `SELECT id, name, code, block_id, population, created_at, updated_at FROM hierarchy.villages`
	args := []interface{}{}
	if !blockID.IsZero() {
		query += ` WHERE block_id = $1`
		args = append(args, blockID)
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list villages")
	}
	defer rows.Close()

	var villages []Village
	for rows.Next() {
		var v Village
		if err := rows.Scan(&v.ID, &v.Name, &v.Code, &v.BlockID, &v.Population, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan village")
		}
		villages = append(villages, v)
	}
	return villages, nil
}
