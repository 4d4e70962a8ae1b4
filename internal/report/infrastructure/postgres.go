package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gram-swasthya/platform/internal/report/domain"
	"github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// detailsDoc is the JSONB shape of the details column
type detailsDoc struct {
	DiseaseOutbreak *domain.DiseaseOutbreakDetails `json:"disease_outbreak_details,omitempty"`
	WaterQuality    *domain.WaterQualityDetails    `json:"water_quality_details,omitempty"`
	Infrastructure  *domain.InfrastructureDetails  `json:"infrastructure_details,omitempty"`
}

func marshalDetails(r *domain.HealthReport) ([]byte, error) {
	doc := detailsDoc{
		DiseaseOutbreak: r.DiseaseOutbreakDetails,
		WaterQuality:    r.WaterQualityDetails,
		Infrastructure:  r.InfrastructureDetails,
	}
	return json.Marshal(doc)
}

func unmarshalDetails(data []byte, r *domain.HealthReport) {
	if len(data) == 0 {
		return
	}
	var doc detailsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return
	}
	r.DiseaseOutbreakDetails = doc.DiseaseOutbreak
	r.WaterQualityDetails = doc.WaterQuality
	r.InfrastructureDetails = doc.Infrastructure
}

// Save saves a new report with its initial history
func (r *PostgresRepository) Save(ctx context.Context, report *domain.HealthReport) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	detailsJSON, err := marshalDetails(report)
	if err != nil {
		return errors.Wrap(err, "failed to marshal report details")
	}

	query := `
		INSERT INTO reports.health_reports (
			id, report_number, report_type, status, priority, urgency_level,
			title, description,
			village_id, block_id, district_id,
			reporter_id, escalated_to, details,
			created_at, updated_at, submitted_at, resolved_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)`

	_, err = tx.Exec(ctx, query,
		report.ID, report.ReportNumber, report.Type, report.Status, report.Priority, report.Urgency,
		report.Title, report.Description,
		nullID(report.VillageID), nullID(report.BlockID), nullID(report.DistrictID),
		report.ReporterID, report.EscalatedTo, detailsJSON,
		report.CreatedAt, report.UpdatedAt, report.SubmittedAt, report.ResolvedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("report with this number already exists")
		}
		return errors.Wrap(err, "failed to save report")
	}

	for i := range report.ReviewHistory {
		if err := saveEntry(ctx, tx, &report.ReviewHistory[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// FindByID finds a report by ID
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*domain.HealthReport, error) {
	query := `
		SELECT id, report_number, report_type, status, priority, urgency_level,
			title, description,
			village_id, block_id, district_id,
			reporter_id, escalated_to, details,
			created_at, updated_at, submitted_at, resolved_at
		FROM reports.health_reports
		WHERE id = $1`

	report := &domain.HealthReport{}
	var detailsJSON []byte
	var villageID, blockID, districtID *types.ID

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&report.ID, &report.ReportNumber, &report.Type, &report.Status, &report.Priority, &report.Urgency,
		&report.Title, &report.Description,
		&villageID, &blockID, &districtID,
		&report.ReporterID, &report.EscalatedTo, &detailsJSON,
		&report.CreatedAt, &report.UpdatedAt, &report.SubmittedAt, &report.ResolvedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("report", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find report")
	}

	if villageID != nil {
		report.VillageID = *villageID
	}
	if blockID != nil {
		report.BlockID = *blockID
	}
	if districtID != nil {
		report.DistrictID = *districtID
	}
	unmarshalDetails(detailsJSON, report)

	history, err := r.getHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	report.ReviewHistory = history

	return report, nil
}

// FindByNumber finds a report by report number
func (r *PostgresRepository) FindByNumber(ctx context.Context, reportNumber string) (*domain.HealthReport, error) {
	var id types.ID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM reports.health_reports WHERE report_number = $1`, reportNumber).Scan(&id)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("report", reportNumber)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find report by number")
	}

	return r.FindByID(ctx, id)
}

// Update persists field changes. The status column is deliberately not
// included; status only moves through CommitTransition.
func (r *PostgresRepository) Update(ctx context.Context, report *domain.HealthReport) error {
	detailsJSON, err := marshalDetails(report)
	if err != nil {
		return errors.Wrap(err, "failed to marshal report details")
	}

	query := `
		UPDATE reports.health_reports SET
			priority = $2, urgency_level = $3, title = $4, description = $5,
			village_id = $6, block_id = $7, district_id = $8,
			details = $9, updated_at = $10
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		report.ID, report.Priority, report.Urgency, report.Title, report.Description,
		nullID(report.VillageID), nullID(report.BlockID), nullID(report.DistrictID),
		detailsJSON, report.UpdatedAt,
	)

	if err != nil {
		return errors.Wrap(err, "failed to update report")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("report", report.ID.String())
	}

	return nil
}

// CommitTransition persists a transition under an optimistic status check.
// The status update and the history append commit together or not at all.
func (r *PostgresRepository) CommitTransition(ctx context.Context, report *domain.HealthReport, expected domain.Status, entry *domain.ReviewEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE reports.health_reports SET
			status = $3, priority = $4, urgency_level = $5,
			escalated_to = $6, updated_at = $7, submitted_at = $8, resolved_at = $9
		WHERE id = $1 AND status = $2`

	result, err := tx.Exec(ctx, query,
		report.ID, expected,
		report.Status, report.Priority, report.Urgency,
		report.EscalatedTo, report.UpdatedAt, report.SubmittedAt, report.ResolvedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to commit transition")
	}

	if result.RowsAffected() == 0 {
		// Either the report vanished or another writer moved the status
		var current domain.Status
		err := tx.QueryRow(ctx,
			`SELECT status FROM reports.health_reports WHERE id = $1`, report.ID).Scan(&current)
		if err == pgx.ErrNoRows {
			return errors.NotFound("report", report.ID.String())
		}
		if err != nil {
			return errors.Wrap(err, "failed to check report status")
		}
		return errors.StaleTransition(string(expected))
	}

	if entry != nil {
		if err := saveEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// Delete hard-deletes a report and its history
func (r *PostgresRepository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM reports.health_reports WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete report")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("report", id.String())
	}

	return nil
}

// List lists reports matching the filter. The scope restriction is part of
// the WHERE clause, so both the page and the total count only ever see
// reports the actor can reach.
func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.HealthReport, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if !filter.Scope.Universal {
		scopeParts := []string{}
		if len(filter.Scope.Villages) > 0 {
			villages := make([]string, len(filter.Scope.Villages))
			for i, id := range filter.Scope.Villages {
				villages[i] = id.String()
			}
			scopeParts = append(scopeParts, fmt.Sprintf("village_id = ANY($%d)", argNum))
			args = append(args, villages)
			argNum++
		}
		if !filter.Scope.OwnerID.IsZero() {
			scopeParts = append(scopeParts, fmt.Sprintf("reporter_id = $%d", argNum))
			args = append(args, filter.Scope.OwnerID)
			argNum++
		}
		if len(scopeParts) == 0 {
			// Empty scope reaches nothing
			return []domain.HealthReport{}, 0, nil
		}
		conditions = append(conditions, "("+strings.Join(scopeParts, " OR ")+")")
	}

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("report_type = $%d", argNum))
		args = append(args, *filter.Type)
		argNum++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", argNum))
		args = append(args, *filter.Priority)
		argNum++
	}

	if filter.Village != nil {
		conditions = append(conditions, fmt.Sprintf("village_id = $%d", argNum))
		args = append(args, *filter.Village)
		argNum++
	}

	if filter.Reporter != nil {
		conditions = append(conditions, fmt.Sprintf("reporter_id = $%d", argNum))
		args = append(args, *filter.Reporter)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM reports.health_reports %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count reports")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT id, report_number, report_type, status, priority, urgency_level,
			title, description,
			village_id, block_id, district_id,
			reporter_id, escalated_to, details,
			created_at, updated_at, submitted_at, resolved_at
		FROM reports.health_reports
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list reports")
	}
	defer rows.Close()

	var reports []domain.HealthReport
	for rows.Next() {
		var report domain.HealthReport
		var detailsJSON []byte
		var villageID, blockID, districtID *types.ID

		err := rows.Scan(
			&report.ID, &report.ReportNumber, &report.Type, &report.Status, &report.Priority, &report.Urgency,
			&report.Title, &report.Description,
			&villageID, &blockID, &districtID,
			&report.ReporterID, &report.EscalatedTo, &detailsJSON,
			&report.CreatedAt, &report.UpdatedAt, &report.SubmittedAt, &report.ResolvedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan report")
		}

		if villageID != nil {
			report.VillageID = *villageID
		}
		if blockID != nil {
			report.BlockID = *blockID
		}
		if districtID != nil {
			report.DistrictID = *districtID
		}
		unmarshalDetails(detailsJSON, &report)

		reports = append(reports, report)
	}

	return reports, total, nil
}

// getHistory loads the review history in append order
func (r *PostgresRepository) getHistory(ctx context.Context, reportID types.ID) ([]domain.ReviewEntry, error) {
	query := `
		SELECT id, report_id, reviewed_by, review_date, action, status,
			comments, recommendations, priority_override, urgency_override, sequence
		FROM reports.review_entries
		WHERE report_id = $1
		ORDER BY sequence ASC`

	rows, err := r.pool.Query(ctx, query, reportID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load review history")
	}
	defer rows.Close()

	history := []domain.ReviewEntry{}
	for rows.Next() {
		var e domain.ReviewEntry
		err := rows.Scan(
			&e.ID, &e.ReportID, &e.ReviewedBy, &e.ReviewDate, &e.Action, &e.Status,
			&e.Comments, &e.Recommendations, &e.PriorityOverride, &e.UrgencyOverride, &e.Sequence,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan review entry")
		}
		history = append(history, e)
	}

	return history, nil
}

// saveEntry appends one review entry inside the caller's transaction
func saveEntry(ctx context.Context, tx pgx.Tx, e *domain.ReviewEntry) error {
	query := `
		INSERT INTO reports.review_entries (
			id, report_id, reviewed_by, review_date, action, status,
			comments, recommendations, priority_override, urgency_override, sequence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.ReportID, e.ReviewedBy, e.ReviewDate, e.Action, e.Status,
		e.Comments, e.Recommendations, e.PriorityOverride, e.UrgencyOverride, e.Sequence,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save review entry")
	}

	return nil
}

// nullID maps a zero ID to SQL NULL
func nullID(id types.ID) *types.ID {
	if id.IsZero() {
		return nil
	}
	return &id
}
