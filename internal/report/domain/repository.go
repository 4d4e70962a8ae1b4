package domain

import (
	"context"

	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Repository defines the interface for report persistence
type Repository interface {
	Save(ctx context.Context, r *HealthReport) error
	FindByID(ctx context.Context, id types.ID) (*HealthReport, error)
	FindByNumber(ctx context.Context, reportNumber string) (*HealthReport, error)

	// Update persists field changes while the report is editable. The
	// status column is not touched.
	Update(ctx context.Context, r *HealthReport) error

	// CommitTransition persists a status change and appends the history
	// entry atomically, guarded by an optimistic check against the status
	// the transition was computed from. A stale writer gets
	// apperrors.StaleTransition.
	CommitTransition(ctx context.Context, r *HealthReport, expected Status, entry *ReviewEntry) error

	Delete(ctx context.Context, id types.ID) error

	// List returns reports matching the filter, pre-restricted by the
	// scope filter before pagination, plus the total count under the same
	// predicate.
	List(ctx context.Context, filter ListFilter) ([]HealthReport, int, error)
}

// ScopeFilter restricts a listing to what the actor can reach. Universal
// disables restriction; otherwise a report matches when its village is in
// Villages, or its owner is OwnerID.
type ScopeFilter struct {
	Universal bool
	Villages  []types.ID
	OwnerID   types.ID
}

// ListFilter defines filters for listing reports
type ListFilter struct {
	Type     *ReportType
	Status   *Status
	Priority *Priority
	Village  *types.ID
	Reporter *types.ID
	Scope    ScopeFilter
	Limit    int
	Offset   int
}
