// Package staff manages assignments of staff members to hierarchy nodes. An
// assignment anchors a staff member to exactly one district, block or
// village with the role they hold there.
package staff

import (
	"time"

	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Assignment links a staff member to a hierarchy node
type Assignment struct {
	ID      types.ID  `json:"id"`
	StaffID types.ID  `json:"staff_id"`
	Role    auth.Role `json:"role"`

	// Exactly one anchor is set
	DistrictID *types.ID `json:"district_id,omitempty"`
	BlockID    *types.ID `json:"block_id,omitempty"`
	VillageID  *types.ID `json:"village_id,omitempty"`

	AssignedBy types.ID  `json:"assigned_by"`
	StartDate  time.Time `json:"start_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// AnchorCount returns how many hierarchy anchors are set
func (a *Assignment) AnchorCount() int {
	n := 0
	if a.DistrictID != nil && !a.DistrictID.IsZero() {
		n++
	}
	if a.BlockID != nil && !a.BlockID.IsZero() {
		n++
	}
	if a.VillageID != nil && !a.VillageID.IsZero() {
		n++
	}
	return n
}
