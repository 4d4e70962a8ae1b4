package auth

import (
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Actor is the authenticated principal performing an action. Exactly one
// hierarchy anchor is populated depending on role: health officials carry a
// district, block officers a block, ASHA workers and volunteers a flat list
// of villages. Admins and plain users carry no anchor.
//
// The actor is always passed explicitly into scope resolution, permission
// checks and workflow transitions; nothing in the core reads session state
// from a global.
type Actor struct {
	ID         types.ID   `json:"id"`
	Role       Role       `json:"role"`
	DistrictID types.ID   `json:"district_id,omitempty"`
	BlockID    types.ID   `json:"block_id,omitempty"`
	VillageIDs []types.ID `json:"village_ids,omitempty"`
}

// IsAdmin reports whether the actor has unrestricted scope.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// HasAnchor reports whether the actor's hierarchy anchor for its role is
// populated. An actor without an anchor is scoped out of everything until an
// administrator completes the assignment.
func (a *Actor) HasAnchor() bool {
	if a == nil {
		return false
	}
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleHealthOfficial:
		return !a.DistrictID.IsZero()
	case RoleBlockOfficer:
		return !a.BlockID.IsZero()
	case RoleASHAWorker, RoleVolunteer:
		return len(a.VillageIDs) > 0
	default:
		return false
	}
}
