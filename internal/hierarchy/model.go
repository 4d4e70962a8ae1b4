// Package hierarchy models the District -> Block -> Village containment tree
// that scopes every resource on the platform.
package hierarchy

import (
	"time"

	"github.com/gram-swasthya/platform/internal/shared/types"
)

// District is the top of the containment tree.
type District struct {
	ID        types.ID  `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Block belongs to exactly one district.
type Block struct {
	ID         types.ID  `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	DistrictID types.ID  `json:"district_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Village belongs to exactly one block.
type Village struct {
	ID         types.ID  `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	BlockID    types.ID  `json:"block_id"`
	Population int       `json:"population"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
