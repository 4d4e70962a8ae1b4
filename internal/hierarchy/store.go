package hierarchy

import (
	"fmt"

	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Store is a read-only snapshot of the containment tree. It is built once
// from the repository and shared between requests; hierarchy writes
// invalidate the snapshot through the Provider.
type Store struct {
	districts map[types.ID]struct{}
	blocks    map[types.ID]types.ID   // block -> owning district
	villages  map[types.ID]types.ID   // village -> owning block
	byDist    map[types.ID][]types.ID // district -> blocks
	byBlock   map[types.ID][]types.ID // block -> villages
}

// NewStore builds a snapshot and validates the tree: every block must
// resolve to a known district and every village to a known block.
func NewStore(districts []District, blocks []Block, villages []Village) (*Store, error) {
	s := &Store{
		districts: make(map[types.ID]struct{}, len(districts)),
		blocks:    make(map[types.ID]types.ID, len(blocks)),
		villages:  make(map[types.ID]types.ID, len(villages)),
		byDist:    make(map[types.ID][]types.ID),
		byBlock:   make(map[types.ID][]types.ID),
	}

	for _, d := range districts {
		s.districts[d.ID] = struct{}{}
	}
	for _, b := range blocks {
		if _, ok := s.districts[b.DistrictID]; !ok {
			return nil, fmt.Errorf("block %s references unknown district %s", b.ID, b.DistrictID)
		}
		s.blocks[b.ID] = b.DistrictID
		s.byDist[b.DistrictID] = append(s.byDist[b.DistrictID], b.ID)
	}
	for _, v := range villages {
		if _, ok := s.blocks[v.BlockID]; !ok {
			return nil, fmt.Errorf("village %s references unknown block %s", v.ID, v.BlockID)
		}
		s.villages[v.ID] = v.BlockID
		s.byBlock[v.BlockID] = append(s.byBlock[v.BlockID], v.ID)
	}

	return s, nil
}

// HasDistrict reports whether the district exists in the snapshot.
func (s *Store) HasDistrict(id types.ID) bool {
	_, ok := s.districts[id]
	return ok
}

// HasBlock reports whether the block exists in the snapshot.
func (s *Store) HasBlock(id types.ID) bool {
	_, ok := s.blocks[id]
	return ok
}

// HasVillage reports whether the village exists in the snapshot.
func (s *Store) HasVillage(id types.ID) bool {
	_, ok := s.villages[id]
	return ok
}

// DistrictOfBlock resolves a block upward to its district.
func (s *Store) DistrictOfBlock(blockID types.ID) (types.ID, bool) {
	d, ok := s.blocks[blockID]
	return d, ok
}

// BlockOfVillage resolves a village upward to its block.
func (s *Store) BlockOfVillage(villageID types.ID) (types.ID, bool) {
	b, ok := s.villages[villageID]
	return b, ok
}

// DistrictOfVillage resolves a village all the way up to its district.
func (s *Store) DistrictOfVillage(villageID types.ID) (types.ID, bool) {
	b, ok := s.villages[villageID]
	if !ok {
		return "", false
	}
	return s.blocks[b], true
}

// BlocksInDistrict returns the blocks directly under a district.
func (s *Store) BlocksInDistrict(districtID types.ID) []types.ID {
	return s.byDist[districtID]
}

// VillagesInBlock returns the villages directly under a block.
func (s *Store) VillagesInBlock(blockID types.ID) []types.ID {
	return s.byBlock[blockID]
}
