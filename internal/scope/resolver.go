package scope

import (
	"context"
	"fmt"

	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/shared/metrics"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Tree is the read-only view of the containment tree the resolver traverses.
// Implemented by hierarchy.Store.
type Tree interface {
	DistrictOfBlock(blockID types.ID) (types.ID, bool)
	BlockOfVillage(villageID types.ID) (types.ID, bool)
	BlocksInDistrict(districtID types.ID) []types.ID
	VillagesInBlock(blockID types.ID) []types.ID
}

// TreeSource supplies the current tree snapshot.
type TreeSource interface {
	Snapshot(ctx context.Context) (Tree, error)
}

// Resolver computes an actor's reachable ID sets. Resolution fails closed:
// an actor with no hierarchy anchor, or with an unknown role, resolves to
// empty sets rather than an error.
type Resolver struct {
	trees TreeSource
	cache Cache
}

// NewResolver creates a resolver. The cache may be nil.
func NewResolver(trees TreeSource, cache Cache) *Resolver {
	return &Resolver{trees: trees, cache: cache}
}

// Resolve computes the actor's scope, consulting the cache first. A nil
// actor resolves to the empty scope.
func (r *Resolver) Resolve(ctx context.Context, actor *auth.Actor) (Scope, error) {
	if actor == nil {
		return Empty(), nil
	}
	if actor.IsAdmin() {
		return Universal(), nil
	}

	key := cacheKey(actor)
	if r.cache != nil {
		cached, ok := r.cache.Get(ctx, key)
		metrics.RecordScopeCacheLookup(ok)
		if ok {
			return cached, nil
		}
	}

	resolved, err := r.resolve(ctx, actor)
	if err != nil {
		return Empty(), err
	}

	if r.cache != nil {
		r.cache.Set(ctx, key, resolved)
	}
	return resolved, nil
}

func (r *Resolver) resolve(ctx context.Context, actor *auth.Actor) (Scope, error) {
	if !actor.HasAnchor() {
		return Empty(), nil
	}

	tree, err := r.trees.Snapshot(ctx)
	if err != nil {
		return Empty(), err
	}

	switch actor.Role {
	case auth.RoleHealthOfficial:
		return districtScope(tree, actor.DistrictID), nil
	case auth.RoleBlockOfficer:
		return blockScope(tree, actor.BlockID), nil
	case auth.RoleASHAWorker, auth.RoleVolunteer:
		// Flat village assignment: no upward or downward derivation.
		return Scope{Districts: NewSet(), Blocks: NewSet(), Villages: NewSet(actor.VillageIDs...)}, nil
	default:
		// user and anything unrecognized reach nothing through scope;
		// plain users are handled by direct ownership comparison.
		return Empty(), nil
	}
}

func districtScope(tree Tree, districtID types.ID) Scope {
	blocks := tree.BlocksInDistrict(districtID)
	var villages []types.ID
	for _, b := range blocks {
		villages = append(villages, tree.VillagesInBlock(b)...)
	}
	return Scope{
		Districts: NewSet(districtID),
		Blocks:    NewSet(blocks...),
		Villages:  NewSet(villages...),
	}
}

func blockScope(tree Tree, blockID types.ID) Scope {
	s := Scope{
		Districts: NewSet(),
		Blocks:    NewSet(blockID),
		Villages:  NewSet(tree.VillagesInBlock(blockID)...),
	}
	if district, ok := tree.DistrictOfBlock(blockID); ok {
		s.Districts = NewSet(district)
	}
	return s
}

// cacheKey includes the anchors so a reassignment changes the key rather
// than serving the stale subtree for the full TTL.
func cacheKey(actor *auth.Actor) string {
	return fmt.Sprintf("scope:%s:%s:%s:%s:%d",
		actor.ID, actor.Role, actor.DistrictID, actor.BlockID, len(actor.VillageIDs))
}
