package scope

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// stubTree is a fixed containment tree:
//
//	d1 -> b1 -> v1, v2
//	      b2 -> v3
//	d2 -> b3 -> v4
type stubTree struct{}

var (
	d1 = types.ID("0c7b5f9e-1111-4a61-9e1f-0000000000d1")
	d2 = types.ID("0c7b5f9e-1111-4a61-9e1f-0000000000d2")
	b1 = types.ID("0c7b5f9e-2222-4a61-9e1f-0000000000b1")
	b2 = types.ID("0c7b5f9e-2222-4a61-9e1f-0000000000b2")
	b3 = types.ID("0c7b5f9e-2222-4a61-9e1f-0000000000b3")
	v1 = types.ID("0c7b5f9e-3333-4a61-9e1f-0000000000e1")
	v2 = types.ID("0c7b5f9e-3333-4a61-9e1f-0000000000e2")
	v3 = types.ID("0c7b5f9e-3333-4a61-9e1f-0000000000e3")
	v4 = types.ID("0c7b5f9e-3333-4a61-9e1f-0000000000e4")
)

func (stubTree) DistrictOfBlock(blockID types.ID) (types.ID, bool) {
	switch blockID {
	case b1, b2:
		return d1, true
	case b3:
		return d2, true
	}
	return "", false
}

func (stubTree) BlockOfVillage(villageID types.ID) (types.ID, bool) {
	switch villageID {
	case v1, v2:
		return b1, true
	case v3:
		return b2, true
	case v4:
		return b3, true
	}
	return "", false
}

func (stubTree) BlocksInDistrict(districtID types.ID) []types.ID {
	switch districtID {
	case d1:
		return []types.ID{b1, b2}
	case d2:
		return []types.ID{b3}
	}
	return nil
}

func (stubTree) VillagesInBlock(blockID types.ID) []types.ID {
	switch blockID {
	case b1:
		return []types.ID{v1, v2}
	case b2:
		return []types.ID{v3}
	case b3:
		return []types.ID{v4}
	}
	return nil
}

// stubSource counts snapshot loads so cache behavior can be observed
type stubSource struct {
	loads int
	err   error
}

func (s *stubSource) Snapshot(context.Context) (Tree, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return stubTree{}, nil
}

func assertMembers(t *testing.T, set Set, want ...types.ID) {
	t.Helper()
	if set.IsUniversal() {
		t.Fatal("expected bounded set, got universal")
	}
	if set.Len() != len(want) {
		t.Fatalf("expected %d members, got %v", len(want), set.IDs())
	}
	for _, id := range want {
		if !set.Contains(id) {
			t.Errorf("expected %s in set %v", id, set.IDs())
		}
	}
}

func TestResolveHealthOfficial(t *testing.T) {
	r := NewResolver(&stubSource{}, nil)

	actor := &auth.Actor{ID: types.NewID(), Role: auth.RoleHealthOfficial, DistrictID: d1}
	s, err := r.Resolve(context.Background(), actor)
	if err != nil {
		t.Fatal(err)
	}

	assertMembers(t, s.Districts, d1)
	assertMembers(t, s.Blocks, b1, b2)
	assertMembers(t, s.Villages, v1, v2, v3)

	if s.Villages.Contains(v4) {
		t.Error("district scope leaked into another district's village")
	}
}

func TestResolveBlockOfficer(t *testing.T) {
	r := NewResolver(&stubSource{}, nil)

	actor := &auth.Actor{ID: types.NewID(), Role: auth.RoleBlockOfficer, BlockID: b2}
	s, err := r.Resolve(context.Background(), actor)
	if err != nil {
		t.Fatal(err)
	}

	assertMembers(t, s.Districts, d1)
	assertMembers(t, s.Blocks, b2)
	assertMembers(t, s.Villages, v3)
}

func TestResolveVillageRolesAreFlat(t *testing.T) {
	r := NewResolver(&stubSource{}, nil)

	for _, role := range []auth.Role{auth.RoleASHAWorker, auth.RoleVolunteer} {
		t.Run(string(role), func(t *testing.T) {
			actor := &auth.Actor{ID: types.NewID(), Role: role, VillageIDs: []types.ID{v1, v4}}
			s, err := r.Resolve(context.Background(), actor)
			if err != nil {
				t.Fatal(err)
			}

			// Village assignment derives nothing upward
			assertMembers(t, s.Districts)
			assertMembers(t, s.Blocks)
			assertMembers(t, s.Villages, v1, v4)
		})
	}
}

func TestResolveAdminIsUniversal(t *testing.T) {
	source := &stubSource{}
	r := NewResolver(source, nil)

	actor := &auth.Actor{ID: types.NewID(), Role: auth.RoleAdmin}
	s, err := r.Resolve(context.Background(), actor)
	if err != nil {
		t.Fatal(err)
	}

	if !s.Districts.IsUniversal() || !s.Blocks.IsUniversal() || !s.Villages.IsUniversal() {
		t.Error("expected universal scope for admin")
	}
	if source.loads != 0 {
		t.Error("admin resolution should not load the tree")
	}
}

func TestResolveFailsClosed(t *testing.T) {
	r := NewResolver(&stubSource{}, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor *auth.Actor
	}{
		{"nil actor", nil},
		{"official without district", &auth.Actor{ID: types.NewID(), Role: auth.RoleHealthOfficial}},
		{"block officer without block", &auth.Actor{ID: types.NewID(), Role: auth.RoleBlockOfficer}},
		{"asha without villages", &auth.Actor{ID: types.NewID(), Role: auth.RoleASHAWorker}},
		{"plain user", &auth.Actor{ID: types.NewID(), Role: auth.RoleUser}},
		{"unknown role", &auth.Actor{ID: types.NewID(), Role: auth.Role("superuser"), DistrictID: d1}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Resolve(ctx, tt.actor)
			if err != nil {
				t.Fatal(err)
			}
			if !s.IsEmpty() {
				t.Errorf("expected empty scope, got %+v", s)
			}
		})
	}
}

func TestResolveTreeErrorYieldsEmptyScope(t *testing.T) {
	source := &stubSource{err: errors.New("load failed")}
	r := NewResolver(source, nil)

	actor := &auth.Actor{ID: types.NewID(), Role: auth.RoleHealthOfficial, DistrictID: d1}
	s, err := r.Resolve(context.Background(), actor)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if !s.IsEmpty() {
		t.Error("expected empty scope on tree failure")
	}
}

func TestResolveUsesCache(t *testing.T) {
	source := &stubSource{}
	r := NewResolver(source, NewMemoryCache(time.Minute))
	ctx := context.Background()

	actor := &auth.Actor{ID: types.NewID(), Role: auth.RoleHealthOfficial, DistrictID: d1}

	first, err := r.Resolve(ctx, actor)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(ctx, actor)
	if err != nil {
		t.Fatal(err)
	}

	if source.loads != 1 {
		t.Errorf("expected one tree load, got %d", source.loads)
	}
	if len(first.Villages.IDs()) != len(second.Villages.IDs()) {
		t.Error("cached scope differs from resolved scope")
	}

	// A reassigned anchor changes the cache key, so the stale subtree is
	// not served.
	actor.DistrictID = d2
	third, err := r.Resolve(ctx, actor)
	if err != nil {
		t.Fatal(err)
	}
	if source.loads != 2 {
		t.Errorf("expected reassignment to bypass the cached entry, got %d loads", source.loads)
	}
	assertMembers(t, third.Villages, v4)
}

// TestScopeJSONRoundTrip covers the encoding the Redis cache stores
func TestScopeJSONRoundTrip(t *testing.T) {
	s := Scope{Districts: NewSet(d1), Blocks: NewSet(b1, b2), Villages: UniversalSet()}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}

	var got Scope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	if !got.Blocks.Contains(b2) || got.Blocks.Contains(b3) {
		t.Error("bounded set not preserved")
	}
	if !got.Villages.IsUniversal() {
		t.Error("universal sentinel not preserved")
	}
}
