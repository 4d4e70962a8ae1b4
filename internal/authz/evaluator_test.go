package authz

import (
	"context"
	"testing"

	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/hierarchy"
	"github.com/gram-swasthya/platform/internal/scope"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

var (
	districtA = types.NewID()
	districtB = types.NewID()
	blockA1   = types.NewID()
	blockB1   = types.NewID()
	villageA1 = types.NewID()
	villageA2 = types.NewID()
	villageB1 = types.NewID()
)

type storeSource struct {
	store *hierarchy.Store
}

func (s storeSource) Snapshot(context.Context) (scope.Tree, error) {
	return s.store, nil
}

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()

	store, err := hierarchy.NewStore(
		[]hierarchy.District{{ID: districtA}, {ID: districtB}},
		[]hierarchy.Block{
			{ID: blockA1, DistrictID: districtA},
			{ID: blockB1, DistrictID: districtB},
		},
		[]hierarchy.Village{
			{ID: villageA1, BlockID: blockA1},
			{ID: villageA2, BlockID: blockA1},
			{ID: villageB1, BlockID: blockB1},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	resolver := scope.NewResolver(storeSource{store}, nil)
	return NewEvaluator(auth.MustLoadPolicy(), resolver)
}

func TestCanCapabilityGate(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	asha := &auth.Actor{ID: types.NewID(), Role: auth.RoleASHAWorker, VillageIDs: []types.ID{villageA1}}
	res := &Resource{Kind: "report", VillageID: villageA1}

	if !e.Can(ctx, asha, auth.ActionReportCreate, res) {
		t.Error("expected asha worker to create a report in own village")
	}

	// The role never lists review, even inside scope
	if e.Can(ctx, asha, auth.ActionReportReview, res) {
		t.Error("capability gate must deny before scope is consulted")
	}
}

func TestCanNilActorAndNilResource(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	if e.Can(ctx, nil, auth.ActionReportRead, nil) {
		t.Error("nil actor must be denied")
	}

	official := &auth.Actor{ID: types.NewID(), Role: auth.RoleHealthOfficial, DistrictID: districtA}
	if !e.Can(ctx, official, auth.ActionReportCreate, nil) {
		t.Error("nil resource means the capability check alone decides")
	}
}

func TestCanAdminShortCircuit(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	admin := &auth.Actor{ID: types.NewID(), Role: auth.RoleAdmin}
	res := &Resource{Kind: "report", VillageID: villageB1}

	if !e.Can(ctx, admin, auth.ActionReportDelete, res) {
		t.Error("admin reaches any village")
	}
	if !e.Can(ctx, admin, auth.ActionDistrictDelete, &Resource{Kind: "district", DistrictID: districtB}) {
		t.Error("admin reaches any district action")
	}
}

func TestCanScopeMembership(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	official := &auth.Actor{ID: types.NewID(), Role: auth.RoleHealthOfficial, DistrictID: districtA}
	officer := &auth.Actor{ID: types.NewID(), Role: auth.RoleBlockOfficer, BlockID: blockA1}

	cases := []struct {
		name   string
		actor  *auth.Actor
		action auth.Action
		res    *Resource
		want   bool
	}{
		{"official reads report in own district village", official, auth.ActionReportRead, &Resource{Kind: "report", VillageID: villageA2}, true},
		{"official denied village in other district", official, auth.ActionReportRead, &Resource{Kind: "report", VillageID: villageB1}, false},
		{"official reads own district", official, auth.ActionDistrictRead, &Resource{Kind: "district", DistrictID: districtA}, true},
		{"official denied other district", official, auth.ActionDistrictRead, &Resource{Kind: "district", DistrictID: districtB}, false},
		{"officer reads village under own block", officer, auth.ActionVillageRead, &Resource{Kind: "village", VillageID: villageA1}, true},
		{"officer denied other block's village", officer, auth.ActionVillageRead, &Resource{Kind: "village", VillageID: villageB1}, false},
		{"officer reads own block", officer, auth.ActionBlockRead, &Resource{Kind: "block", BlockID: blockA1}, true},
		{"officer denied other block", officer, auth.ActionBlockRead, &Resource{Kind: "block", BlockID: blockB1}, false},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Can(ctx, tt.actor, tt.action, tt.res); got != tt.want {
				t.Errorf("Can = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanUserOwnership(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	user := &auth.Actor{ID: types.NewID(), Role: auth.RoleUser}

	own := &Resource{Kind: "report", VillageID: villageA1, OwnerID: user.ID}
	other := &Resource{Kind: "report", VillageID: villageA1, OwnerID: types.NewID()}

	if !e.Can(ctx, user, auth.ActionReportRead, own) {
		t.Error("user reaches own report")
	}
	if e.Can(ctx, user, auth.ActionReportRead, other) {
		t.Error("user must not reach another reporter's report")
	}
	if e.Can(ctx, user, auth.ActionReportRead, &Resource{Kind: "report", VillageID: villageA1}) {
		t.Error("ownerless resource is unreachable for a plain user")
	}
}

func TestCanAnchorlessOwnershipFallback(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	// A draft saved without a location has no hierarchy anchor; only the
	// reporter who owns it can reach it.
	asha := &auth.Actor{ID: types.NewID(), Role: auth.RoleASHAWorker, VillageIDs: []types.ID{villageA1}}
	own := &Resource{Kind: "report", OwnerID: asha.ID}

	if !e.Can(ctx, asha, auth.ActionReportCreate, own) {
		t.Error("reporter must be able to create an unlocated draft")
	}
	if !e.Can(ctx, asha, auth.ActionReportRead, own) {
		t.Error("reporter must reach their own unlocated draft")
	}
	if !e.Can(ctx, asha, auth.ActionReportUpdate, own) {
		t.Error("reporter must be able to update their own unlocated draft")
	}

	official := &auth.Actor{ID: types.NewID(), Role: auth.RoleHealthOfficial, DistrictID: districtA}
	if e.Can(ctx, official, auth.ActionReportRead, own) {
		t.Error("another actor must not reach an unlocated draft through scope")
	}
	if e.Can(ctx, official, auth.ActionReportRead, &Resource{Kind: "report"}) {
		t.Error("an anchorless resource with no owner must be unreachable")
	}
}

func TestCanUnanchoredActorDenied(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	// Assignment not yet completed by an administrator
	official := &auth.Actor{ID: types.NewID(), Role: auth.RoleHealthOfficial}
	if e.Can(ctx, official, auth.ActionReportRead, &Resource{Kind: "report", VillageID: villageA1}) {
		t.Error("actor without an anchor must resolve to empty scope")
	}
}
