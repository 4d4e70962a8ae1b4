package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/authz"
	"github.com/gram-swasthya/platform/internal/hierarchy"
	"github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/events"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the administrative hierarchy
type Handler struct {
	repo     *hierarchy.Repository
	provider *hierarchy.Provider
	authz    *authz.Evaluator
	bus      events.EventBus
}

// NewHandler creates a new hierarchy handler
func NewHandler(repo *hierarchy.Repository, provider *hierarchy.Provider, evaluator *authz.Evaluator, bus events.EventBus) *Handler {
	return &Handler{repo: repo, provider: provider, authz: evaluator, bus: bus}
}

// DistrictRoutes registers district routes
func (h *Handler) DistrictRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListDistricts)
	r.Post("/", h.CreateDistrict)
	r.Route("/{districtID}", func(r chi.Router) {
		r.Get("/", h.GetDistrict)
		r.Put("/", h.UpdateDistrict)
		r.Delete("/", h.DeleteDistrict)
		r.Get("/blocks", h.ListBlocksInDistrict)
	})
	return r
}

// BlockRoutes registers block routes
func (h *Handler) BlockRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateBlock)
	r.Route("/{blockID}", func(r chi.Router) {
		r.Get("/", h.GetBlock)
		r.Put("/", h.UpdateBlock)
		r.Delete("/", h.DeleteBlock)
		r.Get("/villages", h.ListVillagesInBlock)
	})
	return r
}

// VillageRoutes registers village routes
func (h *Handler) VillageRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateVillage)
	r.Route("/{villageID}", func(r chi.Router) {
		r.Get("/", h.GetVillage)
		r.Put("/", h.UpdateVillage)
		r.Delete("/", h.DeleteVillage)
	})
	return r
}

// --- Request types ---

type DistrictRequest struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	State string `json:"state"`
}

type BlockRequest struct {
	Name       string   `json:"name"`
	Code       string   `json:"code"`
	DistrictID types.ID `json:"district_id"`
}

type VillageRequest struct {
	Name       string   `json:"name"`
	Code       string   `json:"code"`
	BlockID    types.ID `json:"block_id"`
	Population int      `json:"population"`
}

// --- District handlers ---

func (h *Handler) ListDistricts(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, auth.ActionDistrictRead, nil) {
		return
	}

	districts, err := h.repo.ListDistricts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": districts, "total": len(districts)})
}

func (h *Handler) GetDistrict(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "districtID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid district ID"))
		return
	}

	if !h.allow(w, r, auth.ActionDistrictRead, nil) {
		return
	}

	district, err := h.repo.FindDistrict(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, district)
}

func (h *Handler) CreateDistrict(w http.ResponseWriter, r *http.Request) {
	// Districts are top-level; creating one is an administrative action
	// with no scope anchor to test against.
	if !h.allow(w, r, auth.ActionDistrictCreate, nil) {
		return
	}

	var req DistrictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Name == "" || req.Code == "" {
		writeError(w, errors.Validation("invalid district", map[string]string{
			"name": "name and code are required",
		}))
		return
	}

	now := time.Now()
	district := &hierarchy.District{
		ID:        types.NewID(),
		Name:      req.Name,
		Code:      req.Code,
		State:     req.State,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.SaveDistrict(r.Context(), district); err != nil {
		writeError(w, err)
		return
	}

	h.invalidateAndPublish(r.Context(), "hierarchy.district_created", district.ID)
	writeJSON(w, http.StatusCreated, district)
}

func (h *Handler) UpdateDistrict(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "districtID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid district ID"))
		return
	}

	if !h.allow(w, r, auth.ActionDistrictUpdate, &authz.Resource{Kind: "district", ID: id, DistrictID: id}) {
		return
	}

	district, err := h.repo.FindDistrict(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req DistrictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Name != "" {
		district.Name = req.Name
	}
	if req.Code != "" {
		district.Code = req.Code
	}
	if req.State != "" {
		district.State = req.State
	}
	district.UpdatedAt = time.Now()

	if err := h.repo.UpdateDistrict(r.Context(), district); err != nil {
		writeError(w, err)
		return
	}

	h.invalidateAndPublish(r.Context(), "hierarchy.district_updated", district.ID)
	writeJSON(w, http.StatusOK, district)
}

func (h *Handler) DeleteDistrict(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "districtID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid district ID"))
		return
	}

	if !h.allow(w, r, auth.ActionDistrictDelete, &authz.Resource{Kind: "district", ID: id, DistrictID: id}) {
		return
	}

	if err := h.repo.DeleteDistrict(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.invalidateAndPublish(r.Context(), "hierarchy.district_deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListBlocksInDistrict(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "districtID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid district ID"))
		return
	}

	if !h.allow(w, r, auth.ActionBlockRead, nil) {
		return
	}

	blocks, err := h.repo.ListBlocks(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": blocks, "total": len(blocks)})
}

// --- Block handlers ---

func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "blockID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid block ID"))
		return
	}

	if !h.allow(w, r, auth.ActionBlockRead, nil) {
		return
	}

	block, err := h.repo.FindBlock(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, block)
}

func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Name == "" || req.Code == "" || req.DistrictID.IsZero() {
		writeError(w, errors.Validation("invalid block", map[string]string{
			"name": "name, code and district_id are required",
		}))
		return
	}

	// A new block is anchored to its parent district: only actors whose
	// scope covers that district may create it.
	if !h.allow(w, r, auth.ActionBlockCreate, &authz.Resource{Kind: "block", DistrictID: req.DistrictID}) {
		return
	}

	now := time.Now()
	block := &hierarchy.Block{
		ID:         types.NewID(),
		Name:       req.Name,
		Code:       req.Code,
		DistrictID: req.DistrictID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.repo.SaveBlock(r.Context(), block); err != nil {
		writeError(w, err)
		return
	}

	h.invalidateAndPublish(r.Context(), "hierarchy.block_created", block.ID)
	writeJSON(w, http.StatusCreated, block)
}

func (h *Handler) UpdateBlock(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "blockID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid block ID"))
		return
	}

	block, err := h.repo.FindBlock(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if !h.allow(w, r, auth.ActionBlockUpdate, &authz.Resource{Kind: "block", ID: id, BlockID: id, DistrictID: block.DistrictID}) {
		return
	}

	var req BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Name != "" {
		block.Name = req.Name
	}
	if req.Code != "" {
		block.Code = req.Code
	}
	block.UpdatedAt = time.Now()

	if err := h.repo.UpdateBlock(r.Context(), block); err != nil {
		writeError(w, err)
		return
	}

	h.invalidateAndPublish(r.Context(), "hierarchy.block_updated", block.ID)
	writeJSON(w, http.StatusOK, block)
}

func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "blockID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid block ID"))
		return
	}

	if !h.allow(w, r, auth.ActionBlockDelete, &authz.Resource{Kind: "block", ID: id, BlockID: id}) {
		return
	}

	if err := h.repo.DeleteBlock(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.invalidateAndPublish(r.Context(), "hierarchy.block_deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListVillagesInBlock(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "blockID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid block ID"))
		return
	}

	if !h.allow(w, r, auth.ActionVillageRead, nil) {
		return
	}

	villages, err := h.repo.ListVillages(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": villages, "total": len(villages)})
}

// --- Village handlers ---

func (h *Handler) GetVillage(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "villageID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid village ID"))
		return
	}

	if !h.allow(w, r, auth.ActionVillageRead, nil) {
		return
	}

	village, err := h.repo.FindVillage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, village)
}

func (h *Handler) CreateVillage(w http.ResponseWriter, r *http.Request) {
	var req VillageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Name == "" || req.Code == "" || req.BlockID.IsZero() {
		writeError(w, errors.Validation("invalid village", map[string]string{
			"name": "name, code and block_id are required",
		}))
		return
	}

	if !h.allow(w, r, auth.ActionVillageCreate, &authz.Resource{Kind: "village", BlockID: req.BlockID}) {
		return
	}

	now := time.Now()
	village := &hierarchy.Village{
		ID:         types.NewID(),
		Name:       req.Name,
		Code:       req.Code,
		BlockID:    req.BlockID,
		Population: req.Population,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.repo.SaveVillage(r.Context(), village); err != nil {
		writeError(w, err)
		return
	}

	h.invalidateAndPublish(r.Context(), "hierarchy.village_created", village.ID)
	writeJSON(w, http.StatusCreated, village)
}

func (h *Handler) UpdateVillage(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "villageID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid village ID"))
		return
	}

	village, err := h.repo.FindVillage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if !h.allow(w, r, auth.ActionVillageUpdate, &authz.Resource{Kind: "village", ID: id, VillageID: id}) {
		return
	}

	var req VillageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Name != "" {
		village.Name = req.Name
	}
	if req.Code != "" {
		village.Code = req.Code
	}
	if req.Population > 0 {
		village.Population = req.Population
	}
	village.UpdatedAt = time.Now()

	if err := h.repo.UpdateVillage(r.Context(), village); err != nil {
		writeError(w, err)
		return
	}

	h.invalidateAndPublish(r.Context(), "hierarchy.village_updated", village.ID)
	writeJSON(w, http.StatusOK, village)
}

func (h *Handler) DeleteVillage(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "villageID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid village ID"))
		return
	}

	if !h.allow(w, r, auth.ActionVillageDelete, &authz.Resource{Kind: "village", ID: id, VillageID: id}) {
		return
	}

	if err := h.repo.DeleteVillage(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.invalidateAndPublish(r.Context(), "hierarchy.village_deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// allow writes the error response when the actor may not act. Missing actor
// answers 401, capability or scope denial answers 403; hierarchy entities
// are shared reference data, so their existence is not hidden.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, action auth.Action, res *authz.Resource) bool {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return false
	}
	if !h.authz.Can(r.Context(), actor, action, res) {
		writeError(w, errors.Forbidden("not permitted"))
		return false
	}
	return true
}

func (h *Handler) invalidateAndPublish(ctx context.Context, eventType string, id types.ID) {
	h.provider.Invalidate()

	if h.bus == nil {
		return
	}
	event := events.NewEvent(eventType, "hierarchy", map[string]any{"id": id})
	if actor := auth.GetActor(ctx); actor != nil {
		event = event.WithActor(actor.ID, string(actor.Role))
	}
	h.bus.Publish(ctx, event)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
