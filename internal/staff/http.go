package staff

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/authz"
	"github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/events"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Handler provides HTTP handlers for staff assignments
type Handler struct {
	repo  *Repository
	authz *authz.Evaluator
	bus   events.EventBus
}

// NewHandler creates a staff handler
func NewHandler(repo *Repository, evaluator *authz.Evaluator, bus events.EventBus) *Handler {
	return &Handler{repo: repo, authz: evaluator, bus: bus}
}

// Routes registers the staff assignment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListAssignments)
	r.Post("/", h.CreateAssignment)
	r.Route("/{assignmentID}", func(r chi.Router) {
		r.Get("/", h.GetAssignment)
		r.Delete("/", h.RemoveAssignment)
	})
	return r
}

type CreateAssignmentRequest struct {
	StaffID    types.ID  `json:"staff_id"`
	Role       auth.Role `json:"role"`
	DistrictID *types.ID `json:"district_id,omitempty"`
	BlockID    *types.ID `json:"block_id,omitempty"`
	VillageID  *types.ID `json:"village_id,omitempty"`
}

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}
	if !h.authz.Can(r.Context(), actor, auth.ActionStaffRead, nil) {
		writeError(w, errors.Forbidden("not permitted"))
		return
	}

	var assignments []Assignment
	var err error
	if s := r.URL.Query().Get("staff_id"); s != "" {
		staffID, perr := types.ParseID(s)
		if perr != nil {
			writeError(w, errors.BadRequest("invalid staff ID"))
			return
		}
		assignments, err = h.repo.ListByStaff(r.Context(), staffID)
	} else {
		assignments, err = h.repo.List(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": assignments, "total": len(assignments)})
}

func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid assignment ID"))
		return
	}

	a, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	// Out-of-scope assignments are indistinguishable from missing ones
	if !h.authz.Can(r.Context(), actor, auth.ActionStaffRead, resourceOf(a)) {
		writeError(w, errors.NotFound("assignment", id.String()))
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	var req CreateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	now := time.Now()
	a := &Assignment{
		ID:         types.NewID(),
		StaffID:    req.StaffID,
		Role:       req.Role,
		DistrictID: req.DistrictID,
		BlockID:    req.BlockID,
		VillageID:  req.VillageID,
		AssignedBy: actor.ID,
		StartDate:  now,
		CreatedAt:  now,
	}

	details := make(map[string]string)
	if a.StaffID.IsZero() {
		details["staff_id"] = "staff member is required"
	}
	if a.Role == "" {
		details["role"] = "role is required"
	}
	if a.AnchorCount() != 1 {
		details["anchor"] = "exactly one of district_id, block_id, village_id is required"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("invalid assignment", details))
		return
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionStaffAssign, resourceOf(a)) {
		writeError(w, errors.Forbidden("not permitted to assign staff here"))
		return
	}

	if err := h.repo.Save(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "staff.assigned", a)
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) RemoveAssignment(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid assignment ID"))
		return
	}

	a, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionStaffRemove, resourceOf(a)) {
		writeError(w, errors.NotFound("assignment", id.String()))
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "staff.unassigned", a)
	w.WriteHeader(http.StatusNoContent)
}

// resourceOf anchors the assignment at its hierarchy node for scope checks
func resourceOf(a *Assignment) *authz.Resource {
	res := &authz.Resource{Kind: "staff_assignment", ID: a.ID}
	if a.VillageID != nil {
		res.VillageID = *a.VillageID
	}
	if a.BlockID != nil {
		res.BlockID = *a.BlockID
	}
	if a.DistrictID != nil {
		res.DistrictID = *a.DistrictID
	}
	return res
}

func (h *Handler) publish(r *http.Request, eventType string, a *Assignment) {
	if h.bus == nil {
		return
	}
	event := events.NewEvent(eventType, "staff", map[string]any{"assignment": a})
	if actor := auth.GetActor(r.Context()); actor != nil {
		event = event.WithActor(actor.ID, string(actor.Role))
	}
	h.bus.Publish(r.Context(), event)
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
