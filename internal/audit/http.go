package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/authz"
	"github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Handler provides HTTP handlers for audit queries
type Handler struct {
	store Store
	authz *authz.Evaluator
}

// NewHandler creates an audit handler
func NewHandler(store Store, evaluator *authz.Evaluator) *Handler {
	return &Handler{store: store, authz: evaluator}
}

// Routes registers the audit routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListEntries)
	r.Get("/verify", h.VerifyChain)
	return r
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	filter := ListFilter{
		Action:       r.URL.Query().Get("action"),
		ResourceType: r.URL.Query().Get("resource_type"),
	}

	if a := r.URL.Query().Get("actor_id"); a != "" {
		actorID, err := types.ParseID(a)
		if err != nil {
			writeError(w, errors.BadRequest("invalid actor ID"))
			return
		}
		filter.ActorID = &actorID
	}
	if rid := r.URL.Query().Get("resource_id"); rid != "" {
		resourceID, err := types.ParseID(rid)
		if err != nil {
			writeError(w, errors.BadRequest("invalid resource ID"))
			return
		}
		filter.ResourceID = &resourceID
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.StartTime = &t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.EndTime = &t
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			filter.Offset = n
		}
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	entries, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": total,
	})
}

func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	intact, brokenAt, err := h.store.Verify(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"intact": intact}
	if !intact {
		resp["broken_at_sequence"] = brokenAt
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return false
	}
	if !h.authz.Can(r.Context(), actor, auth.ActionAuditRead, nil) {
		writeError(w, errors.Forbidden("not permitted"))
		return false
	}
	return true
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
