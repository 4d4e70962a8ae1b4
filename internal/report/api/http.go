package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gram-swasthya/platform/internal/auth"
	"github.com/gram-swasthya/platform/internal/authz"
	"github.com/gram-swasthya/platform/internal/hierarchy"
	"github.com/gram-swasthya/platform/internal/notification"
	"github.com/gram-swasthya/platform/internal/report/domain"
	"github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/events"
	"github.com/gram-swasthya/platform/internal/shared/metrics"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the report module
type Handler struct {
	repo      domain.Repository
	engine    *domain.Engine
	validator *domain.Validator
	authz     *authz.Evaluator
	trees     *hierarchy.Provider
	bus       events.EventBus
	notifier  notification.Notifier
}

// NewHandler creates a new report handler
func NewHandler(
	repo domain.Repository,
	engine *domain.Engine,
	validator *domain.Validator,
	evaluator *authz.Evaluator,
	trees *hierarchy.Provider,
	bus events.EventBus,
	notifier notification.Notifier,
) *Handler {
	return &Handler{
		repo:      repo,
		engine:    engine,
		validator: validator,
		authz:     evaluator,
		trees:     trees,
		bus:       bus,
		notifier:  notifier,
	}
}

// Routes registers the report routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListReports)
	r.Post("/", h.CreateReport)

	r.Route("/{reportID}", func(r chi.Router) {
		r.Get("/", h.GetReport)
		r.Put("/", h.UpdateReport)
		r.Delete("/", h.DeleteReport)

		r.Post("/submit", h.SubmitReport)
		r.Post("/review", h.ReviewReport)
		r.Post("/escalate", h.EscalateReport)
		r.Post("/resolve", h.ResolveReport)
	})

	return r
}

// --- Request types ---

type CreateReportRequest struct {
	ReportType  domain.ReportType   `json:"report_type"`
	Status      domain.Status       `json:"status,omitempty"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	VillageID   types.ID            `json:"village_id"`
	Priority    domain.Priority     `json:"priority,omitempty"`
	Urgency     domain.UrgencyLevel `json:"urgency_level,omitempty"`

	DiseaseOutbreakDetails *domain.DiseaseOutbreakDetails `json:"disease_outbreak_details,omitempty"`
	WaterQualityDetails    *domain.WaterQualityDetails    `json:"water_quality_details,omitempty"`
	InfrastructureDetails  *domain.InfrastructureDetails  `json:"infrastructure_details,omitempty"`
}

type UpdateReportRequest struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	VillageID   *types.ID            `json:"village_id,omitempty"`
	Priority    *domain.Priority     `json:"priority,omitempty"`
	Urgency     *domain.UrgencyLevel `json:"urgency_level,omitempty"`

	DiseaseOutbreakDetails *domain.DiseaseOutbreakDetails `json:"disease_outbreak_details,omitempty"`
	WaterQualityDetails    *domain.WaterQualityDetails    `json:"water_quality_details,omitempty"`
	InfrastructureDetails  *domain.InfrastructureDetails  `json:"infrastructure_details,omitempty"`
}

type ReviewRequest struct {
	Status          domain.Status `json:"status"`
	Comments        string        `json:"comments"`
	Recommendations string        `json:"recommendations,omitempty"`

	PriorityOverride *domain.Priority     `json:"priority_override,omitempty"`
	UrgencyOverride  *domain.UrgencyLevel `json:"urgency_override,omitempty"`
}

type EscalateRequest struct {
	EscalateTo           types.ID             `json:"escalate_to"`
	EscalationReason     string               `json:"escalation_reason"`
	UrgencyJustification string               `json:"urgency_justification,omitempty"`
	UrgencyOverride      *domain.UrgencyLevel `json:"urgency_override,omitempty"`
}

type ResolveRequest struct {
	Comments        string `json:"comments"`
	Recommendations string `json:"recommendations,omitempty"`
}

// --- Handlers ---

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	filter := domain.ListFilter{}

	if t := r.URL.Query().Get("type"); t != "" {
		reportType := domain.ReportType(t)
		filter.Type = &reportType
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.Status(s)
		filter.Status = &status
	}
	if p := r.URL.Query().Get("priority"); p != "" {
		priority := domain.Priority(p)
		filter.Priority = &priority
	}
	if v := r.URL.Query().Get("village_id"); v != "" {
		villageID, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid village ID"))
			return
		}
		filter.Village = &villageID
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

	// Restrict to the actor's scope before pagination so neither the page
	// nor the total count leaks out-of-scope reports.
	scopeFilter, err := h.scopeFilter(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	filter.Scope = scopeFilter

	reports, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  reports,
		"total": total,
	})
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	report := h.loadVisible(w, r, actor)
	if report == nil {
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	switch req.Status {
	case "", domain.StatusDraft, domain.StatusSubmitted:
	default:
		writeError(w, errors.BadRequest("reports can only be created as draft or submitted"))
		return
	}

	report, err := domain.NewHealthReport(req.ReportType, actor.ID)
	if err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	report.Title = req.Title
	report.Description = req.Description
	if req.Priority != "" {
		report.Priority = req.Priority
	}
	if req.Urgency != "" {
		report.Urgency = req.Urgency
	}
	report.DiseaseOutbreakDetails = req.DiseaseOutbreakDetails
	report.WaterQualityDetails = req.WaterQualityDetails
	report.InfrastructureDetails = req.InfrastructureDetails

	if !req.VillageID.IsZero() {
		if err := h.anchorReport(r.Context(), report, req.VillageID); err != nil {
			writeError(w, err)
			return
		}
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionReportCreate, resourceOf(report)) {
		writeError(w, errors.Forbidden("not permitted to create reports here"))
		return
	}

	if req.Status == domain.StatusSubmitted {
		input := domain.TransitionInput{ActorID: actor.ID, ActorIsAdmin: actor.IsAdmin()}
		if _, err := h.engine.Apply(report, domain.ActionSubmit, input); err != nil {
			writeError(w, err)
			return
		}
	} else {
		if errs := h.validator.Validate(report, false); len(errs) > 0 {
			writeError(w, fieldErrors(errs))
			return
		}
	}

	if err := h.repo.Save(r.Context(), report); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordReportCreated(string(report.Type), string(report.Status))
	h.publishEvents(r.Context(), actor, report)

	writeJSON(w, http.StatusCreated, report)
}

func (h *Handler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	report := h.loadVisible(w, r, actor)
	if report == nil {
		return
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionReportUpdate, resourceOf(report)) {
		writeError(w, errors.Forbidden("not permitted to update this report"))
		return
	}

	if !report.IsEditable() {
		writeError(w, errors.InvalidTransition(string(report.Status), "update"))
		return
	}

	var req UpdateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Title != nil {
		report.Title = *req.Title
	}
	if req.Description != nil {
		report.Description = *req.Description
	}
	if req.Priority != nil {
		report.Priority = *req.Priority
	}
	if req.Urgency != nil {
		report.Urgency = *req.Urgency
	}
	if req.DiseaseOutbreakDetails != nil {
		report.DiseaseOutbreakDetails = req.DiseaseOutbreakDetails
	}
	if req.WaterQualityDetails != nil {
		report.WaterQualityDetails = req.WaterQualityDetails
	}
	if req.InfrastructureDetails != nil {
		report.InfrastructureDetails = req.InfrastructureDetails
	}
	if req.VillageID != nil {
		if err := h.anchorReport(r.Context(), report, *req.VillageID); err != nil {
			writeError(w, err)
			return
		}
	}

	// The lenient schema covers draft saves only. A report sent back for
	// revision was already complete once and must stay complete.
	if errs := h.validator.Validate(report, report.Status != domain.StatusDraft); len(errs) > 0 {
		writeError(w, fieldErrors(errs))
		return
	}

	report.UpdatedAt = time.Now()
	if err := h.repo.Update(r.Context(), report); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	report := h.loadVisible(w, r, actor)
	if report == nil {
		return
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionReportDelete, resourceOf(report)) {
		writeError(w, errors.Forbidden("not permitted to delete reports"))
		return
	}

	// Raise the deletion event before the row disappears so the audit
	// trail records what was removed and by whom.
	h.publish(r.Context(), actor, events.NewEvent("report.deleted", "report", map[string]any{
		"report_id": report.ID.String(),
		"report":    report.Ref(),
	}))

	if err := h.repo.Delete(r.Context(), report.ID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	report := h.loadVisible(w, r, actor)
	if report == nil {
		return
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionReportSubmit, resourceOf(report)) {
		writeError(w, errors.Forbidden("not permitted to submit this report"))
		return
	}

	action := domain.ActionSubmit
	if report.Status == domain.StatusNeedsRevision {
		action = domain.ActionResubmit
	}

	input := domain.TransitionInput{ActorID: actor.ID, ActorIsAdmin: actor.IsAdmin()}
	h.applyTransition(w, r, actor, report, action, input)
}

func (h *Handler) ReviewReport(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	report := h.loadVisible(w, r, actor)
	if report == nil {
		return
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionReportReview, resourceOf(report)) {
		writeError(w, errors.Forbidden("not permitted to review this report"))
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	action, ok := reviewAction(req.Status)
	if !ok {
		writeError(w, errors.BadRequest("unsupported review status: "+string(req.Status)))
		return
	}

	input := domain.TransitionInput{
		ActorID:          actor.ID,
		ActorIsAdmin:     actor.IsAdmin(),
		Comments:         req.Comments,
		Recommendations:  req.Recommendations,
		Reason:           req.Comments,
		PriorityOverride: req.PriorityOverride,
		UrgencyOverride:  req.UrgencyOverride,
	}

	updated := h.applyTransition(w, r, actor, report, action, input)
	if updated && action == domain.ActionRequestRevision {
		h.notifier.Notify(r.Context(), notification.Notice{
			Kind:         notification.KindRevisionRequested,
			RecipientID:  report.ReporterID,
			ReportID:     report.ID,
			ReportNumber: report.ReportNumber,
			Message:      req.Comments,
		})
	}
}

func (h *Handler) EscalateReport(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	report := h.loadVisible(w, r, actor)
	if report == nil {
		return
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionReportEscalate, resourceOf(report)) {
		writeError(w, errors.Forbidden("not permitted to escalate this report"))
		return
	}

	var req EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	input := domain.TransitionInput{
		ActorID:         actor.ID,
		ActorIsAdmin:    actor.IsAdmin(),
		Reason:          req.EscalationReason,
		Comments:        req.EscalationReason,
		Recommendations: req.UrgencyJustification,
		EscalateTo:      req.EscalateTo,
		UrgencyOverride: req.UrgencyOverride,
	}

	if h.applyTransition(w, r, actor, report, domain.ActionEscalate, input) {
		metrics.RecordReportEscalation(string(report.Type))
		h.notifier.Notify(r.Context(), notification.Notice{
			Kind:         notification.KindEscalated,
			RecipientID:  req.EscalateTo,
			ReportID:     report.ID,
			ReportNumber: report.ReportNumber,
			Message:      req.EscalationReason,
		})
	}
}

func (h *Handler) ResolveReport(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	report := h.loadVisible(w, r, actor)
	if report == nil {
		return
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionReportResolve, resourceOf(report)) {
		writeError(w, errors.Forbidden("not permitted to resolve this report"))
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	action := domain.ActionResolve
	if report.Status == domain.StatusApproved {
		action = domain.ActionClose
	}

	input := domain.TransitionInput{
		ActorID:         actor.ID,
		ActorIsAdmin:    actor.IsAdmin(),
		Comments:        req.Comments,
		Recommendations: req.Recommendations,
	}

	if h.applyTransition(w, r, actor, report, action, input) {
		h.notifier.Notify(r.Context(), notification.Notice{
			Kind:         notification.KindResolved,
			RecipientID:  report.ReporterID,
			ReportID:     report.ID,
			ReportNumber: report.ReportNumber,
			Message:      req.Comments,
		})
	}
}

// --- Helpers ---

// applyTransition runs the workflow action and commits it under the
// optimistic status check. Returns true when the transition was committed
// and the response written.
func (h *Handler) applyTransition(
	w http.ResponseWriter,
	r *http.Request,
	actor *auth.Actor,
	report *domain.HealthReport,
	action domain.Action,
	input domain.TransitionInput,
) bool {
	expected := report.Status

	entry, err := h.engine.Apply(report, action, input)
	if err != nil {
		writeError(w, err)
		return false
	}

	if err := h.repo.CommitTransition(r.Context(), report, expected, entry); err != nil {
		writeError(w, err)
		return false
	}

	metrics.RecordReportTransition(string(action), string(expected), string(report.Status))
	h.publishEvents(r.Context(), actor, report)

	writeJSON(w, http.StatusOK, report)
	return true
}

// loadVisible loads the report and hides its existence from actors whose
// scope does not cover it: both a missing ID and an out-of-scope report
// answer 404.
func (h *Handler) loadVisible(w http.ResponseWriter, r *http.Request, actor *auth.Actor) *domain.HealthReport {
	if actor == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return nil
	}

	id, err := types.ParseID(chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid report ID"))
		return nil
	}

	report, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil
	}

	if !h.authz.Can(r.Context(), actor, auth.ActionReportRead, resourceOf(report)) {
		writeError(w, errors.NotFound("report", id.String()))
		return nil
	}

	return report
}

// anchorReport sets the village anchor and denormalizes block and district
// from the hierarchy snapshot
func (h *Handler) anchorReport(ctx context.Context, report *domain.HealthReport, villageID types.ID) error {
	tree, err := h.trees.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load hierarchy")
	}

	if !tree.HasVillage(villageID) {
		return errors.Validation("invalid location", map[string]string{
			"village_id": "unknown village",
		})
	}

	report.VillageID = villageID
	if blockID, ok := tree.BlockOfVillage(villageID); ok {
		report.BlockID = blockID
		if districtID, ok := tree.DistrictOfBlock(blockID); ok {
			report.DistrictID = districtID
		}
	}

	return nil
}

// scopeFilter converts the actor's resolved scope into a listing restriction
func (h *Handler) scopeFilter(ctx context.Context, actor *auth.Actor) (domain.ScopeFilter, error) {
	if actor.IsAdmin() {
		return domain.ScopeFilter{Universal: true}, nil
	}

	if actor.Role == auth.RoleUser {
		return domain.ScopeFilter{OwnerID: actor.ID}, nil
	}

	resolved, err := h.authz.Scope(ctx, actor)
	if err != nil {
		return domain.ScopeFilter{}, errors.Wrap(err, "failed to resolve scope")
	}

	return domain.ScopeFilter{
		Villages: resolved.Villages.IDs(),
		OwnerID:  actor.ID,
	}, nil
}

// reviewAction maps a requested status to the workflow action driving it
func reviewAction(status domain.Status) (domain.Action, bool) {
	switch status {
	case domain.StatusUnderReview:
		return domain.ActionBeginReview, true
	case domain.StatusApproved:
		return domain.ActionApprove, true
	case domain.StatusRejected:
		return domain.ActionReject, true
	case domain.StatusNeedsRevision:
		return domain.ActionRequestRevision, true
	}
	return "", false
}

// resourceOf builds the authorization resource for a report
func resourceOf(report *domain.HealthReport) *authz.Resource {
	return &authz.Resource{
		Kind:       "report",
		ID:         report.ID,
		VillageID:  report.VillageID,
		BlockID:    report.BlockID,
		DistrictID: report.DistrictID,
		OwnerID:    report.ReporterID,
	}
}

// fieldErrors folds validator output into a 400 with per-field messages
func fieldErrors(errs []domain.FieldError) error {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field] = fe.Message
	}
	return errors.Validation("report failed validation", details)
}

func (h *Handler) publishEvents(ctx context.Context, actor *auth.Actor, report *domain.HealthReport) {
	for _, e := range report.GetDomainEvents() {
		event := events.NewEvent(e.Type, "report", map[string]any{
			"report_id": e.ReportID.String(),
			"report":    e.Report,
			"entry":     e.Entry,
		})
		if actor != nil {
			event = event.WithActor(actor.ID, string(actor.Role))
		}
		h.publish(ctx, actor, event)
	}
}

func (h *Handler) publish(ctx context.Context, actor *auth.Actor, event events.Event) {
	if h.bus == nil {
		return
	}
	if actor != nil && event.ActorID.IsZero() {
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
