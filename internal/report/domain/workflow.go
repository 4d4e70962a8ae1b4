package domain

import (
	"time"
	"unicode/utf8"

	apperrors "github.com/gram-swasthya/platform/internal/shared/errors"
	"github.com/gram-swasthya/platform/internal/shared/types"
)

// Action is a workflow action driving a status transition
type Action string

const (
	ActionSubmit          Action = "submit"
	ActionBeginReview     Action = "beginReview"
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequestRevision Action = "requestRevision"
	ActionEscalate        Action = "escalate"
	ActionResubmit        Action = "resubmit"
	ActionResolve         Action = "resolve"
	ActionClose           Action = "close"
)

// transitionKey identifies one edge of the state machine
type transitionKey struct {
	From   Status
	Action Action
}

// transitions is the complete edge set. Any (from, action) pair absent here
// is illegal and rejected, never silently ignored.
var transitions = map[transitionKey]Status{
	{StatusDraft, ActionSubmit}:                StatusSubmitted,
	{StatusSubmitted, ActionBeginReview}:       StatusUnderReview,
	{StatusUnderReview, ActionApprove}:         StatusApproved,
	{StatusUnderReview, ActionReject}:          StatusRejected,
	{StatusUnderReview, ActionRequestRevision}: StatusNeedsRevision,
	{StatusUnderReview, ActionEscalate}:        StatusEscalated,
	{StatusNeedsRevision, ActionResubmit}:      StatusSubmitted,
	{StatusEscalated, ActionResolve}:           StatusResolved,
	{StatusEscalated, ActionReject}:            StatusRejected,
	{StatusEscalated, ActionRequestRevision}:   StatusNeedsRevision,
	{StatusApproved, ActionClose}:              StatusResolved,
}

// TransitionInput carries the actor and payload of a workflow action
type TransitionInput struct {
	ActorID      types.ID
	ActorIsAdmin bool

	Comments        string
	Recommendations string
	Reason          string
	EscalateTo      types.ID

	// Optional overrides, recorded in the appended history entry
	PriorityOverride *Priority
	UrgencyOverride  *UrgencyLevel
}

// Engine applies workflow actions to reports. All guards run before any
// mutation; a failed guard leaves the report untouched.
type Engine struct {
	validator *Validator
}

// NewEngine creates a workflow engine
func NewEngine(validator *Validator) *Engine {
	return &Engine{validator: validator}
}

// Apply executes the action against the report in memory. On success the
// status is updated, one ReviewEntry is appended to the history, and the
// entry is returned for persistence. The caller commits the change with an
// optimistic status check against the pre-transition status.
func (e *Engine) Apply(r *HealthReport, action Action, in TransitionInput) (*ReviewEntry, error) {
	target, ok := transitions[transitionKey{r.Status, action}]
	if !ok {
		return nil, apperrors.InvalidTransition(string(r.Status), string(action))
	}

	// Actions on an escalated report are reserved for the escalation target
	if r.Status == StatusEscalated && !in.ActorIsAdmin {
		if r.EscalatedTo == nil || *r.EscalatedTo != in.ActorID {
			return nil, apperrors.Forbidden("action reserved for the escalation target")
		}
	}

	if err := e.guard(r, action, in); err != nil {
		return nil, err
	}

	now := time.Now()
	r.Status = target
	r.UpdatedAt = now

	switch action {
	case ActionSubmit, ActionResubmit:
		r.SubmittedAt = &now
	case ActionEscalate:
		r.EscalatedTo = &in.EscalateTo
	case ActionResolve, ActionClose:
		r.ResolvedAt = &now
	}

	if in.PriorityOverride != nil {
		r.Priority = *in.PriorityOverride
	}
	if in.UrgencyOverride != nil {
		r.Urgency = *in.UrgencyOverride
	}

	// Submission is not a review: the history log starts once a reviewer
	// acts on the report.
	var entry *ReviewEntry
	if action != ActionSubmit && action != ActionResubmit {
		comments := in.Comments
		if action == ActionReject || action == ActionEscalate {
			comments = in.Reason
		}

		e := ReviewEntry{
			ID:               types.NewID(),
			ReportID:         r.ID,
			ReviewedBy:       in.ActorID,
			ReviewDate:       now,
			Action:           action,
			Status:           target,
			Comments:         comments,
			Recommendations:  in.Recommendations,
			PriorityOverride: in.PriorityOverride,
			UrgencyOverride:  in.UrgencyOverride,
			Sequence:         len(r.ReviewHistory) + 1,
		}
		r.ReviewHistory = append(r.ReviewHistory, e)
		entry = &e
	}

	r.raise("report."+eventName(action), entry)

	return entry, nil
}

// guard enforces the per-edge preconditions from the transition table
func (e *Engine) guard(r *HealthReport, action Action, in TransitionInput) error {
	switch action {
	case ActionSubmit, ActionResubmit:
		if errs := e.validator.Validate(r, true); len(errs) > 0 {
			return validationError(errs)
		}

	case ActionApprove:
		if utf8.RuneCountInString(in.Comments) < 10 {
			return apperrors.Validation("invalid review payload", map[string]string{
				"comments": "must be at least 10 characters",
			})
		}

	case ActionReject:
		if n := utf8.RuneCountInString(in.Reason); n < 10 || n > 300 {
			return apperrors.Validation("invalid review payload", map[string]string{
				"reason": "must be between 10 and 300 characters",
			})
		}

	case ActionRequestRevision:
		if in.Comments == "" {
			return apperrors.Validation("invalid review payload", map[string]string{
				"comments": "comment is required",
			})
		}

	case ActionEscalate:
		details := make(map[string]string)
		if in.EscalateTo.IsZero() {
			details["escalate_to"] = "escalation target is required"
		}
		if n := utf8.RuneCountInString(in.Reason); n < 10 || n > 300 {
			details["escalation_reason"] = "must be between 10 and 300 characters"
		}
		if len(details) > 0 {
			return apperrors.Validation("invalid escalation payload", details)
		}

	case ActionResolve:
		// Resolution of an escalated report carries the same comment rule
		// as an approval.
		if utf8.RuneCountInString(in.Comments) < 10 {
			return apperrors.Validation("invalid resolution payload", map[string]string{
				"comments": "must be at least 10 characters",
			})
		}
	}

	return nil
}

// validationError folds field errors into a single typed error
func validationError(errs []FieldError) error {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field] = fe.Message
	}
	return apperrors.Validation("report failed validation", details)
}

// eventName maps a workflow action to its event suffix
func eventName(action Action) string {
	switch action {
	case ActionSubmit, ActionResubmit:
		return "submitted"
	case ActionBeginReview:
		return "review_started"
	case ActionApprove:
		return "approved"
	case ActionReject:
		return "rejected"
	case ActionRequestRevision:
		return "revision_requested"
	case ActionEscalate:
		return "escalated"
	case ActionResolve, ActionClose:
		return "resolved"
	}
	return string(action)
}
