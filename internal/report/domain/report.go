package domain

import (
	"fmt"
	"time"

	"github.com/gram-swasthya/platform/internal/shared/types"
)

// ReportType defines the type of health report
type ReportType string

const (
	ReportTypeDiseaseOutbreak     ReportType = "disease_outbreak"
	ReportTypeRoutineSurvey       ReportType = "routine_survey"
	ReportTypeEmergencyAlert      ReportType = "emergency_alert"
	ReportTypeWaterQualityConcern ReportType = "water_quality_concern"
	ReportTypeInfrastructureIssue ReportType = "infrastructure_issue"
	ReportTypeVaccinationCoverage ReportType = "vaccination_coverage"
	ReportTypeMaternalHealth      ReportType = "maternal_health"
	ReportTypeChildHealth         ReportType = "child_health"
	ReportTypeOther               ReportType = "other"
)

// Status defines the lifecycle status of a report
type Status string

const (
	StatusDraft         Status = "draft"
	StatusSubmitted     Status = "submitted"
	StatusUnderReview   Status = "under_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusNeedsRevision Status = "needs_revision"
	StatusEscalated     Status = "escalated"
	StatusResolved      Status = "resolved"
)

// Priority defines report priority
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// UrgencyLevel defines how fast a report needs attention
type UrgencyLevel string

const (
	UrgencyRoutine   UrgencyLevel = "routine"
	UrgencyUrgent    UrgencyLevel = "urgent"
	UrgencyEmergency UrgencyLevel = "emergency"
)

// ValidTypes lists all report types
var ValidTypes = []ReportType{
	ReportTypeDiseaseOutbreak, ReportTypeRoutineSurvey, ReportTypeEmergencyAlert,
	ReportTypeWaterQualityConcern, ReportTypeInfrastructureIssue,
	ReportTypeVaccinationCoverage, ReportTypeMaternalHealth, ReportTypeChildHealth,
	ReportTypeOther,
}

// ValidStatuses lists all lifecycle statuses
var ValidStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved,
	StatusRejected, StatusNeedsRevision, StatusEscalated, StatusResolved,
}

// DiseaseOutbreakDetails describes a suspected or confirmed outbreak
type DiseaseOutbreakDetails struct {
	DiseaseName    string     `json:"disease_name"`
	SuspectedCases int        `json:"suspected_cases"`
	ConfirmedCases int        `json:"confirmed_cases"`
	Deaths         int        `json:"deaths"`
	Symptoms       []string   `json:"symptoms,omitempty"`
	OnsetDate      *time.Time `json:"onset_date,omitempty"`
}

// WaterQualityDetails describes a water contamination concern
type WaterQualityDetails struct {
	ContaminationType  string `json:"contamination_type"`
	WaterSource        string `json:"water_source"`
	AffectedHouseholds int    `json:"affected_households"`
}

// InfrastructureDetails describes a health infrastructure issue
type InfrastructureDetails struct {
	FacilityType     string   `json:"facility_type"`
	IssueDescription string   `json:"issue_description"`
	AffectedServices []string `json:"affected_services,omitempty"`
}

// ReviewEntry is one immutable entry in a report's review history.
// Entries are only ever appended; priority and urgency overrides carried by
// a transition are recorded here rather than silently mutating the report.
type ReviewEntry struct {
	ID               types.ID      `json:"id"`
	ReportID         types.ID      `json:"report_id"`
	ReviewedBy       types.ID      `json:"reviewed_by"`
	ReviewDate       time.Time     `json:"review_date"`
	Action           Action        `json:"action"`
	Status           Status        `json:"status"`
	Comments         string        `json:"comments,omitempty"`
	Recommendations  string        `json:"recommendations,omitempty"`
	PriorityOverride *Priority     `json:"priority_override,omitempty"`
	UrgencyOverride  *UrgencyLevel `json:"urgency_override,omitempty"`
	Sequence         int           `json:"sequence"`
}

// HealthReport is the aggregate root for the report lifecycle
type HealthReport struct {
	ID           types.ID     `json:"id"`
	ReportNumber string       `json:"report_number"`
	Type         ReportType   `json:"report_type"`
	Status       Status       `json:"status"`
	Priority     Priority     `json:"priority"`
	Urgency      UrgencyLevel `json:"urgency_level"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`

	// Location anchors. Block and district are denormalized from the
	// hierarchy at creation time so scope checks need no extra lookup.
	VillageID  types.ID `json:"village_id"`
	BlockID    types.ID `json:"block_id"`
	DistrictID types.ID `json:"district_id"`

	ReporterID  types.ID  `json:"reporter_id"`
	EscalatedTo *types.ID `json:"escalated_to,omitempty"`

	// Exactly one detail block may be populated, matching Type.
	DiseaseOutbreakDetails *DiseaseOutbreakDetails `json:"disease_outbreak_details,omitempty"`
	WaterQualityDetails    *WaterQualityDetails    `json:"water_quality_details,omitempty"`
	InfrastructureDetails  *InfrastructureDetails  `json:"infrastructure_details,omitempty"`

	ReviewHistory []ReviewEntry `json:"review_history"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	// Domain events accumulated by transitions, published after commit
	domainEvents []Event
}

// Event is a domain event raised by a report transition
type Event struct {
	Type     string       `json:"type"`
	ReportID types.ID     `json:"report_id"`
	Entry    *ReviewEntry `json:"entry,omitempty"`
	Report   ReportRef    `json:"report"`
}

// ReportRef carries the identifying fields of a report on an event
type ReportRef struct {
	ID           types.ID     `json:"id"`
	ReportNumber string       `json:"report_number"`
	Type         ReportType   `json:"report_type"`
	Status       Status       `json:"status"`
	Urgency      UrgencyLevel `json:"urgency_level"`
	VillageID    types.ID     `json:"village_id"`
	ReporterID   types.ID     `json:"reporter_id"`
	EscalatedTo  *types.ID    `json:"escalated_to,omitempty"`
}

// NewHealthReport creates a report in draft status. Only the reporter and
// type are mandatory at this point; a draft may be incomplete.
func NewHealthReport(reportType ReportType, reporterID types.ID) (*HealthReport, error) {
	if reporterID.IsZero() {
		return nil, fmt.Errorf("reporter is required")
	}
	if !validType(reportType) {
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}

	now := time.Now()
	r := &HealthReport{
		ID:            types.NewID(),
		ReportNumber:  generateReportNumber(reportType),
		Type:          reportType,
		Status:        StatusDraft,
		Priority:      PriorityMedium,
		Urgency:       UrgencyRoutine,
		ReporterID:    reporterID,
		ReviewHistory: []ReviewEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	r.raise("report.created", nil)
	return r, nil
}

// Ref returns the event reference for this report
func (r *HealthReport) Ref() ReportRef {
	return ReportRef{
		ID:           r.ID,
		ReportNumber: r.ReportNumber,
		Type:         r.Type,
		Status:       r.Status,
		Urgency:      r.Urgency,
		VillageID:    r.VillageID,
		ReporterID:   r.ReporterID,
		EscalatedTo:  r.EscalatedTo,
	}
}

// Details returns whichever detail block is populated, or nil
func (r *HealthReport) Details() any {
	switch {
	case r.DiseaseOutbreakDetails != nil:
		return r.DiseaseOutbreakDetails
	case r.WaterQualityDetails != nil:
		return r.WaterQualityDetails
	case r.InfrastructureDetails != nil:
		return r.InfrastructureDetails
	}
	return nil
}

// IsEditable reports whether the reporter may still change report fields
func (r *HealthReport) IsEditable() bool {
	return r.Status == StatusDraft || r.Status == StatusNeedsRevision
}

// IsTerminal reports whether the lifecycle has ended
func (r *HealthReport) IsTerminal() bool {
	return r.Status == StatusRejected || r.Status == StatusResolved
}

// GetDomainEvents returns and clears accumulated domain events
func (r *HealthReport) GetDomainEvents() []Event {
	events := r.domainEvents
	r.domainEvents = nil
	return events
}

func (r *HealthReport) raise(eventType string, entry *ReviewEntry) {
	r.domainEvents = append(r.domainEvents, Event{
		Type:     eventType,
		ReportID: r.ID,
		Entry:    entry,
		Report:   r.Ref(),
	})
}

func validType(t ReportType) bool {
	for _, v := range ValidTypes {
		if v == t {
			return true
		}
	}
	return false
}

func validPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func validUrgency(u UrgencyLevel) bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergency:
		return true
	}
	return false
}

// generateReportNumber generates a unique report number
func generateReportNumber(reportType ReportType) string {
	// Format: TYPE-YEAR-SEQUENCE (e.g., WQ-2026-000042)
	prefix := map[ReportType]string{
		ReportTypeDiseaseOutbreak:     "DO",
		ReportTypeRoutineSurvey:       "RS",
		ReportTypeEmergencyAlert:      "EA",
		ReportTypeWaterQualityConcern: "WQ",
		ReportTypeInfrastructureIssue: "IN",
		ReportTypeVaccinationCoverage: "VC",
		ReportTypeMaternalHealth:      "MH",
		ReportTypeChildHealth:         "CH",
		ReportTypeOther:               "OT",
	}

	year := time.Now().Year()
	seq := time.Now().UnixNano() % 1000000

	return fmt.Sprintf("%s-%d-%06d", prefix[reportType], year, seq)
}
