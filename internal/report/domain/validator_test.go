package domain

import (
	"strings"
	"testing"

	"github.com/gram-swasthya/platform/internal/shared/types"
)

func fieldSet(errs []FieldError) map[string]string {
	m := make(map[string]string, len(errs))
	for _, fe := range errs {
		m[fe.Field] = fe.Message
	}
	return m
}

func validStrictReport(reportType ReportType) *HealthReport {
	r := &HealthReport{
		ID:          types.NewID(),
		Type:        reportType,
		Status:      StatusDraft,
		Priority:    PriorityMedium,
		Urgency:     UrgencyRoutine,
		Title:       "Recurring fever cluster near school",
		Description: "More than ten children from the same ward reported fever and rash this week.",
		VillageID:   types.NewID(),
		ReporterID:  types.NewID(),
	}
	switch reportType {
	case ReportTypeDiseaseOutbreak:
		r.DiseaseOutbreakDetails = &DiseaseOutbreakDetails{
			DiseaseName:    "measles",
			SuspectedCases: 11,
		}
	case ReportTypeWaterQualityConcern:
		r.WaterQualityDetails = &WaterQualityDetails{
			ContaminationType:  "chemical",
			WaterSource:        "hand pump",
			AffectedHouseholds: 4,
		}
	case ReportTypeInfrastructureIssue:
		r.InfrastructureDetails = &InfrastructureDetails{
			FacilityType:     "sub_centre",
			IssueDescription: "roof leaking into the vaccine storage room",
		}
	}
	return r
}

func TestValidateLenientOnlyRequiresReporter(t *testing.T) {
	v := NewValidator()

	r := &HealthReport{Type: ReportTypeRoutineSurvey, ReporterID: types.NewID()}
	if errs := v.Validate(r, false); len(errs) != 0 {
		t.Fatalf("expected bare draft to pass lenient validation, got %v", errs)
	}

	r.ReporterID = types.ID("")
	errs := v.Validate(r, false)
	if _, ok := fieldSet(errs)["reporter_id"]; !ok {
		t.Fatalf("expected reporter_id error, got %v", errs)
	}
}

func TestValidateStrictFieldBounds(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		name   string
		mutate func(r *HealthReport)
		field  string
	}{
		{"short title", func(r *HealthReport) { r.Title = "too short" }, "title"},
		{"long title", func(r *HealthReport) { r.Title = strings.Repeat("t", 201) }, "title"},
		{"short description", func(r *HealthReport) { r.Description = "not enough here" }, "description"},
		{"long description", func(r *HealthReport) { r.Description = strings.Repeat("d", 2001) }, "description"},
		{"missing village", func(r *HealthReport) { r.VillageID = types.ID("") }, "village_id"},
		{"bad priority", func(r *HealthReport) { r.Priority = Priority("critical") }, "priority"},
		{"bad urgency", func(r *HealthReport) { r.Urgency = UrgencyLevel("immediate") }, "urgency_level"},
		{"missing reporter", func(r *HealthReport) { r.ReporterID = types.ID("") }, "reporter_id"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			r := validStrictReport(ReportTypeRoutineSurvey)
			tt.mutate(r)
			errs := v.Validate(r, true)
			if _, ok := fieldSet(errs)[tt.field]; !ok {
				t.Errorf("expected %s error, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidateBoundaryLengths(t *testing.T) {
	v := NewValidator()

	r := validStrictReport(ReportTypeRoutineSurvey)
	r.Title = strings.Repeat("t", 10)
	r.Description = strings.Repeat("d", 20)
	if errs := v.Validate(r, true); len(errs) != 0 {
		t.Errorf("expected minimum lengths to pass, got %v", errs)
	}

	r.Title = strings.Repeat("t", 200)
	r.Description = strings.Repeat("d", 2000)
	if errs := v.Validate(r, true); len(errs) != 0 {
		t.Errorf("expected maximum lengths to pass, got %v", errs)
	}
}

func TestValidateRequiredDetailBlocks(t *testing.T) {
	v := NewValidator()

	detailTypes := map[ReportType]string{
		ReportTypeDiseaseOutbreak:     "disease_outbreak_details",
		ReportTypeWaterQualityConcern: "water_quality_details",
		ReportTypeInfrastructureIssue: "infrastructure_details",
	}

	for reportType, field := range detailTypes {
		t.Run(string(reportType), func(t *testing.T) {
			r := validStrictReport(reportType)
			if errs := v.Validate(r, true); len(errs) != 0 {
				t.Fatalf("expected report with details to pass, got %v", errs)
			}

			r.DiseaseOutbreakDetails = nil
			r.WaterQualityDetails = nil
			r.InfrastructureDetails = nil

			errs := v.Validate(r, true)
			if _, ok := fieldSet(errs)[field]; !ok {
				t.Errorf("expected %s to be required, got %v", field, errs)
			}
		})
	}

	// Types without a detail block do not require one
	r := validStrictReport(ReportTypeRoutineSurvey)
	if errs := v.Validate(r, true); len(errs) != 0 {
		t.Errorf("expected routine survey without details to pass, got %v", errs)
	}
}

func TestValidateDetailExclusivity(t *testing.T) {
	v := NewValidator()

	r := validStrictReport(ReportTypeDiseaseOutbreak)
	r.WaterQualityDetails = &WaterQualityDetails{ContaminationType: "biological", WaterSource: "well", AffectedHouseholds: 2}

	errs := v.Validate(r, true)
	if _, ok := fieldSet(errs)["details"]; !ok {
		t.Errorf("expected exclusivity error, got %v", errs)
	}

	// Exclusivity is enforced even in lenient mode
	errs = v.Validate(r, false)
	if _, ok := fieldSet(errs)["details"]; !ok {
		t.Errorf("expected exclusivity error in lenient mode, got %v", errs)
	}
}

func TestValidateDetailMatchesType(t *testing.T) {
	v := NewValidator()

	r := validStrictReport(ReportTypeRoutineSurvey)
	r.WaterQualityDetails = &WaterQualityDetails{ContaminationType: "biological", WaterSource: "well", AffectedHouseholds: 2}

	errs := v.Validate(r, true)
	if _, ok := fieldSet(errs)["water_quality_details"]; !ok {
		t.Errorf("expected type mismatch error, got %v", errs)
	}
}

func TestValidateUnknownType(t *testing.T) {
	v := NewValidator()

	r := validStrictReport(ReportTypeRoutineSurvey)
	r.Type = ReportType("gossip")

	errs := v.Validate(r, true)
	if _, ok := fieldSet(errs)["report_type"]; !ok {
		t.Fatalf("expected report_type error, got %v", errs)
	}
}
