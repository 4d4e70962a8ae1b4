package domain

import (
	"fmt"
	"unicode/utf8"
)

// FieldError describes a single field validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// rule checks one aspect of a report and returns a field error or nil
type rule func(r *HealthReport) *FieldError

// schemaKey selects a rule set by report type and strictness. Lenient rules
// apply to bare draft saves; strict rules apply to submission and every
// other mutating action.
type schemaKey struct {
	Type   ReportType
	Strict bool
}

// Validator validates health report payloads against a discriminated schema
// table keyed by (reportType, strict). Adding a report type means adding
// table entries, not branching.
type Validator struct {
	schemas map[schemaKey][]rule
}

// NewValidator builds the schema table
func NewValidator() *Validator {
	v := &Validator{schemas: make(map[schemaKey][]rule)}

	strictBase := []rule{
		requireReporter,
		stringLength("title", func(r *HealthReport) string { return r.Title }, 10, 200),
		stringLength("description", func(r *HealthReport) string { return r.Description }, 20, 2000),
		requireVillage,
		requirePriority,
		requireUrgency,
	}
	lenientBase := []rule{requireReporter}

	for _, t := range ValidTypes {
		strictRules := append([]rule{}, strictBase...)
		if dr := detailRule(t); dr != nil {
			strictRules = append(strictRules, dr)
		}
		v.schemas[schemaKey{t, true}] = strictRules
		v.schemas[schemaKey{t, false}] = lenientBase
	}

	return v
}

// Validate checks the report against the schema selected by its type and
// the requested strictness. A nil or empty result means the report is valid.
func (v *Validator) Validate(r *HealthReport, strict bool) []FieldError {
	var errs []FieldError

	if !validType(r.Type) {
		errs = append(errs, FieldError{Field: "report_type", Message: fmt.Sprintf("unknown report type: %s", r.Type)})
		return errs
	}

	// Detail blocks are mutually exclusive regardless of type or strictness,
	// and a populated block must match the report type.
	errs = append(errs, checkDetailExclusivity(r)...)

	for _, check := range v.schemas[schemaKey{r.Type, strict}] {
		if fe := check(r); fe != nil {
			errs = append(errs, *fe)
		}
	}

	return errs
}

// detailField maps a report type to the name of its detail block
var detailField = map[ReportType]string{
	ReportTypeDiseaseOutbreak:     "disease_outbreak_details",
	ReportTypeWaterQualityConcern: "water_quality_details",
	ReportTypeInfrastructureIssue: "infrastructure_details",
}

func checkDetailExclusivity(r *HealthReport) []FieldError {
	populated := map[string]bool{
		"disease_outbreak_details": r.DiseaseOutbreakDetails != nil,
		"water_quality_details":    r.WaterQualityDetails != nil,
		"infrastructure_details":   r.InfrastructureDetails != nil,
	}

	count := 0
	for _, set := range populated {
		if set {
			count++
		}
	}

	var errs []FieldError
	if count > 1 {
		errs = append(errs, FieldError{
			Field:   "details",
			Message: "only one detail block may be populated",
		})
		return errs
	}

	expected := detailField[r.Type]
	for field, set := range populated {
		if set && field != expected {
			errs = append(errs, FieldError{
				Field:   field,
				Message: fmt.Sprintf("detail block does not match report type %s", r.Type),
			})
		}
	}
	return errs
}

// detailRule returns the strict-mode rule requiring the type's detail block,
// or nil for types without one
func detailRule(t ReportType) rule {
	field, ok := detailField[t]
	if !ok {
		return nil
	}
	return func(r *HealthReport) *FieldError {
		if r.Details() == nil {
			return &FieldError{Field: field, Message: "required for report type " + string(t)}
		}
		return nil
	}
}

func requireReporter(r *HealthReport) *FieldError {
	if r.ReporterID.IsZero() {
		return &FieldError{Field: "reporter_id", Message: "reporter is required"}
	}
	return nil
}

func requireVillage(r *HealthReport) *FieldError {
	if r.VillageID.IsZero() {
		return &FieldError{Field: "village_id", Message: "village is required"}
	}
	return nil
}

func requirePriority(r *HealthReport) *FieldError {
	if !validPriority(r.Priority) {
		return &FieldError{Field: "priority", Message: "priority must be one of low, medium, high, urgent"}
	}
	return nil
}

func requireUrgency(r *HealthReport) *FieldError {
	if !validUrgency(r.Urgency) {
		return &FieldError{Field: "urgency_level", Message: "urgency level must be one of routine, urgent, emergency"}
	}
	return nil
}

func stringLength(field string, get func(r *HealthReport) string, min, max int) rule {
	return func(r *HealthReport) *FieldError {
		n := utf8.RuneCountInString(get(r))
		if n < min || n > max {
			return &FieldError{
				Field:   field,
				Message: fmt.Sprintf("must be between %d and %d characters", min, max),
			}
		}
		return nil
	}
}
