// Package auth provides the actor model, role capabilities and request
// authentication for the platform.
package auth

// Role represents an actor's role in the health-surveillance hierarchy.
type Role string

const (
	RoleAdmin          Role = "admin"           // Full platform access
	RoleHealthOfficial Role = "health_official" // District-level officer
	RoleBlockOfficer   Role = "block_officer"   // Block-level officer
	RoleASHAWorker     Role = "asha_worker"     // Village field worker
	RoleVolunteer      Role = "volunteer"       // Village volunteer
	RoleUser           Role = "user"            // Citizen, reaches own resources only
)

// Action represents a specific verb on a resource type.
type Action string

// Report actions
const (
	ActionReportCreate   Action = "report.create"
	ActionReportRead     Action = "report.read"
	ActionReportUpdate   Action = "report.update"
	ActionReportDelete   Action = "report.delete"
	ActionReportSubmit   Action = "report.submit"
	ActionReportReview   Action = "report.review"
	ActionReportEscalate Action = "report.escalate"
	ActionReportResolve  Action = "report.resolve"
)

// Hierarchy actions
const (
	ActionDistrictCreate Action = "district.create"
	ActionDistrictRead   Action = "district.read"
	ActionDistrictUpdate Action = "district.update"
	ActionDistrictDelete Action = "district.delete"
	ActionBlockCreate    Action = "block.create"
	ActionBlockRead      Action = "block.read"
	ActionBlockUpdate    Action = "block.update"
	ActionBlockDelete    Action = "block.delete"
	ActionVillageCreate  Action = "village.create"
	ActionVillageRead    Action = "village.read"
	ActionVillageUpdate  Action = "village.update"
	ActionVillageDelete  Action = "village.delete"
)

// Staff and admin actions
const (
	ActionStaffAssign Action = "staff.assign"
	ActionStaffRead   Action = "staff.read"
	ActionStaffRemove Action = "staff.remove"
	ActionAuditRead   Action = "audit.read"
)
