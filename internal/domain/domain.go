package domain

import "sidekick/internal/checklist"

// Equipment statuses.
const (
	EquipmentClear   = "Clear"
	EquipmentWarning = "Warning"
	EquipmentOverdue = "Overdue"
)

// Inspection statuses.
const (
	InspectionOpen      = "open"
	InspectionCompleted = "completed"
)

type Equipment struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	HoistType       string  `json:"hoist_type,omitempty"`
	Location        string  `json:"location,omitempty"`
	Model           string  `json:"model,omitempty"`
	Status          string  `json:"status" enum:"Clear,Warning,Overdue"`
	LastInspectedAt *string `json:"last_inspected_at,omitempty" format:"date-time"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

// Profile is the part of the equipment record that selects a checklist template.
func (e Equipment) Profile() checklist.Profile {
	return checklist.Profile{HoistType: e.HoistType}
}

type Inspection struct {
	ID          string             `json:"id"`
	EquipmentID string             `json:"equipment_id"`
	InspectorID string             `json:"inspector_id"`
	Status      string             `json:"status" enum:"open,completed"`
	Document    checklist.Document `json:"document"`
	Version     int                `json:"version"`
	CreatedAt   string             `json:"created_at" format:"date-time"`
	UpdatedAt   string             `json:"updated_at" format:"date-time"`
	CompletedAt *string            `json:"completed_at,omitempty" format:"date-time"`
}

func (i Inspection) Closed() bool {
	return i.Status == InspectionCompleted
}

type Inspector struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	EquipmentID string `json:"equipment_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Dashboard summarises the fleet.
type Dashboard struct {
	Equipment       int            `json:"equipment"`
	ByStatus        map[string]int `json:"by_status"`
	OpenInspections int            `json:"open_inspections"`
	OpenIssues      int            `json:"open_issues"`
}
