package server

import (
	"encoding/json"

	"sidekick/internal/checklist"
	"sidekick/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Email       string `json:"email" format:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Password    string `json:"password" minLength:"8"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateEquipmentRequest struct {
	ID        string `json:"id,omitempty" example:"CR-102"`
	Name      string `json:"name" example:"Bay 2 Overhead Crane"`
	Type      string `json:"type" example:"Overhead Crane"`
	HoistType string `json:"hoist_type,omitempty" example:"wire-rope"`
	Location  string `json:"location,omitempty"`
	Model     string `json:"model,omitempty"`
}

type ScanRequest struct {
	Payload string `json:"payload" example:"sidekick://equipment/CR-102"`
}

type StartInspectionRequest struct {
	EquipmentID string `json:"equipment_id"`
}

type ConfirmResetRequest struct {
	// From is the status the caller saw when it asked for confirmation.
	// Empty resets whatever the current status is.
	From string `json:"from,omitempty" enum:"OK,ATTENTION,REPAIR"`
}

type NoteRequest struct {
	Notes string `json:"notes"`
}

type MonitorRequest struct {
	Monitor bool `json:"monitor"`
}

type VoiceRequest struct {
	Utterance string `json:"utterance" example:"Hoist motor and brakes needs repair"`
}

// Response payloads

type InspectorResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type SessionResponse struct {
	InspectorID string `json:"inspector_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
	ExpiresAt   string `json:"expires_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only returned once, on creation.
	Key       string `json:"key,omitempty"`
}

type APIKeyList struct {
	Items []APIKeyResponse `json:"items"`
}

type EquipmentList struct {
	Items []domain.Equipment `json:"items"`
}

type InspectionSummary struct {
	ID          string  `json:"id"`
	InspectorID string  `json:"inspector_id"`
	Status      string  `json:"status" enum:"open,completed"`
	Worst       string  `json:"worst" enum:"OK,ATTENTION,REPAIR"`
	Issues      int     `json:"issues"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type InspectionList struct {
	Items []InspectionSummary `json:"items"`
}

type EquipmentDetail struct {
	Equipment   domain.Equipment    `json:"equipment"`
	Inspections []InspectionSummary `json:"inspections"`
}

type StartInspectionResponse struct {
	Inspection domain.Inspection `json:"inspection"`
	Resumed    bool              `json:"resumed"`
}

type ManifestResponse struct {
	InspectionID string                    `json:"inspection_id"`
	Worst        string                    `json:"worst" enum:"OK,ATTENTION,REPAIR"`
	Items        []checklist.ManifestEntry `json:"items"`
}

type EventResponse struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	Type        string         `json:"type"`
	EquipmentID string         `json:"equipment_id,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	Payload     map[string]any `json:"payload"`
}

type EventList struct {
	Items []EventResponse `json:"items"`
}

type DashboardResponse struct {
	Equipment       int            `json:"equipment"`
	ByStatus        map[string]int `json:"by_status"`
	OpenInspections int            `json:"open_inspections"`
	OpenIssues      int            `json:"open_issues"`
}

func inspectorResponse(in domain.Inspector) InspectorResponse {
	return InspectorResponse{
		ID:          in.ID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		CreatedAt:   in.CreatedAt,
	}
}

func apiKeyResponse(key domain.APIKey, plain string) APIKeyResponse {
	return APIKeyResponse{ID: key.ID, Name: key.Name, CreatedAt: key.CreatedAt, Key: plain}
}

func inspectionSummary(in domain.Inspection) InspectionSummary {
	return InspectionSummary{
		ID:          in.ID,
		InspectorID: in.InspectorID,
		Status:      in.Status,
		Worst:       string(checklist.Worst(in.Document)),
		Issues:      len(checklist.DeriveManifest(in.Document)),
		CreatedAt:   in.CreatedAt,
		CompletedAt: in.CompletedAt,
	}
}

func inspectionSummaries(items []domain.Inspection) []InspectionSummary {
	out := make([]InspectionSummary, 0, len(items))
	for _, in := range items {
		out = append(out, inspectionSummary(in))
	}
	return out
}

func eventResponse(evt domain.Event) EventResponse {
	payload := map[string]any{}
	if evt.Payload != "" {
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
			payload = map[string]any{"raw": evt.Payload}
		}
	}
	return EventResponse{
		ID:          evt.ID,
		TS:          evt.TS,
		Type:        evt.Type,
		EquipmentID: evt.EquipmentID,
		EntityKind:  evt.EntityKind,
		EntityID:    evt.EntityID,
		ActorID:     evt.ActorID,
		Payload:     payload,
	}
}
