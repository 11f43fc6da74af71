package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Audit event types.
const (
	EquipmentAdded      = "equipment.added"
	InspectionStarted   = "inspection.started"
	ItemCycled          = "item.cycled"
	ItemResetRequested  = "item.reset.requested"
	ItemResetConfirmed  = "item.reset.confirmed"
	ItemNoteSet         = "item.note.set"
	ItemMonitorSet      = "item.monitor.set"
	SectionAllOK        = "section.all_ok"
	VoiceApplied        = "voice.applied"
	VoiceNoMatch        = "voice.no_match"
	InspectionCompleted = "inspection.completed"
	InspectorRegistered = "inspector.registered"
	APIKeyCreated       = "apikey.created"
	APIKeyRevoked       = "apikey.revoked"
	ConfigImported      = "config.imported"
)

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Append records an event inside the caller's transaction so the audit row
// commits or rolls back with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, equipmentID, entityKind, entityID, actorID string, payload Payload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,equipment_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(equipmentID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
