package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"sidekick/internal/checklist"
	"sidekick/internal/domain"
	"sidekick/internal/engine/auth"
	"sidekick/internal/events"
	"sidekick/internal/voice"
)

// StartInspection opens a checklist for a piece of equipment, generated from
// the template its profile selects. An inspection already open for the same
// equipment and inspector is resumed instead.
func (e Engine) StartInspection(ctx context.Context, equipmentID, actorID string) (domain.Inspection, bool, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Inspection{}, false, errors.New("inspector is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, false, err
	}
	defer tx.Rollback()
	eq, err := e.Repo.GetEquipment(ctx, tx, equipmentID)
	if err != nil {
		return domain.Inspection{}, false, fmt.Errorf("equipment %s: %w", equipmentID, err)
	}
	open, err := e.Repo.ListInspections(ctx, tx, eq.ID, domain.InspectionOpen)
	if err != nil {
		return domain.Inspection{}, false, err
	}
	for _, in := range open {
		if in.InspectorID == actorID {
			return in, true, nil
		}
	}
	tpl, known := e.catalog().Resolve(eq.Profile())
	if !known && eq.HoistType != "" {
		log.Debug().Str("equipment", eq.ID).Str("hoist_type", eq.HoistType).Str("template", tpl.Name).Msg("unknown hoist type, using default template")
	}
	now := e.timestamp()
	in := domain.Inspection{
		ID:          uuid.NewString(),
		EquipmentID: eq.ID,
		InspectorID: actorID,
		Status:      domain.InspectionOpen,
		Document:    checklist.FromTemplate(tpl),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertInspection(ctx, tx, in); err != nil {
		return domain.Inspection{}, false, fmt.Errorf("insert inspection: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.InspectionStarted, eq.ID, "inspection", in.ID, actorID, events.Payload{
		"template": tpl.Name,
	}); err != nil {
		return domain.Inspection{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspection{}, false, err
	}
	return in, false, nil
}

func (e Engine) GetInspection(ctx context.Context, id string) (domain.Inspection, error) {
	return e.Repo.GetInspection(ctx, nil, id)
}

func (e Engine) ListInspections(ctx context.Context, equipmentID string) ([]domain.Inspection, error) {
	return e.Repo.ListInspections(ctx, nil, equipmentID, "")
}

type pendingEvent struct {
	typ     string
	payload events.Payload
}

// change applies fn to the stored document of an open inspection and writes
// the new snapshot and its events in one transaction. Changes to the same
// inspection are serialised by the transaction and the snapshot version.
func (e Engine) change(ctx context.Context, inspectionID, actorID string, fn func(doc checklist.Document) (checklist.Document, []pendingEvent, error)) (domain.Inspection, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()
	in, err := e.Repo.GetInspection(ctx, tx, inspectionID)
	if err != nil {
		return domain.Inspection{}, fmt.Errorf("inspection %s: %w", inspectionID, err)
	}
	if in.Closed() {
		return in, fmt.Errorf("%w: %s", ErrInspectionClosed, in.ID)
	}
	if err := auth.RequireOwner(in.InspectorID, actorID, "update inspection"); err != nil {
		return in, err
	}
	doc, pending, err := fn(in.Document)
	if err != nil {
		return in, err
	}
	in.Document = doc
	in.UpdatedAt = e.timestamp()
	if in, err = e.Repo.UpdateInspection(ctx, tx, in); err != nil {
		return in, err
	}
	for _, p := range pending {
		if err := e.events().Append(ctx, tx, p.typ, in.EquipmentID, "inspection", in.ID, actorID, p.payload); err != nil {
			return in, err
		}
	}
	if err := tx.Commit(); err != nil {
		return in, err
	}
	return in, nil
}

type CycleResult struct {
	Inspection   domain.Inspection              `json:"inspection"`
	Confirmation *checklist.ConfirmationRequest `json:"confirmation,omitempty"`
}

// Err reports a pending confirmation as a ConfirmationRequiredError.
func (r CycleResult) Err() error {
	if r.Confirmation == nil {
		return nil
	}
	return &ConfirmationRequiredError{Request: *r.Confirmation}
}

// CycleItem advances an item one step. When the step would wipe notes or a
// monitor flag nothing changes and the result carries the confirmation request.
func (e Engine) CycleItem(ctx context.Context, inspectionID, itemID, actorID string) (CycleResult, error) {
	var req *checklist.ConfirmationRequest
	in, err := e.change(ctx, inspectionID, actorID, func(doc checklist.Document) (checklist.Document, []pendingEvent, error) {
		before, _, _ := doc.Item(itemID)
		out, r, err := checklist.CycleStatus(doc, itemID)
		if err != nil {
			return doc, nil, err
		}
		req = r
		if r != nil {
			return out, []pendingEvent{{events.ItemResetRequested, events.Payload{
				"item_id": itemID, "from": r.From, "reason": r.Reason,
			}}}, nil
		}
		after, _, _ := out.Item(itemID)
		return out, []pendingEvent{{events.ItemCycled, events.Payload{
			"item_id": itemID, "from": before.Status, "to": after.Status,
		}}}, nil
	})
	if err != nil {
		return CycleResult{}, err
	}
	return CycleResult{Inspection: in, Confirmation: req}, nil
}

// ConfirmReset applies a reset the inspector agreed to.
func (e Engine) ConfirmReset(ctx context.Context, inspectionID string, req checklist.ConfirmationRequest, actorID string) (domain.Inspection, error) {
	return e.change(ctx, inspectionID, actorID, func(doc checklist.Document) (checklist.Document, []pendingEvent, error) {
		before, _, _ := doc.Item(req.ItemID)
		out, err := checklist.ConfirmReset(doc, req)
		if err != nil {
			return doc, nil, err
		}
		return out, []pendingEvent{{events.ItemResetConfirmed, events.Payload{
			"item_id": req.ItemID, "from": req.From, "cleared_notes": before.Notes,
		}}}, nil
	})
}

// ResetItem builds the confirmation for the item's current state and applies
// it, for callers that confirmed up front.
func (e Engine) ResetItem(ctx context.Context, inspectionID, itemID, actorID string) (domain.Inspection, error) {
	in, err := e.GetInspection(ctx, inspectionID)
	if err != nil {
		return in, err
	}
	it, _, ok := in.Document.Item(itemID)
	if !ok {
		return in, fmt.Errorf("%w: %s", checklist.ErrItemNotFound, itemID)
	}
	return e.ConfirmReset(ctx, inspectionID, checklist.ConfirmationRequest{ItemID: itemID, From: it.Status, To: checklist.StatusOK}, actorID)
}

type NoteResult struct {
	Inspection    domain.Inspection `json:"inspection"`
	MonitorPrompt bool              `json:"monitor_prompt"`
}

func (e Engine) SetNote(ctx context.Context, inspectionID, itemID, text, actorID string) (NoteResult, error) {
	var prompt bool
	in, err := e.change(ctx, inspectionID, actorID, func(doc checklist.Document) (checklist.Document, []pendingEvent, error) {
		out, p, err := checklist.SetNote(doc, itemID, text)
		if err != nil {
			return doc, nil, err
		}
		prompt = p
		return out, []pendingEvent{{events.ItemNoteSet, events.Payload{"item_id": itemID, "notes": text}}}, nil
	})
	if err != nil {
		return NoteResult{}, err
	}
	return NoteResult{Inspection: in, MonitorPrompt: prompt}, nil
}

func (e Engine) SetMonitor(ctx context.Context, inspectionID, itemID string, monitor bool, actorID string) (domain.Inspection, error) {
	return e.change(ctx, inspectionID, actorID, func(doc checklist.Document) (checklist.Document, []pendingEvent, error) {
		out, err := checklist.SetMonitor(doc, itemID, monitor)
		if err != nil {
			return doc, nil, err
		}
		return out, []pendingEvent{{events.ItemMonitorSet, events.Payload{"item_id": itemID, "monitor": monitor}}}, nil
	})
}

func (e Engine) SetAllOK(ctx context.Context, inspectionID, section, actorID string) (domain.Inspection, error) {
	return e.change(ctx, inspectionID, actorID, func(doc checklist.Document) (checklist.Document, []pendingEvent, error) {
		out, err := checklist.SetAllOK(doc, section)
		if err != nil {
			return doc, nil, err
		}
		return out, []pendingEvent{{events.SectionAllOK, events.Payload{"section": section}}}, nil
	})
}

type VoiceResult struct {
	Inspection domain.Inspection `json:"inspection"`
	Matched    bool              `json:"matched"`
	Updates    []voice.Update    `json:"updates"`
}

// ApplyUtterance interprets dictated text against the inspection checklist.
// An utterance that matches nothing leaves the checklist as it was.
func (e Engine) ApplyUtterance(ctx context.Context, inspectionID, utterance, actorID string) (VoiceResult, error) {
	var res voice.Result
	in, err := e.change(ctx, inspectionID, actorID, func(doc checklist.Document) (checklist.Document, []pendingEvent, error) {
		res = e.interpreter().Interpret(doc, utterance)
		if !res.Matched {
			return doc, []pendingEvent{{events.VoiceNoMatch, events.Payload{"utterance": utterance}}}, nil
		}
		ids := make([]string, 0, len(res.Updates))
		for _, u := range res.Updates {
			ids = append(ids, u.ItemID)
		}
		return res.Document, []pendingEvent{{events.VoiceApplied, events.Payload{"utterance": utterance, "items": ids}}}, nil
	})
	if err != nil {
		return VoiceResult{}, err
	}
	if !res.Matched {
		log.Debug().Str("inspection", inspectionID).Str("utterance", utterance).Msg("voice input matched no checklist item")
	}
	return VoiceResult{Inspection: in, Matched: res.Matched, Updates: res.Updates}, nil
}

func manifest(in domain.Inspection) []checklist.ManifestEntry {
	return checklist.DeriveManifest(in.Document)
}

// Manifest lists the outstanding items of an inspection.
func (e Engine) Manifest(ctx context.Context, inspectionID string) ([]checklist.ManifestEntry, error) {
	in, err := e.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	return manifest(in), nil
}

// CompleteInspection freezes the checklist and records the outcome on the
// equipment: Warning when anything is outstanding, Clear otherwise.
func (e Engine) CompleteInspection(ctx context.Context, inspectionID, actorID string) (domain.Inspection, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()
	in, err := e.Repo.GetInspection(ctx, tx, inspectionID)
	if err != nil {
		return in, fmt.Errorf("inspection %s: %w", inspectionID, err)
	}
	if in.Closed() {
		return in, fmt.Errorf("%w: %s", ErrInspectionClosed, in.ID)
	}
	if err := auth.RequireOwner(in.InspectorID, actorID, "complete inspection"); err != nil {
		return in, err
	}
	issues := manifest(in)
	status := domain.EquipmentClear
	for _, entry := range issues {
		if entry.Item.Status != checklist.StatusOK {
			status = domain.EquipmentWarning
			break
		}
	}
	now := e.timestamp()
	in.Status = domain.InspectionCompleted
	in.UpdatedAt = now
	in.CompletedAt = &now
	if in, err = e.Repo.UpdateInspection(ctx, tx, in); err != nil {
		return in, err
	}
	if err := e.Repo.UpdateEquipmentInspection(ctx, tx, in.EquipmentID, status, now); err != nil {
		return in, fmt.Errorf("update equipment: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.InspectionCompleted, in.EquipmentID, "inspection", in.ID, actorID, events.Payload{
		"equipment_status": status,
		"issues":           len(issues),
		"worst":            checklist.Worst(in.Document),
	}); err != nil {
		return in, err
	}
	if err := tx.Commit(); err != nil {
		return in, err
	}
	return in, nil
}
