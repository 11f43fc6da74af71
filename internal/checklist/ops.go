package checklist

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMonitorRequiresOK = errors.New("monitor flag can only be set on an OK item")
	ErrStaleConfirmation = errors.New("confirmation no longer matches item state")
	ErrStatusInvalid     = errors.New("invalid status")
)

// Reasons a reset to OK needs confirmation.
const (
	ReasonHasNotes        = "item has notes"
	ReasonMonitored       = "item is flagged for monitoring"
	ReasonNotesAndMonitor = "item has notes and is flagged for monitoring"
)

// ConfirmationRequest is returned instead of performing a destructive reset.
// Pass it back to ConfirmReset once the user agreed.
type ConfirmationRequest struct {
	ItemID string `json:"item_id"`
	From   Status `json:"from"`
	To     Status `json:"to"`
	Reason string `json:"reason"`
}

func (r ConfirmationRequest) String() string {
	return fmt.Sprintf("confirm reset of %s (%s -> %s): %s", r.ItemID, r.From, r.To, r.Reason)
}

// CycleStatus advances an item along OK -> ATTENTION -> REPAIR -> OK.
// When the step back to OK would discard notes or a monitor flag the
// document is returned unchanged together with a confirmation request.
func CycleStatus(d Document, itemID string) (Document, *ConfirmationRequest, error) {
	si, ii, ok := d.locate(itemID)
	if !ok {
		return d, nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	it := d.Sections[si].Items[ii]
	next := it.Status.Next()
	if next == StatusOK {
		if reason := resetReason(it); reason != "" {
			return d, &ConfirmationRequest{ItemID: it.ID, From: it.Status, To: StatusOK, Reason: reason}, nil
		}
	}
	out := d.Clone()
	out.Sections[si].Items[ii].Status = next
	return out, nil, nil
}

// ConfirmReset performs the reset described by a confirmation request:
// status becomes OK, notes are cleared and the monitor flag is unset.
func ConfirmReset(d Document, req ConfirmationRequest) (Document, error) {
	si, ii, ok := d.locate(req.ItemID)
	if !ok {
		return d, fmt.Errorf("%w: %s", ErrItemNotFound, req.ItemID)
	}
	if d.Sections[si].Items[ii].Status != req.From {
		return d, fmt.Errorf("%w: %s is %s, expected %s", ErrStaleConfirmation, req.ItemID, d.Sections[si].Items[ii].Status, req.From)
	}
	out := d.Clone()
	item := &out.Sections[si].Items[ii]
	item.Status = StatusOK
	item.Notes = ""
	item.IsMonitor = nil
	return out, nil
}

func resetReason(it Item) string {
	hasNotes := strings.TrimSpace(it.Notes) != ""
	switch {
	case hasNotes && it.Monitored():
		return ReasonNotesAndMonitor
	case hasNotes:
		return ReasonHasNotes
	case it.Monitored():
		return ReasonMonitored
	}
	return ""
}

// SetStatus assigns a status directly, as the voice interpreter does.
func SetStatus(d Document, itemID string, status Status) (Document, error) {
	if !status.Valid() {
		return d, fmt.Errorf("%w %q", ErrStatusInvalid, status)
	}
	si, ii, ok := d.locate(itemID)
	if !ok {
		return d, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	out := d.Clone()
	out.Sections[si].Items[ii].Status = status
	return out, nil
}

// SetAllOK marks every item of a section OK. Notes and monitor flags are kept.
func SetAllOK(d Document, sectionName string) (Document, error) {
	si, ok := d.sectionIndex(sectionName)
	if !ok {
		return d, fmt.Errorf("%w: %s", ErrSectionNotFound, sectionName)
	}
	out := d.Clone()
	for ii := range out.Sections[si].Items {
		out.Sections[si].Items[ii].Status = StatusOK
	}
	return out, nil
}

// SetNote replaces an item's note. The returned flag recommends asking the
// user whether to monitor the item: the item is OK, the note is not empty and
// the item is not already monitored.
func SetNote(d Document, itemID, text string) (Document, bool, error) {
	si, ii, ok := d.locate(itemID)
	if !ok {
		return d, false, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	out := d.Clone()
	item := &out.Sections[si].Items[ii]
	item.Notes = text
	prompt := item.Status == StatusOK && strings.TrimSpace(text) != "" && !item.Monitored()
	return out, prompt, nil
}

// SetMonitor records the answer to the monitor prompt. Only OK items can be
// flagged; clearing the flag is always allowed.
func SetMonitor(d Document, itemID string, monitor bool) (Document, error) {
	si, ii, ok := d.locate(itemID)
	if !ok {
		return d, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if monitor && d.Sections[si].Items[ii].Status != StatusOK {
		return d, fmt.Errorf("%w: %s is %s", ErrMonitorRequiresOK, itemID, d.Sections[si].Items[ii].Status)
	}
	out := d.Clone()
	out.Sections[si].Items[ii].IsMonitor = &monitor
	return out, nil
}
