package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"sidekick/internal/domain"
	"sidekick/internal/events"
	"sidekick/internal/repo"
)

const scanScheme = "sidekick://equipment/"

type EquipmentOptions struct {
	ID        string
	Name      string
	Type      string
	HoistType string
	Location  string
	Model     string
	ActorID   string
}

func (e Engine) AddEquipment(ctx context.Context, opts EquipmentOptions) (domain.Equipment, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Equipment{}, errors.New("name is required")
	}
	if strings.TrimSpace(opts.Type) == "" {
		return domain.Equipment{}, errors.New("type is required")
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = "EQ-" + strings.ToUpper(uuid.NewString()[:8])
	}
	if strings.ContainsAny(id, " /") {
		return domain.Equipment{}, fmt.Errorf("equipment id %q must not contain spaces or slashes", id)
	}
	eq := domain.Equipment{
		ID:        id,
		Name:      strings.TrimSpace(opts.Name),
		Type:      strings.TrimSpace(opts.Type),
		HoistType: strings.TrimSpace(opts.HoistType),
		Location:  strings.TrimSpace(opts.Location),
		Model:     strings.TrimSpace(opts.Model),
		Status:    domain.EquipmentClear,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Equipment{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetEquipment(ctx, tx, id); err == nil {
		return domain.Equipment{}, fmt.Errorf("%w: equipment %s", ErrAlreadyExists, id)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Equipment{}, err
	}
	if err := e.Repo.InsertEquipment(ctx, tx, eq); err != nil {
		return domain.Equipment{}, fmt.Errorf("insert equipment: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.EquipmentAdded, eq.ID, "equipment", eq.ID, opts.ActorID, events.Payload{
		"name": eq.Name, "type": eq.Type, "hoist_type": eq.HoistType,
	}); err != nil {
		return domain.Equipment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Equipment{}, err
	}
	return e.withDerivedStatus(eq), nil
}

func (e Engine) GetEquipment(ctx context.Context, id string) (domain.Equipment, error) {
	eq, err := e.Repo.GetEquipment(ctx, nil, id)
	if err != nil {
		return eq, err
	}
	return e.withDerivedStatus(eq), nil
}

func (e Engine) ListEquipment(ctx context.Context, search string) ([]domain.Equipment, error) {
	list, err := e.Repo.ListEquipment(ctx, search)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i] = e.withDerivedStatus(list[i])
	}
	return list, nil
}

// withDerivedStatus marks Clear equipment Overdue when it was never inspected
// or the last inspection is older than the configured interval. Warning is
// kept: outstanding issues are reported before the schedule.
func (e Engine) withDerivedStatus(eq domain.Equipment) domain.Equipment {
	if eq.Status != domain.EquipmentClear {
		return eq
	}
	if eq.LastInspectedAt == nil {
		eq.Status = domain.EquipmentOverdue
		return eq
	}
	last, err := time.Parse(time.RFC3339, *eq.LastInspectedAt)
	if err != nil {
		return eq
	}
	due := last.Add(time.Duration(e.intervalDays()) * 24 * time.Hour)
	if e.now().After(due) {
		eq.Status = domain.EquipmentOverdue
	}
	return eq
}

// ParseScan extracts an equipment id from a QR payload: a bare id, a
// sidekick://equipment/<id> URI or an http(s) URL ending in the id.
func ParseScan(payload string) (string, error) {
	p := strings.TrimSpace(payload)
	if p == "" {
		return "", errors.New("empty scan payload")
	}
	lower := strings.ToLower(p)
	switch {
	case strings.HasPrefix(lower, scanScheme):
		p = p[len(scanScheme):]
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(p)
		if err != nil {
			return "", fmt.Errorf("invalid scan url: %w", err)
		}
		p = path.Base(strings.TrimRight(u.Path, "/"))
		if p == "." || p == "/" {
			return "", fmt.Errorf("scan url %s has no equipment id", payload)
		}
	}
	p = strings.Trim(p, "/ ")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	if p == "" {
		return "", fmt.Errorf("scan payload %q has no equipment id", payload)
	}
	return p, nil
}

// ResolveScan looks up the equipment a QR payload refers to.
func (e Engine) ResolveScan(ctx context.Context, payload string) (domain.Equipment, error) {
	id, err := ParseScan(payload)
	if err != nil {
		return domain.Equipment{}, err
	}
	eq, err := e.GetEquipment(ctx, id)
	if err != nil {
		return domain.Equipment{}, fmt.Errorf("equipment %s: %w", id, err)
	}
	return eq, nil
}

// Dashboard summarises equipment status and open work.
func (e Engine) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	list, err := e.ListEquipment(ctx, "")
	if err != nil {
		return domain.Dashboard{}, err
	}
	d := domain.Dashboard{
		Equipment: len(list),
		ByStatus: map[string]int{
			domain.EquipmentClear:   0,
			domain.EquipmentWarning: 0,
			domain.EquipmentOverdue: 0,
		},
	}
	for _, eq := range list {
		d.ByStatus[eq.Status]++
	}
	open, err := e.Repo.ListInspections(ctx, nil, "", domain.InspectionOpen)
	if err != nil {
		return domain.Dashboard{}, err
	}
	d.OpenInspections = len(open)
	for _, in := range open {
		d.OpenIssues += len(manifest(in))
	}
	return d, nil
}
