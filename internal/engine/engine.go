package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sidekick/internal/checklist"
	"sidekick/internal/config"
	"sidekick/internal/events"
	"sidekick/internal/repo"
	"sidekick/internal/voice"
)

var (
	ErrInspectionClosed = errors.New("inspection is completed")
	ErrAlreadyExists    = errors.New("already exists")
)

// ConfirmationRequiredError is returned where a destructive reset has to be
// confirmed before it is applied.
type ConfirmationRequiredError struct {
	Request checklist.ConfirmationRequest
}

func (e *ConfirmationRequiredError) Error() string {
	return "confirmation required: " + e.Request.String()
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Voice  voice.Interpreter
	Now    func() time.Time
}

// New wires an engine over an open, migrated database.
func New(db *sql.DB, cfg *config.Config) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	interp, err := cfg.Interpreter()
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Voice:  interp,
		Now:    time.Now,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) catalog() checklist.Catalog {
	if e.Config == nil {
		return checklist.DefaultCatalog()
	}
	return e.Config.Catalog()
}

// interpreter carries the engine clock into the voice interpreter so notes are
// stamped with the same time as the audit events.
func (e Engine) interpreter() voice.Interpreter {
	in := e.Voice
	in.Now = e.now
	return in
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) intervalDays() int {
	if e.Config == nil || e.Config.Inspection.IntervalDays <= 0 {
		return 30
	}
	return e.Config.Inspection.IntervalDays
}

// ImportConfig validates and stores a new application config.
func (e Engine) ImportConfig(ctx context.Context, cfg *config.Config, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveConfig(ctx, tx, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.ConfigImported, "", "config", "", actorID, events.Payload{
		"templates":        cfg.Catalog().Names(),
		"default_template": cfg.DefaultTemplate,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
