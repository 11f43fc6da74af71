package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sidekick/internal/config"
	"sidekick/internal/db"
	"sidekick/internal/engine"
	"sidekick/internal/migrate"
	"sidekick/internal/repo"
	"sidekick/internal/session"
)

// ResolveConfig loads the application config stored in the DB, seeding the
// default config on first use.
func ResolveConfig(ctx context.Context, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed := config.Default()
	if err := r.SaveConfig(ctx, nil, seed); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return seed, nil
}

// Open prepares the workspace database and returns an engine bound to it.
// The caller closes the returned connection.
func Open(ctx context.Context, workspace string) (*sql.DB, engine.Engine, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, engine.Engine{}, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, engine.Engine{}, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := ResolveConfig(ctx, repo.Repo{DB: conn})
	if err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	e, err := engine.New(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	return conn, e, nil
}

// Sessions builds the session manager sharing the engine's repo, clock and
// token lifetime.
func Sessions(e engine.Engine, secret string) session.Manager {
	ttl := 12 * time.Hour
	if e.Config != nil && e.Config.Auth.TokenTTLMinutes > 0 {
		ttl = time.Duration(e.Config.Auth.TokenTTLMinutes) * time.Minute
	}
	return session.Manager{
		Repo:   e.Repo,
		Events: e.Events,
		Secret: secret,
		TTL:    ttl,
		Now:    e.Now,
	}
}
