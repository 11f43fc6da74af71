package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sidekick/internal/db"
)

const fileName = "session.json"

func path(workspace string) string {
	return filepath.Join(db.Dir(workspace), fileName)
}

// Save persists the session in the workspace for later CLI calls.
func Save(workspace string, s Session) error {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path(workspace), data, 0o600)
}

// Load returns the stored session. Missing or expired sessions yield ErrNoSession.
func Load(workspace string, now time.Time) (Session, error) {
	data, err := os.ReadFile(path(workspace))
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if s.Expired(now) {
		return Session{}, fmt.Errorf("%w: session expired at %s", ErrNoSession, s.ExpiresAt.Format(time.RFC3339))
	}
	return s, nil
}

// Clear destroys the stored session. Clearing an absent session is not an error.
func Clear(workspace string) error {
	err := os.Remove(path(workspace))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
