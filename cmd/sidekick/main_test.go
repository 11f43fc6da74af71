package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"sidekick/internal/session"
)

func TestSetEnvValueReplacesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("A=1\nSIDEKICK_ACTOR_ID=old\n# note\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := setEnvValue(path, "SIDEKICK_ACTOR_ID", "insp-2"); err != nil {
		t.Fatalf("set existing: %v", err)
	}
	if err := setEnvValue(path, "SIDEKICK_JWT_SECRET", "abc"); err != nil {
		t.Fatalf("append: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "A=1\nSIDEKICK_ACTOR_ID=insp-2\n# note\nSIDEKICK_JWT_SECRET=abc\n"
	if string(data) != want {
		t.Fatalf("unexpected .env:\n%s", string(data))
	}
}

func TestCurrentActorPrefersSession(t *testing.T) {
	workspace := t.TempDir()
	viper.Set("actor-id", "flag-actor")
	defer viper.Set("actor-id", "")

	id, err := currentActor(workspace)
	if err != nil || id != "flag-actor" {
		t.Fatalf("expected flag actor, got %q %v", id, err)
	}

	s := session.Session{InspectorID: "insp-1", Token: "t", ExpiresAt: time.Now().Add(time.Hour)}
	if err := session.Save(workspace, s); err != nil {
		t.Fatalf("save session: %v", err)
	}
	id, err = currentActor(workspace)
	if err != nil || id != "insp-1" {
		t.Fatalf("expected session actor, got %q %v", id, err)
	}

	viper.Set("actor-id", "")
	if err := session.Clear(workspace); err != nil {
		t.Fatal(err)
	}
	if _, err := currentActor(workspace); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if got := actorOrLocal(workspace); got != "local" {
		t.Fatalf("expected local fallback, got %s", got)
	}
}

func TestPasswordOrEnv(t *testing.T) {
	initConfig()
	t.Setenv("SIDEKICK_PASSWORD", "from-env")
	if got := passwordOrEnv(""); got != "from-env" {
		t.Fatalf("expected env password, got %q", got)
	}
	if got := passwordOrEnv("from-flag"); got != "from-flag" {
		t.Fatalf("expected flag password, got %q", got)
	}
}
