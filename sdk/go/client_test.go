package sidekicksdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sidekick/internal/app"
	"sidekick/internal/server"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	conn, e, err := app.Open(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	sessions := app.Sessions(e, "sdk-secret")
	sessions.Cost = bcrypt.MinCost
	handler, err := server.New(server.Config{Engine: e, Sessions: sessions, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientInspectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	if _, err := c.Register(ctx, "lee@example.com", "Lee", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := c.Login(ctx, "lee@example.com", "wrong password"); err == nil {
		t.Fatalf("expected login failure")
	}
	s, err := c.Login(ctx, "lee@example.com", "correct horse")
	if err != nil || c.BearerToken == "" {
		t.Fatalf("login: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, s.ExpiresAt); err != nil {
		t.Fatalf("expires_at not RFC3339: %s", s.ExpiresAt)
	}

	if _, err := c.CreateEquipment(ctx, Equipment{ID: "HS-3", Name: "Wire rope hoist", Type: "Hoist", HoistType: "wire-rope"}); err != nil {
		t.Fatalf("create equipment: %v", err)
	}
	eq, err := c.Scan(ctx, "https://labels.example.com/q/HS-3")
	if err != nil || eq.ID != "HS-3" {
		t.Fatalf("scan: %+v %v", eq, err)
	}

	in, resumed, err := c.StartInspection(ctx, "HS-3")
	if err != nil || resumed || in.Document.Template != "wire-rope" {
		t.Fatalf("start: %+v %v %v", in, resumed, err)
	}
	again, resumed, err := c.StartInspection(ctx, "HS-3")
	if err != nil || !resumed || again.ID != in.ID {
		t.Fatalf("expected resume of %s, got %s resumed=%v err=%v", in.ID, again.ID, resumed, err)
	}

	if _, err := c.Cycle(ctx, in.ID, "h2"); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	res, err := c.SetNote(ctx, in.ID, "h2", "strand broken near drum")
	if err != nil || res.MonitorPrompt {
		t.Fatalf("note: %+v %v", res, err)
	}
	if _, err := c.Cycle(ctx, in.ID, "h2"); err != nil {
		t.Fatalf("cycle to repair: %v", err)
	}
	_, err = c.Cycle(ctx, in.ID, "h2")
	if !IsConfirmationRequired(err) {
		t.Fatalf("expected confirmation_required, got %v", err)
	}
	updated, err := c.ConfirmReset(ctx, in.ID, "h2", "")
	if err != nil {
		t.Fatalf("confirm reset: %v", err)
	}
	if it, ok := updated.Document.Item("h2"); !ok || it.Status != "OK" || it.Notes != "" {
		t.Fatalf("h2 not reset: %+v", it)
	}

	if _, err := c.SectionAllOK(ctx, in.ID, "Trolley"); err != nil {
		t.Fatalf("all ok: %v", err)
	}
	voiced, err := c.Voice(ctx, in.ID, "bolts are loose")
	if err != nil || !voiced.Matched {
		t.Fatalf("voice: %+v %v", voiced, err)
	}
	man, err := c.Manifest(ctx, in.ID)
	if err != nil || len(man.Items) != 1 || man.Items[0].Item.ID != "s2" {
		t.Fatalf("manifest: %+v %v", man, err)
	}
	if _, err := c.Complete(ctx, in.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	data, err := c.Report(ctx, in.ID)
	if err != nil || len(data) < 4 || string(data[:2]) != "PK" {
		t.Fatalf("report: %d bytes %v", len(data), err)
	}
	d, err := c.Dashboard(ctx)
	if err != nil || d.ByStatus["Warning"] != 1 || d.OpenInspections != 0 {
		t.Fatalf("dashboard: %+v %v", d, err)
	}
	evts, err := c.Events(ctx, "HS-3", 5)
	if err != nil || len(evts) == 0 || evts[0].Type != "inspection.completed" {
		t.Fatalf("events: %+v %v", evts, err)
	}
}

func TestClientAPIKey(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	if _, err := c.Register(ctx, "ops@example.com", "", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := c.Login(ctx, "ops@example.com", "correct horse"); err != nil {
		t.Fatalf("login: %v", err)
	}
	key, err := c.CreateAPIKey(ctx, "ci")
	if err != nil || key.Key == "" {
		t.Fatalf("create key: %+v %v", key, err)
	}

	keyed := New(c.BaseURL)
	keyed.APIKey = key.Key
	me, err := keyed.Me(ctx)
	if err != nil || me.Email != "ops@example.com" || me.DisplayName != "ops" {
		t.Fatalf("me: %+v %v", me, err)
	}

	anon := New(c.BaseURL)
	_, err = anon.ListEquipment(ctx, "")
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != 401 || apiErr.Code != "unauthorized" {
		t.Fatalf("expected 401 envelope, got %v", err)
	}
}
