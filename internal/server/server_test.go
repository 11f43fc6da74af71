package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sidekick/internal/config"
	"sidekick/internal/db"
	"sidekick/internal/domain"
	"sidekick/internal/engine"
	"sidekick/internal/events"
	"sidekick/internal/migrate"
	"sidekick/internal/session"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	e, err := engine.New(conn, cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := e.ImportConfig(context.Background(), cfg, "tester"); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	sessions := session.Manager{
		Repo:   e.Repo,
		Secret: "test-secret",
		TTL:    time.Hour,
		Cost:   bcrypt.MinCost,
	}
	handler, err := New(Config{Engine: e, Sessions: sessions, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

// login registers an inspector and returns bearer headers for it.
func login(t *testing.T, srv *testServer, email string) (map[string]string, string) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/register", map[string]any{
		"email":        email,
		"display_name": strings.Split(email, "@")[0],
		"password":     "correct horse",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email":    email,
		"password": "correct horse",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, res.StatusCode, string(data))
	}
	var s SessionResponse
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if s.Token == "" || s.InspectorID == "" {
		t.Fatalf("empty session: %s", string(data))
	}
	return map[string]string{"Authorization": "Bearer " + s.Token}, s.InspectorID
}

func errorCode(t *testing.T, data []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code, env.Error.Details
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/equipment", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	if code, _ := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("unexpected code %s", code)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/equipment", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email": "ghost@example.com", "password": "whatever1",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown login, got %d %s", res.StatusCode, string(data))
	}
}

func TestInspectionFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers, inspectorID := login(t, srv, "dana@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/equipment", map[string]any{
		"id": "CR-102", "name": "Bay 2 Overhead Crane", "type": "Overhead Crane",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create equipment: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/equipment", map[string]any{
		"id": "CR-102", "name": "again", "type": "Overhead Crane",
	}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected duplicate conflict, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/scan", map[string]any{"payload": "sidekick://equipment/CR-102"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("scan: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/inspections", map[string]any{"equipment_id": "CR-102"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start inspection: %d %s", res.StatusCode, string(data))
	}
	var started StartInspectionResponse
	if err := json.Unmarshal(data, &started); err != nil {
		t.Fatalf("unmarshal start: %v", err)
	}
	in := started.Inspection
	if in.InspectorID != inspectorID || in.Document.Template != "crane" || started.Resumed {
		t.Fatalf("unexpected inspection %+v resumed=%v", in, started.Resumed)
	}
	base := srv.URL + "/v0/inspections/" + in.ID

	res, data = doJSON(t, client, http.MethodPost, base+"/voice", map[string]any{"utterance": "Hoist motor and brakes needs repair"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("voice: %d %s", res.StatusCode, string(data))
	}
	var voiced engine.VoiceResult
	if err := json.Unmarshal(data, &voiced); err != nil {
		t.Fatalf("unmarshal voice: %v", err)
	}
	if !voiced.Matched || len(voiced.Updates) != 1 || voiced.Updates[0].ItemID != "h1" {
		t.Fatalf("unexpected voice result %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/voice", map[string]any{"utterance": "the weather is nice today"}, headers)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"matched":false`) {
		t.Fatalf("no-match voice: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/items/h1/cycle", nil, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected confirmation conflict, got %d %s", res.StatusCode, string(data))
	}
	code, details := errorCode(t, data)
	if code != "confirmation_required" || details["item_id"] != "h1" || details["from"] != "REPAIR" {
		t.Fatalf("unexpected confirmation %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/items/h1/confirm-reset", map[string]any{"from": "ATTENTION"}, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected stale confirmation, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/items/h1/confirm-reset", map[string]any{"from": "REPAIR"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm reset: %d %s", res.StatusCode, string(data))
	}
	var reset domain.Inspection
	_ = json.Unmarshal(data, &reset)
	if it, _, _ := reset.Document.Item("h1"); it.Status != "OK" || it.Notes != "" {
		t.Fatalf("h1 not reset: %+v", it)
	}

	res, data = doJSON(t, client, http.MethodPut, base+"/items/s1/note", map[string]any{"notes": "surface rust"}, headers)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"monitor_prompt":true`) {
		t.Fatalf("note: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, base+"/items/s1/monitor", map[string]any{"monitor": true}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("monitor: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/items/t3/cycle", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cycle t3: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/items/zz/cycle", nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected unknown item 404, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/manifest", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("manifest: %d %s", res.StatusCode, string(data))
	}
	var man ManifestResponse
	if err := json.Unmarshal(data, &man); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if len(man.Items) != 2 || man.Items[0].Item.ID != "s1" || man.Items[1].Item.ID != "t3" || man.Worst != "ATTENTION" {
		t.Fatalf("unexpected manifest %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/complete", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/items/s2/cycle", nil, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected closed conflict, got %d %s", res.StatusCode, string(data))
	}
	if code, _ := errorCode(t, data); code != "inspection_closed" {
		t.Fatalf("unexpected code %s", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/equipment/CR-102", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("equipment detail: %d %s", res.StatusCode, string(data))
	}
	var detail EquipmentDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.Equipment.Status != domain.EquipmentWarning || len(detail.Inspections) != 1 || detail.Inspections[0].Issues != 2 {
		t.Fatalf("unexpected detail %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/report", nil, headers)
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != xlsxContentType || len(data) == 0 {
		t.Fatalf("report: %d %s", res.StatusCode, res.Header.Get("Content-Type"))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_id="+in.ID+"&limit=100", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var evts EventList
	_ = json.Unmarshal(data, &evts)
	if len(evts.Items) == 0 || evts.Items[0].Type != events.InspectionCompleted {
		t.Fatalf("expected completion as latest event, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard", nil, headers)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"Warning":1`) {
		t.Fatalf("dashboard: %d %s", res.StatusCode, string(data))
	}
}

func TestOtherInspectorIsForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner, _ := login(t, srv, "owner@example.com")
	other, _ := login(t, srv, "other@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/equipment", map[string]any{"id": "HS-7", "name": "Chain hoist", "type": "Hoist", "hoist_type": "chain"}, owner)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create equipment: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/inspections", map[string]any{"equipment_id": "HS-7"}, owner)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start: %d %s", res.StatusCode, string(data))
	}
	var started StartInspectionResponse
	_ = json.Unmarshal(data, &started)
	if started.Inspection.Document.Template != "chain" {
		t.Fatalf("expected chain template, got %s", started.Inspection.Document.Template)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/inspections/"+started.Inspection.ID+"/items/h1/cycle", nil, other)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/inspections/"+started.Inspection.ID, nil, other)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("other inspector should read: %d %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers, inspectorID := login(t, srv, "kim@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{"name": "tablet"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil || key.Key == "" {
		t.Fatalf("unmarshal key: %v %s", err, string(data))
	}

	keyHeaders := map[string]string{"X-Api-Key": key.Key}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/auth/me", nil, keyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key: %d %s", res.StatusCode, string(data))
	}
	var me InspectorResponse
	_ = json.Unmarshal(data, &me)
	if me.ID != inspectorID || me.Email != "kim@example.com" {
		t.Fatalf("unexpected me %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/api-keys", nil, headers)
	if res.StatusCode != http.StatusOK || strings.Contains(string(data), key.Key) {
		t.Fatalf("list keys must not leak key material: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/api-keys/"+key.ID, nil, headers)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/auth/me", nil, keyHeaders)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key should fail, got %d %s", res.StatusCode, string(data))
	}
}

func TestOpenAPIIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi: %d %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "/v0/inspections/{inspection_id}/voice") || !strings.Contains(string(data), "bearerAuth") {
		t.Fatalf("openapi document incomplete")
	}
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{"inspection.completed", "item.*"})
	for evt, want := range map[string]bool{
		"inspection.completed": true,
		"item.cycled":          true,
		"item.reset.confirmed": true,
		"voice.applied":        false,
	} {
		if got := f.match(evt); got != want {
			t.Fatalf("match(%s) = %v, want %v", evt, got, want)
		}
	}
	if !newEventFilter(nil).match("anything") || !newEventFilter([]string{" ", "*"}).match("x") {
		t.Fatalf("empty or wildcard filter should match all")
	}
}

func TestWebhookDelivery(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	e := srv.Engine
	ctx := context.Background()

	var mu sync.Mutex
	var received []webhookEvent
	var secrets []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, evt)
		secrets = append(secrets, r.Header.Get("X-Sidekick-Secret"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	d := newWebhookDispatcher(e.Repo, []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{events.EquipmentAdded},
		Secret: "s3cret",
	}})
	// history before the dispatcher starts is not replayed
	d.cursorFor(ctx, 0)

	if _, err := e.AddEquipment(ctx, engine.EquipmentOptions{ID: "GC-1", Name: "Gantry", Type: "Gantry", ActorID: "tester"}); err != nil {
		t.Fatalf("add equipment: %v", err)
	}
	if _, _, err := e.StartInspection(ctx, "GC-1", "tester"); err != nil {
		t.Fatalf("start: %v", err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected one delivery, got %d", len(received))
	}
	if received[0].Type != events.EquipmentAdded || received[0].EquipmentID != "GC-1" || secrets[0] != "s3cret" {
		t.Fatalf("unexpected delivery %+v secret=%s", received[0], secrets[0])
	}
}
