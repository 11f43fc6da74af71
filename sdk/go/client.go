package sidekicksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Sidekick HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Equipment struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	HoistType       string  `json:"hoist_type,omitempty"`
	Location        string  `json:"location,omitempty"`
	Model           string  `json:"model,omitempty"`
	Status          string  `json:"status"`
	LastInspectedAt *string `json:"last_inspected_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

type Item struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
	IsMonitor *bool  `json:"is_monitor,omitempty"`
}

type Section struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

type Document struct {
	Template string    `json:"template"`
	Sections []Section `json:"sections"`
}

// Item returns the item with the given id.
func (d Document) Item(id string) (Item, bool) {
	for _, s := range d.Sections {
		for _, it := range s.Items {
			if it.ID == id {
				return it, true
			}
		}
	}
	return Item{}, false
}

type Inspection struct {
	ID          string   `json:"id"`
	EquipmentID string   `json:"equipment_id"`
	InspectorID string   `json:"inspector_id"`
	Status      string   `json:"status"`
	Document    Document `json:"document"`
	Version     int      `json:"version"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	CompletedAt *string  `json:"completed_at,omitempty"`
}

type Session struct {
	InspectorID string `json:"inspector_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
	ExpiresAt   string `json:"expires_at"`
}

type Inspector struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	Key       string `json:"key,omitempty"`
}

type VoiceUpdate struct {
	ItemID  string  `json:"item_id"`
	Section string  `json:"section"`
	Label   string  `json:"label"`
	Status  *string `json:"status,omitempty"`
	Clause  string  `json:"clause"`
}

type VoiceResult struct {
	Inspection Inspection    `json:"inspection"`
	Matched    bool          `json:"matched"`
	Updates    []VoiceUpdate `json:"updates"`
}

type NoteResult struct {
	Inspection    Inspection `json:"inspection"`
	MonitorPrompt bool       `json:"monitor_prompt"`
}

type ManifestEntry struct {
	Section string `json:"section"`
	Item    Item   `json:"item"`
}

type Manifest struct {
	InspectionID string          `json:"inspection_id"`
	Worst        string          `json:"worst"`
	Items        []ManifestEntry `json:"items"`
}

// Event represents a log entry.
type Event struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	Type        string         `json:"type"`
	EquipmentID string         `json:"equipment_id,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	Payload     map[string]any `json:"payload"`
}

type Dashboard struct {
	Equipment       int            `json:"equipment"`
	ByStatus        map[string]int `json:"by_status"`
	OpenInspections int            `json:"open_inspections"`
	OpenIssues      int            `json:"open_issues"`
}

// APIError wraps non-2xx responses. Code and Details come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConfirmationRequired reports whether a cycle was refused pending a
// confirm-reset call.
func IsConfirmationRequired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "confirmation_required"
}

// Register creates an inspector account.
func (c *Client) Register(ctx context.Context, email, displayName, password string) (Inspector, error) {
	body := map[string]any{
		"email":        email,
		"display_name": displayName,
		"password":     password,
	}
	var resp Inspector
	err := c.do(ctx, http.MethodPost, "auth/register", body, &resp)
	return resp, err
}

// Login exchanges credentials for a token and uses it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Me returns the authenticated inspector.
func (c *Client) Me(ctx context.Context) (Inspector, error) {
	var resp Inspector
	err := c.do(ctx, http.MethodGet, "auth/me", nil, &resp)
	return resp, err
}

// CreateAPIKey creates a key; the plain key is only present in this response.
func (c *Client) CreateAPIKey(ctx context.Context, name string) (APIKey, error) {
	var resp APIKey
	err := c.do(ctx, http.MethodPost, "api-keys", map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) CreateEquipment(ctx context.Context, eq Equipment) (Equipment, error) {
	body := map[string]any{
		"id":         eq.ID,
		"name":       eq.Name,
		"type":       eq.Type,
		"hoist_type": eq.HoistType,
		"location":   eq.Location,
		"model":      eq.Model,
	}
	var resp Equipment
	err := c.do(ctx, http.MethodPost, "equipment", body, &resp)
	return resp, err
}

func (c *Client) ListEquipment(ctx context.Context, search string) ([]Equipment, error) {
	endpoint := "equipment"
	if search != "" {
		endpoint += "?search=" + url.QueryEscape(search)
	}
	var resp struct {
		Items []Equipment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Scan resolves a QR payload to equipment.
func (c *Client) Scan(ctx context.Context, payload string) (Equipment, error) {
	var resp Equipment
	err := c.do(ctx, http.MethodPost, "scan", map[string]any{"payload": payload}, &resp)
	return resp, err
}

// StartInspection starts an inspection, or resumes the caller's open one.
func (c *Client) StartInspection(ctx context.Context, equipmentID string) (Inspection, bool, error) {
	var resp struct {
		Inspection Inspection `json:"inspection"`
		Resumed    bool       `json:"resumed"`
	}
	err := c.do(ctx, http.MethodPost, "inspections", map[string]any{"equipment_id": equipmentID}, &resp)
	return resp.Inspection, resp.Resumed, err
}

func (c *Client) GetInspection(ctx context.Context, id string) (Inspection, error) {
	var resp Inspection
	err := c.do(ctx, http.MethodGet, inspectionPath(id, ""), nil, &resp)
	return resp, err
}

// Cycle advances an item. A refused reset returns an APIError for which
// IsConfirmationRequired is true.
func (c *Client) Cycle(ctx context.Context, inspectionID, itemID string) (Inspection, error) {
	var resp Inspection
	err := c.do(ctx, http.MethodPost, itemPath(inspectionID, itemID, "cycle"), nil, &resp)
	return resp, err
}

// ConfirmReset resets an item to OK. from may be empty.
func (c *Client) ConfirmReset(ctx context.Context, inspectionID, itemID, from string) (Inspection, error) {
	body := map[string]any{}
	if from != "" {
		body["from"] = from
	}
	var resp Inspection
	err := c.do(ctx, http.MethodPost, itemPath(inspectionID, itemID, "confirm-reset"), body, &resp)
	return resp, err
}

func (c *Client) SetNote(ctx context.Context, inspectionID, itemID, notes string) (NoteResult, error) {
	var resp NoteResult
	err := c.do(ctx, http.MethodPut, itemPath(inspectionID, itemID, "note"), map[string]any{"notes": notes}, &resp)
	return resp, err
}

func (c *Client) SetMonitor(ctx context.Context, inspectionID, itemID string, monitor bool) (Inspection, error) {
	var resp Inspection
	err := c.do(ctx, http.MethodPut, itemPath(inspectionID, itemID, "monitor"), map[string]any{"monitor": monitor}, &resp)
	return resp, err
}

func (c *Client) SectionAllOK(ctx context.Context, inspectionID, section string) (Inspection, error) {
	var resp Inspection
	endpoint := inspectionPath(inspectionID, fmt.Sprintf("sections/%s/all-ok", url.PathEscape(section)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Voice applies a dictated utterance.
func (c *Client) Voice(ctx context.Context, inspectionID, utterance string) (VoiceResult, error) {
	var resp VoiceResult
	err := c.do(ctx, http.MethodPost, inspectionPath(inspectionID, "voice"), map[string]any{"utterance": utterance}, &resp)
	return resp, err
}

func (c *Client) Manifest(ctx context.Context, inspectionID string) (Manifest, error) {
	var resp Manifest
	err := c.do(ctx, http.MethodGet, inspectionPath(inspectionID, "manifest"), nil, &resp)
	return resp, err
}

func (c *Client) Complete(ctx context.Context, inspectionID string) (Inspection, error) {
	var resp Inspection
	err := c.do(ctx, http.MethodPost, inspectionPath(inspectionID, "complete"), nil, &resp)
	return resp, err
}

// Report downloads the XLSX report.
func (c *Client) Report(ctx context.Context, inspectionID string) ([]byte, error) {
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, inspectionPath(inspectionID, "report"), nil, &buf)
	return buf.Bytes(), err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, equipmentID string, limit int) ([]Event, error) {
	q := url.Values{}
	if equipmentID != "" {
		q.Set("equipment_id", equipmentID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "dashboard", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeError(resp.StatusCode, b)
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case io.Writer:
		_, err := io.Copy(dst, resp.Body)
		return err
	default:
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func inspectionPath(id, rest string) string {
	p := "inspections/" + url.PathEscape(id)
	if rest != "" {
		p += "/" + rest
	}
	return p
}

func itemPath(inspectionID, itemID, action string) string {
	return inspectionPath(inspectionID, fmt.Sprintf("items/%s/%s", url.PathEscape(itemID), action))
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
