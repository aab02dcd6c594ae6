package heatlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Heatline HTTP API client.
type Client struct {
	BaseURL    string
	ProjectID  string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
	Location  string  `json:"location,omitempty"`
	Client    string  `json:"client,omitempty"`
	Progress  int     `json:"progress"`
	UpdatedAt string  `json:"updated_at"`
}

// Summary is the completion of one form.
type Summary struct {
	Percent         int      `json:"percent"`
	Filled          int      `json:"filled"`
	Total           int      `json:"total"`
	Missing         []string `json:"missing"`
	MissingRequired []string `json:"missing_required"`
}

// Phase is a phase record with its completion.
type Phase struct {
	Phase  string `json:"phase"`
	Record struct {
		ID        string         `json:"id"`
		ProjectID string         `json:"project_id"`
		Fields    map[string]any `json:"fields"`
		UpdatedAt string         `json:"updated_at,omitempty"`
	} `json:"record"`
	Summary Summary `json:"summary"`
	Stored  bool    `json:"stored"`
}

type PhaseProgress struct {
	Phase           string   `json:"phase"`
	Title           string   `json:"title"`
	Percent         int      `json:"percent"`
	Stored          bool     `json:"stored"`
	MissingRequired []string `json:"missing_required"`
}

type ChecklistSummary struct {
	Total        int `json:"total"`
	Required     int `json:"required"`
	RequiredDone int `json:"required_done"`
	Percent      int `json:"percent"`
}

// Overview is the completion of every phase plus the checklist aggregate.
type Overview struct {
	Project   Project          `json:"project"`
	Phases    []PhaseProgress  `json:"phases"`
	Checklist ChecklistSummary `json:"checklist"`
}

// ChecklistItem represents a checklist entry.
type ChecklistItem struct {
	ID            string   `json:"id,omitempty"`
	ProjectID     string   `json:"project_id,omitempty"`
	Category      string   `json:"category"`
	Description   string   `json:"description"`
	Required      bool     `json:"required,omitempty"`
	Status        string   `json:"status,omitempty"`
	Responsible   string   `json:"responsible,omitempty"`
	PlannedDate   *string  `json:"planned_date,omitempty"`
	CompletedDate *string  `json:"completed_date,omitempty"`
	Documents     []string `json:"documents,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// ChecklistResult is a stored item. Warning is set when the item was stored
// but the project's progress was not refreshed.
type ChecklistResult struct {
	Item    ChecklistItem `json:"item"`
	Warning string        `json:"warning,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// GetProject returns the client's project.
func (c *Client) GetProject(ctx context.Context) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(""), nil, &resp)
	return resp, err
}

// GetPhase returns a phase record; unsaved phases come back with defaults.
func (c *Client) GetPhase(ctx context.Context, phase string) (Phase, error) {
	var resp Phase
	err := c.do(ctx, http.MethodGet, c.projectPath("phases/"+url.PathEscape(phase)), nil, &resp)
	return resp, err
}

// SavePhase applies field changes and stores the record. A nil value clears
// a field.
func (c *Client) SavePhase(ctx context.Context, phase string, fields map[string]any) (Phase, error) {
	var resp Phase
	err := c.do(ctx, http.MethodPut, c.projectPath("phases/"+url.PathEscape(phase)), map[string]any{"fields": fields}, &resp)
	return resp, err
}

// PreviewPhase reports the completion the changes would give without
// storing them.
func (c *Client) PreviewPhase(ctx context.Context, phase string, fields map[string]any) (Phase, error) {
	var resp Phase
	err := c.do(ctx, http.MethodPost, c.projectPath("phases/"+url.PathEscape(phase)+"/preview"), map[string]any{"fields": fields}, &resp)
	return resp, err
}

// Overview returns per-phase completion and checklist progress.
func (c *Client) Overview(ctx context.Context) (Overview, error) {
	var resp Overview
	err := c.do(ctx, http.MethodGet, c.projectPath("overview"), nil, &resp)
	return resp, err
}

// AddChecklistItem creates a checklist item.
func (c *Client) AddChecklistItem(ctx context.Context, item ChecklistItem) (ChecklistResult, error) {
	var resp ChecklistResult
	err := c.do(ctx, http.MethodPost, c.projectPath("checklist"), item, &resp)
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
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return fmt.Sprintf("v0/projects/%s", project)
	}
	return fmt.Sprintf("v0/projects/%s/%s", project, p)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
