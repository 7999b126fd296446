// Package redmine provides the Redmine REST client used as the sync target.
package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chameleoncloud/taskblaster/internal/model"
)

// pageSize is the largest page Redmine returns for list endpoints.
const pageSize = 100

// APIError is returned when Redmine answers with an unexpected status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("redmine %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to one Redmine project.
type Client struct {
	baseURL string
	apiKey  string
	project string
	http    *http.Client
}

// NewClient creates a client for the given Redmine URL, API key and project
// identifier.
func NewClient(baseURL, apiKey, project string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		project: project,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// --- wire types ---

type namedRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (r *namedRef) toModel() *model.Ref {
	if r == nil {
		return nil
	}
	return &model.Ref{ID: r.ID, Name: r.Name}
}

type issue struct {
	ID           int       `json:"id"`
	Subject      string    `json:"subject"`
	Description  string    `json:"description"`
	Priority     *namedRef `json:"priority"`
	Category     *namedRef `json:"category"`
	FixedVersion *namedRef `json:"fixed_version"`
	AssignedTo   *namedRef `json:"assigned_to"`
	Journals     []struct {
		ID    int    `json:"id"`
		Notes string `json:"notes"`
	} `json:"journals"`
}

func (i issue) toModel() *model.Ticket {
	t := &model.Ticket{
		ID:           i.ID,
		Subject:      i.Subject,
		Description:  i.Description,
		Priority:     i.Priority.toModel(),
		Category:     i.Category.toModel(),
		FixedVersion: i.FixedVersion.toModel(),
		AssignedTo:   i.AssignedTo.toModel(),
	}
	for _, j := range i.Journals {
		t.Journals = append(t.Journals, model.Journal{ID: j.ID, Notes: j.Notes})
	}
	return t
}

type version struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	DueDate string `json:"due_date"`
}

// --- tracker operations ---

// Ticket fetches an issue together with its journals.
func (c *Client) Ticket(ctx context.Context, id int) (*model.Ticket, error) {
	var resp struct {
		Issue issue `json:"issue"`
	}
	path := fmt.Sprintf("/issues/%d.json", id)
	if err := c.do(ctx, http.MethodGet, path, url.Values{"include": {"journals"}}, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch ticket %d: %w", id, err)
	}
	return resp.Issue.toModel(), nil
}

// CreateTicket creates an issue in the client's project from the given
// field payload and returns it.
func (c *Client) CreateTicket(ctx context.Context, fields map[string]any) (*model.Ticket, error) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["project_id"] = c.project

	var resp struct {
		Issue issue `json:"issue"`
	}
	if err := c.do(ctx, http.MethodPost, "/issues.json", nil, map[string]any{"issue": body}, &resp); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return resp.Issue.toModel(), nil
}

// UpdateTicket applies the field payload to an issue. A "notes" key appends
// a journal note.
func (c *Client) UpdateTicket(ctx context.Context, id int, fields map[string]any) error {
	path := fmt.Sprintf("/issues/%d.json", id)
	if err := c.do(ctx, http.MethodPut, path, nil, map[string]any{"issue": fields}, nil); err != nil {
		return fmt.Errorf("failed to update ticket %d: %w", id, err)
	}
	return nil
}

// Priorities lists the issue priority enumeration.
func (c *Client) Priorities(ctx context.Context) ([]model.Ref, error) {
	var resp struct {
		Priorities []namedRef `json:"issue_priorities"`
	}
	if err := c.do(ctx, http.MethodGet, "/enumerations/issue_priorities.json", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list priorities: %w", err)
	}
	return toRefs(resp.Priorities), nil
}

// Categories lists the project's issue categories.
func (c *Client) Categories(ctx context.Context) ([]model.Ref, error) {
	var resp struct {
		Categories []namedRef `json:"issue_categories"`
	}
	path := fmt.Sprintf("/projects/%s/issue_categories.json", url.PathEscape(c.project))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return toRefs(resp.Categories), nil
}

// Members lists the users that are members of the project. Group
// memberships are skipped since issues are assigned to users.
func (c *Client) Members(ctx context.Context) ([]model.Ref, error) {
	var users []model.Ref
	path := fmt.Sprintf("/projects/%s/memberships.json", url.PathEscape(c.project))
	for offset := 0; ; offset += pageSize {
		var resp struct {
			Memberships []struct {
				User *namedRef `json:"user"`
			} `json:"memberships"`
			TotalCount int `json:"total_count"`
		}
		query := url.Values{
			"limit":  {strconv.Itoa(pageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		if err := c.do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to list members: %w", err)
		}
		for _, m := range resp.Memberships {
			if m.User != nil {
				users = append(users, *m.User.toModel())
			}
		}
		if len(resp.Memberships) == 0 || offset+pageSize >= resp.TotalCount {
			break
		}
	}
	return users, nil
}

// Versions lists the project's open versions.
func (c *Client) Versions(ctx context.Context) ([]model.Version, error) {
	var resp struct {
		Versions []version `json:"versions"`
	}
	path := fmt.Sprintf("/projects/%s/versions.json", url.PathEscape(c.project))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	var versions []model.Version
	for _, v := range resp.Versions {
		if v.Status != "open" {
			continue
		}
		mv := model.Version{ID: v.ID, Name: v.Name, Status: v.Status}
		if v.DueDate != "" {
			due, err := time.Parse("2006-01-02", v.DueDate)
			if err != nil {
				slog.Warn("could not parse version due date, ignoring it", "version", v.Name, "due_date", v.DueDate)
			} else {
				mv.DueDate = &due
			}
		}
		versions = append(versions, mv)
	}
	return versions, nil
}

func toRefs(in []namedRef) []model.Ref {
	refs := make([]model.Ref, 0, len(in))
	for _, r := range in {
		refs = append(refs, model.Ref{ID: r.ID, Name: r.Name})
	}
	return refs
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("redmine request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
