// Package ticket implements the Ticket system adapter (spec §4.J): a thin
// Jira REST client exposing the contract the core needs — get, find the
// first open issue by label, transition, comment.
//
// Grounded on original_source/shared/jira_client.py's JiraClient, ported
// from the `jira` Python library's basic-auth issue/transition/comment
// calls onto Jira's Cloud REST API v3 directly over net/http, matching the
// Control/Heartbeat client's (internal/control) plain-net/http style since
// no Jira Go client appears anywhere in the example corpus.
package ticket

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

// Comment is one comment body on an Issue.
type Comment struct {
	Body string `json:"body"`
}

// Issue is the subset of a Jira issue the core cares about (spec §4.J).
type Issue struct {
	Key         string    `json:"key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Comments    []Comment `json:"comments"`
}

// Client is a minimal Jira Cloud REST client.
type Client struct {
	BaseURL string
	Email   string
	Token   string
	HTTP    *http.Client
}

// New constructs a Client. baseURL is the Jira site root, e.g.
// "https://yourcompany.atlassian.net".
func New(baseURL, email, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Email:   email,
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.Email, c.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.HTTP.Do(req)
}

type issueFieldsResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description any    `json:"description"`
		Comment     struct {
			Comments []struct {
				Body any `json:"body"`
			} `json:"comments"`
		} `json:"comment"`
	} `json:"fields"`
}

// renderADF returns a description/comment body as text: plain strings (as
// Jira Server/Data Center returns them) pass through unchanged; any other
// value, such as a Jira Cloud Atlassian Document Format object, is returned
// as its JSON encoding rather than flattened to plain text.
func renderADF(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Get fetches a single issue by key. A 404 yields (nil, nil), matching
// jira_client.py's get_issue not-found behaviour.
func (c *Client) Get(ctx context.Context, key string) (*Issue, error) {
	resp, err := c.do(ctx, http.MethodGet, "/rest/api/3/issue/"+url.PathEscape(key)+"?fields=summary,description,comment", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching issue %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetching issue %s: %s: %s", key, resp.Status, data)
	}

	var parsed issueFieldsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding issue %s: %w", key, err)
	}

	issue := &Issue{
		Key:         parsed.Key,
		Summary:     parsed.Fields.Summary,
		Description: renderADF(parsed.Fields.Description),
	}
	for _, raw := range parsed.Fields.Comment.Comments {
		issue.Comments = append(issue.Comments, Comment{Body: renderADF(raw.Body)})
	}
	return issue, nil
}

type searchResponse struct {
	Issues []issueFieldsResponse `json:"issues"`
}

// FirstOpenByLabel finds the highest-priority, oldest "To Do"-category
// issue carrying label, mirroring jira_client.py's get_first_todo_by_label.
func (c *Client) FirstOpenByLabel(ctx context.Context, label string) (*Issue, error) {
	jql := fmt.Sprintf(`labels = %q AND statusCategory = "To Do" ORDER BY priority DESC, created ASC`, label)
	body := map[string]any{"jql": jql, "maxResults": 1, "fields": []string{"summary", "description", "comment"}}
	resp, err := c.do(ctx, http.MethodPost, "/rest/api/3/search", body)
	if err != nil {
		return nil, fmt.Errorf("searching issues for label %s: %w", label, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("searching issues for label %s: %s: %s", label, resp.Status, data)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}
	if len(parsed.Issues) == 0 {
		return nil, nil
	}
	first := parsed.Issues[0]
	issue := &Issue{Key: first.Key, Summary: first.Fields.Summary, Description: renderADF(first.Fields.Description)}
	for _, raw := range first.Fields.Comment.Comments {
		issue.Comments = append(issue.Comments, Comment{Body: renderADF(raw.Body)})
	}
	return issue, nil
}

type transitionsResponse struct {
	Transitions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"transitions"`
}

// Transition moves an issue to the named status, resolving the status name
// to a transition id first (Jira's API addresses transitions by id, not
// name — jira_client.py's transition_issue does the same lookup).
func (c *Client) Transition(ctx context.Context, key, statusName string) error {
	resp, err := c.do(ctx, http.MethodGet, "/rest/api/3/issue/"+url.PathEscape(key)+"/transitions", nil)
	if err != nil {
		return fmt.Errorf("listing transitions for %s: %w", key, err)
	}
	var parsed transitionsResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing transitions for %s: %s", key, resp.Status)
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding transitions for %s: %w", key, decodeErr)
	}

	var transitionID string
	var available []string
	for _, t := range parsed.Transitions {
		available = append(available, t.Name)
		if strings.EqualFold(t.Name, statusName) {
			transitionID = t.ID
			break
		}
	}
	if transitionID == "" {
		return fmt.Errorf("transition to %q not found for %s (available: %s)", statusName, key, strings.Join(available, ", "))
	}

	body := map[string]any{"transition": map[string]string{"id": transitionID}}
	resp2, err := c.do(ctx, http.MethodPost, "/rest/api/3/issue/"+url.PathEscape(key)+"/transitions", body)
	if err != nil {
		return fmt.Errorf("applying transition to %s: %w", key, err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNoContent && resp2.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp2.Body)
		return fmt.Errorf("applying transition to %s: %s: %s", key, resp2.Status, data)
	}
	return nil
}

// Comment adds a plain-text comment to an issue.
func (c *Client) Comment(ctx context.Context, key, body string) error {
	payload := map[string]any{
		"body": map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []map[string]any{
				{"type": "paragraph", "content": []map[string]any{{"type": "text", "text": body}}},
			},
		},
	}
	resp, err := c.do(ctx, http.MethodPost, "/rest/api/3/issue/"+url.PathEscape(key)+"/comment", payload)
	if err != nil {
		return fmt.Errorf("commenting on %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("commenting on %s: %s: %s", key, resp.Status, data)
	}
	return nil
}
