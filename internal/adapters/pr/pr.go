// Package pr implements the Pull-request system adapter (spec §4.J):
// create a PR and fetch a repo's default branch against GitHub's REST API,
// plus remote-URL parsing into (host, owner, repo).
//
// Grounded on original_source/shared/github_client.py's GitHubClient
// (create_pr, get_repo_info_from_remote) and workflow.py's _get_remote_info
// / _create_pr, which drive it from `git remote get-url origin`.
package pr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Client talks to a GitHub (or GitHub Enterprise) REST API.
type Client struct {
	Token string
	Host  string // default "github.com"
	HTTP  *http.Client

	// APIBase overrides the derived API base URL; used by tests to point
	// at an httptest server instead of the real host.
	APIBase string
}

// New constructs a Client. An empty host defaults to "github.com".
func New(token, host string) *Client {
	if host == "" {
		host = "github.com"
	}
	return &Client{Token: token, Host: host, HTTP: &http.Client{Timeout: 15 * time.Second}}
}

func (c *Client) apiBase() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	if c.Host == "github.com" {
		return "https://api.github.com"
	}
	return fmt.Sprintf("https://%s/api/v3", c.Host)
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
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return c.HTTP.Do(req)
}

type createPRRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"`
	Base  string `json:"base"`
}

type createPRResponse struct {
	HTMLURL string `json:"html_url"`
}

// Create opens a Pull Request and returns its HTML URL, or "" if no token
// is configured (github_client.py logs a warning and returns None in that
// case rather than erroring — a missing credential is best-effort here).
func (c *Client) Create(ctx context.Context, owner, repo, head, base, title, body string) (string, error) {
	if c.Token == "" {
		return "", nil
	}
	if base == "" {
		base = "main"
	}
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", owner, repo), createPRRequest{
		Title: title, Body: body, Head: head, Base: base,
	})
	if err != nil {
		return "", fmt.Errorf("creating PR in %s/%s: %w", owner, repo, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("creating PR in %s/%s: %s: %s", owner, repo, resp.Status, data)
	}
	var parsed createPRResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding PR response: %w", err)
	}
	return parsed.HTMLURL, nil
}

// Metadata is the subset of repo metadata the core needs.
type Metadata struct {
	DefaultBranch string `json:"default_branch"`
}

// RepoMetadata fetches a repository's default branch.
func (c *Client) RepoMetadata(ctx context.Context, owner, repo string) (*Metadata, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, repo), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s/%s: %w", owner, repo, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetching metadata for %s/%s: %s: %s", owner, repo, resp.Status, data)
	}
	var parsed Metadata
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s/%s: %w", owner, repo, err)
	}
	return &parsed, nil
}

var (
	httpsRemotePattern = regexp.MustCompile(`^https?://(?:[^@/]+@)?(?P<host>[^/]+)/(?P<owner>[^/]+)/(?P<repo>[^/]+?)/?$`)
	sshRemotePattern   = regexp.MustCompile(`^git@(?P<host>[^:]+):(?P<owner>[^/]+)/(?P<repo>[^/]+?)/?$`)
)

// ParseRemote extracts (host, owner, repo) from a git remote URL, accepting
// both "https://[token@]host/owner/repo[.git]" and "git@host:owner/repo[.git]"
// (spec §4.J, grounded on get_repo_info_from_remote).
func ParseRemote(remoteURL string) (host, owner, repo string, ok bool) {
	clean := strings.TrimSpace(remoteURL)
	clean = strings.TrimSuffix(clean, ".git")

	if m := httpsRemotePattern.FindStringSubmatch(clean); m != nil {
		return m[1], m[2], m[3], true
	}
	if m := sshRemotePattern.FindStringSubmatch(clean); m != nil {
		return m[1], m[2], m[3], true
	}
	return "", "", "", false
}
