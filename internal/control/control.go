// Package control implements the Control/Heartbeat Client (spec §4.F): a
// long-lived, non-blocking publisher/poller that reports partial Session
// state to a dashboard and folds remote commands into local control flags.
//
// Grounded on original_source/shared/agent_client.py's AgentClient
// (single-worker executor for fire-and-forget heartbeats, short-timeout
// polling) and shared/state.py's AgentControl fold rules.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// publishTimeout bounds a single heartbeat POST (spec §4.F "~2s").
const publishTimeout = 2 * time.Second

// Snapshot is the locally folded control state, returned by Poll.
type Snapshot struct {
	StopRequested  bool `json:"stop_requested"`
	PauseRequested bool `json:"pause_requested"`
	SkipRequested  bool `json:"skip_requested"`
}

type commandsResponse struct {
	Commands []string `json:"commands"`
}

// Client publishes heartbeats and polls for commands against a dashboard
// base URL. A single background goroutine serializes outbound heartbeat
// requests so publishing never blocks the caller (spec: "a single
// background executor thread delivers each update").
type Client struct {
	AgentID string
	BaseURL string
	HTTP    *http.Client

	mu       sync.Mutex
	local    Snapshot
	queue    chan map[string]any
	wg       sync.WaitGroup
	closed   chan struct{}
	closeOne sync.Once
}

// New constructs a Client and starts its background publisher worker.
func New(agentID, baseURL string) *Client {
	c := &Client{
		AgentID: agentID,
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    &http.Client{},
		queue:   make(chan map[string]any, 64),
		closed:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.publishLoop()
	return c
}

func (c *Client) publishLoop() {
	defer c.wg.Done()
	for {
		select {
		case partial := <-c.queue:
			c.doReportState(partial)
		case <-c.closed:
			return
		}
	}
}

// ReportState enqueues a partial state update and returns immediately.
// Delivery failures are swallowed (spec: "Failures are swallowed").
func (c *Client) ReportState(partial map[string]any) {
	select {
	case c.queue <- partial:
	default:
		// Queue full: drop rather than block the agent loop.
	}
}

func (c *Client) doReportState(partial map[string]any) {
	body, err := json.Marshal(partial)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/agents/%s/heartbeat", c.BaseURL, c.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// Poll issues a short-timeout GET for pending commands, folds each into
// local state per spec §4.F ("stop → stop_requested=true"; "pause →
// pause_requested=true"; "resume → pause_requested=false"; "skip →
// skip_requested=true"), and returns the resulting snapshot. Poll failures
// are swallowed and simply return the unchanged local snapshot.
func (c *Client) Poll(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/agents/%s/commands", c.BaseURL, c.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err == nil {
		if resp, err := c.HTTP.Do(req); err == nil {
			func() {
				defer resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					var data commandsResponse
					if json.NewDecoder(resp.Body).Decode(&data) == nil {
						c.applyCommands(data.Commands)
					}
				}
			}()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Client) applyCommands(commands []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cmd := range commands {
		c.applyCommandLocked(cmd)
	}
}

func (c *Client) applyCommandLocked(cmd string) {
	switch cmd {
	case "stop":
		c.local.StopRequested = true
	case "pause":
		c.local.PauseRequested = true
	case "resume":
		c.local.PauseRequested = false
	case "skip":
		c.local.SkipRequested = true
	}
}

// ClearSkip clears the local skip bit once the loop has honoured it.
func (c *Client) ClearSkip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local.SkipRequested = false
}

// Snapshot returns the current locally folded control state without
// polling the dashboard.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// Close stops the background publisher, waiting for any in-flight
// heartbeat to finish.
func (c *Client) Close() {
	c.closeOne.Do(func() { close(c.closed) })
	c.wg.Wait()
}
