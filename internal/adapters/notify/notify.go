// Package notify implements the Notification fan-out adapter (spec §4.J):
// a fixed event-kind enum fanned out to Slack and Discord webhooks, gated
// by a per-kind/per-channel enablement matrix, always best-effort.
//
// Grounded on original_source/shared/notifications.py's NotificationManager.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind is one of the fixed notification event kinds (spec §4.J).
type Kind string

const (
	KindIteration          Kind = "iteration"
	KindManager            Kind = "manager"
	KindHumanInLoop        Kind = "human_in_loop"
	KindProjectCompletion  Kind = "project_completion"
	KindError              Kind = "error"
	KindAgentStart         Kind = "agent_start"
	KindAgentStop          Kind = "agent_stop"
	KindSprintStart        Kind = "sprint_start"
	KindSprintTaskComplete Kind = "sprint_task_complete"
	KindSprintComplete     Kind = "sprint_complete"
)

// Channel is an output surface a notification can be fanned out to.
type Channel string

const (
	ChannelSlack   Channel = "slack"
	ChannelDiscord Channel = "discord"
)

// defaultEnabled mirrors notifications.py's default_settings: events not
// listed here are disabled by default.
var defaultEnabled = map[Kind]bool{
	KindManager:            true,
	KindHumanInLoop:        true,
	KindProjectCompletion:  true,
	KindAgentStart:         true,
	KindAgentStop:          true,
	KindSprintComplete:     true,
}

// Settings is the configuration matrix: per-kind override, either a single
// bool for all channels or a per-channel map. Absent entries fall back to
// defaultEnabled.
type Settings map[Kind]any

func (s Settings) enabled(kind Kind, channel Channel) bool {
	if raw, ok := s[kind]; ok {
		switch v := raw.(type) {
		case bool:
			return v
		case map[Channel]bool:
			return v[channel]
		case map[string]bool:
			return v[string(channel)]
		}
	}
	return defaultEnabled[kind]
}

// Fanout sends notifications to enabled webhook channels, never returning
// an error to the caller — delivery is best-effort (spec §7).
type Fanout struct {
	AgentID          string
	SlackWebhookURL  string
	DiscordWebhookURL string
	Settings         Settings
	HTTP             *http.Client
	// OnError receives delivery failures for logging; may be nil.
	OnError func(channel Channel, err error)
}

// New constructs a Fanout with a 5s-timeout client, matching
// notifications.py's per-request timeout.
func New(agentID, slackWebhookURL, discordWebhookURL string, settings Settings) *Fanout {
	return &Fanout{
		AgentID:           agentID,
		SlackWebhookURL:   slackWebhookURL,
		DiscordWebhookURL: discordWebhookURL,
		Settings:          settings,
		HTTP:              &http.Client{Timeout: 5 * time.Second},
	}
}

func (f *Fanout) onError(channel Channel, err error) {
	if f.OnError != nil {
		f.OnError(channel, err)
	}
}

// Notify fans a message out to every channel enabled for kind. It never
// panics or returns an error; failures are reported via OnError only.
func (f *Fanout) Notify(kind Kind, message string) {
	prefix := fmt.Sprintf("[%s] ", strings.ToUpper(strings.ReplaceAll(string(kind), "_", " ")))
	full := prefix + message

	if f.Settings.enabled(kind, ChannelSlack) {
		if err := f.sendSlack(full); err != nil {
			f.onError(ChannelSlack, err)
		}
	}
	if f.Settings.enabled(kind, ChannelDiscord) {
		if err := f.sendDiscord(full); err != nil {
			f.onError(ChannelDiscord, err)
		}
	}
}

func (f *Fanout) sendSlack(message string) error {
	if f.SlackWebhookURL == "" {
		return nil
	}
	payload := map[string]string{"text": message}
	if f.AgentID != "" {
		payload["username"] = f.AgentID
	}
	return f.post(f.SlackWebhookURL, payload)
}

func (f *Fanout) sendDiscord(message string) error {
	if f.DiscordWebhookURL == "" {
		return nil
	}
	return f.post(f.DiscordWebhookURL, map[string]string{"content": message})
}

func (f *Fanout) post(webhookURL string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
