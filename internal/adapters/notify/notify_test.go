package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifySendsToEnabledChannelsByDefault(t *testing.T) {
	var slackBody map[string]string
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&slackBody))
	}))
	defer slack.Close()

	discordCalled := false
	discord := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		discordCalled = true
	}))
	defer discord.Close()

	f := New("agent-1", slack.URL, discord.URL, nil)
	// "iteration" is disabled by default on every channel.
	f.Notify(KindIteration, "tick")
	assert.Empty(t, slackBody)
	assert.False(t, discordCalled)

	f.Notify(KindManager, "running manager")
	assert.Equal(t, "[MANAGER] running manager", slackBody["text"])
	assert.Equal(t, "agent-1", slackBody["username"])
}

func TestNotifyOverrideEnablesDisabledKind(t *testing.T) {
	called := false
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer slack.Close()

	f := New("agent-1", slack.URL, "", Settings{KindIteration: true})
	f.Notify(KindIteration, "tick")
	assert.True(t, called)
}

func TestNotifyPerChannelOverride(t *testing.T) {
	slackCalled, discordCalled := false, false
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { slackCalled = true }))
	defer slack.Close()
	discord := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { discordCalled = true }))
	defer discord.Close()

	f := New("agent-1", slack.URL, discord.URL, Settings{
		KindError: map[Channel]bool{ChannelSlack: true, ChannelDiscord: false},
	})
	f.Notify(KindError, "boom")
	assert.True(t, slackCalled)
	assert.False(t, discordCalled)
}

func TestNotifyNeverPanicsWithoutWebhooks(t *testing.T) {
	f := New("agent-1", "", "", nil)
	assert.NotPanics(t, func() { f.Notify(KindAgentStart, "hello") })
}

func TestNotifyReportsErrorsViaCallback(t *testing.T) {
	var gotChannel Channel
	var gotErr error
	f := New("agent-1", "http://127.0.0.1:1", "", Settings{KindManager: true})
	f.OnError = func(channel Channel, err error) {
		gotChannel = channel
		gotErr = err
	}
	f.Notify(KindManager, "msg")
	assert.Equal(t, ChannelSlack, gotChannel)
	assert.Error(t, gotErr)
}
