package pr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemoteHTTPS(t *testing.T) {
	host, owner, repo, ok := ParseRemote("https://github.com/acme/widgets.git")
	require.True(t, ok)
	assert.Equal(t, "github.com", host)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)
}

func TestParseRemoteHTTPSWithToken(t *testing.T) {
	host, owner, repo, ok := ParseRemote("https://x-access-token@custom-domain.net/acme/widgets")
	require.True(t, ok)
	assert.Equal(t, "custom-domain.net", host)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)
}

func TestParseRemoteSSH(t *testing.T) {
	host, owner, repo, ok := ParseRemote("git@github.com:acme/widgets.git")
	require.True(t, ok)
	assert.Equal(t, "github.com", host)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)
}

func TestParseRemoteUnrecognized(t *testing.T) {
	_, _, _, ok := ParseRemote("not a remote url")
	assert.False(t, ok)
}

func TestCreateReturnsEmptyWithoutToken(t *testing.T) {
	c := New("", "")
	url, err := c.Create(context.Background(), "acme", "widgets", "feature", "main", "title", "body")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestCreateHitsAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/pulls", r.URL.Path)
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))
		var req createPRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "feature", req.Head)
		assert.Equal(t, "main", req.Base)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createPRResponse{HTMLURL: "https://github.com/acme/widgets/pull/1"})
	}))
	defer srv.Close()

	c := New("secret", "github.com")
	c.APIBase = srv.URL
	c.HTTP = srv.Client()

	url, err := c.Create(context.Background(), "acme", "widgets", "feature", "main", "title", "body")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/1", url)
}

func TestRepoMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Metadata{DefaultBranch: "main"})
	}))
	defer srv.Close()

	c := New("secret", "github.com")
	c.APIBase = srv.URL
	c.HTTP = srv.Client()

	meta, err := c.RepoMetadata(context.Background(), "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, "main", meta.DefaultBranch)
}
