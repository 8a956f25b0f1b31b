package ticket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/PROJ-1", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "me@example.com", user)
		assert.Equal(t, "tok", pass)
		_ = json.NewEncoder(w).Encode(issueFieldsResponse{
			Key: "PROJ-1",
			Fields: struct {
				Summary     string `json:"summary"`
				Description any    `json:"description"`
				Comment     struct {
					Comments []struct {
						Body any `json:"body"`
					} `json:"comments"`
				} `json:"comment"`
			}{Summary: "Do the thing", Description: "details"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "me@example.com", "tok")
	issue, err := c.Get(context.Background(), "PROJ-1")
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, "PROJ-1", issue.Key)
	assert.Equal(t, "Do the thing", issue.Summary)
}

func TestGetReturnsNilOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "me@example.com", "tok")
	issue, err := c.Get(context.Background(), "PROJ-404")
	require.NoError(t, err)
	assert.Nil(t, issue)
}

func TestTransitionResolvesNameToID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/issue/PROJ-1/transitions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(transitionsResponse{Transitions: []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}{
				{ID: "11", Name: "To Do"},
				{ID: "21", Name: "Code Review"},
			}})
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		transition := body["transition"].(map[string]any)
		assert.Equal(t, "21", transition["id"])
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "me@example.com", "tok")
	err := c.Transition(context.Background(), "PROJ-1", "code review")
	require.NoError(t, err)
}

func TestTransitionErrorsWhenNameNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(transitionsResponse{Transitions: []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}{{ID: "11", Name: "To Do"}}})
	}))
	defer srv.Close()

	c := New(srv.URL, "me@example.com", "tok")
	err := c.Transition(context.Background(), "PROJ-1", "Done")
	assert.Error(t, err)
}

func TestCommentPostsADFBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/PROJ-1/comment", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "me@example.com", "tok")
	err := c.Comment(context.Background(), "PROJ-1", "looks good")
	require.NoError(t, err)
}
