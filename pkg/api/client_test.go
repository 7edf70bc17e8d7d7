package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabchat/tabchat/pkg/api"
	"github.com/tabchat/tabchat/pkg/chat"
	"github.com/tabchat/tabchat/pkg/fake"
)

func newTestServer(t *testing.T) (*api.Client, *fake.Server) {
	t.Helper()
	srv := fake.New()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)
	return client, srv
}

func TestClient_GetSession(t *testing.T) {
	t.Parallel()

	client, srv := newTestServer(t)
	srv.Seed("s1", "my chat", []chat.Message{
		chat.UserMessage("hello"),
		{Kind: chat.KindAssistant, Content: "hi there"},
	})

	sess, err := client.GetSession(t.Context(), "s1", api.PaginationParams{})
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, "my chat", sess.Title)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "hello", sess.Messages[0].Content)
}

func TestClient_GetSessionNotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t)

	_, err := client.GetSession(t.Context(), "missing", api.PaginationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
	assert.Contains(t, err.Error(), "404")
}

func TestClient_GetSessionPagination(t *testing.T) {
	t.Parallel()

	client, srv := newTestServer(t)
	messages := make([]chat.Message, 10)
	for i := range messages {
		messages[i] = chat.UserMessage(string(rune('a' + i)))
	}
	srv.Seed("s1", "long", messages)

	// Latest window.
	sess, err := client.GetSession(t.Context(), "s1", api.PaginationParams{Limit: 4})
	require.NoError(t, err)
	require.Len(t, sess.Messages, 4)
	assert.Equal(t, "g", sess.Messages[0].Content)
	require.NotNil(t, sess.Pagination)
	assert.Equal(t, 10, sess.Pagination.TotalMessages)
	require.NotEmpty(t, sess.Pagination.PrevCursor)

	// Preceding window via the cursor.
	sess, err = client.GetSession(t.Context(), "s1", api.PaginationParams{Limit: 4, Before: sess.Pagination.PrevCursor})
	require.NoError(t, err)
	require.Len(t, sess.Messages, 4)
	assert.Equal(t, "c", sess.Messages[0].Content)
}

func TestClient_SessionsRoundTrip(t *testing.T) {
	t.Parallel()

	client, srv := newTestServer(t)
	srv.Seed("s1", "one", nil)
	srv.Seed("s2", "two", nil)

	sessions, err := client.GetSessions(t.Context())
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	require.NoError(t, client.UpdateSessionTitle(t.Context(), "s1", "renamed"))
	sess, err := client.GetSession(t.Context(), "s1", api.PaginationParams{})
	require.NoError(t, err)
	assert.Equal(t, "renamed", sess.Title)

	require.NoError(t, client.DeleteSession(t.Context(), "s2"))
	sessions, err = client.GetSessions(t.Context())
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestClient_RewindSession(t *testing.T) {
	t.Parallel()

	client, srv := newTestServer(t)
	srv.Seed("s1", "chat", []chat.Message{
		chat.UserMessage("one"),
		{Kind: chat.KindAssistant, Content: "two"},
		chat.UserMessage("three"),
		{Kind: chat.KindAssistant, Content: "four"},
	})

	require.NoError(t, client.RewindSession(t.Context(), "s1", 2))

	sess, err := client.GetSession(t.Context(), "s1", api.PaginationParams{})
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "two", sess.Messages[1].Content)

	err = client.RewindSession(t.Context(), "missing", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestClient_GetProfilesAndProjects(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t)

	profiles, err := client.GetProfiles(t.Context())
	require.NoError(t, err)
	assert.NotEmpty(t, profiles)

	projects, err := client.GetProjects(t.Context())
	require.NoError(t, err)
	assert.NotEmpty(t, projects)
}

func TestClient_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	_, err := api.NewClient("://bad")
	require.Error(t, err)
}

func TestClient_PlainHTTPError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)

	_, err = client.GetSessions(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
