package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGmailClient(t *testing.T, handler http.Handler) *GmailClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &GmailClient{
		httpClient: server.Client(),
		baseURL:    server.URL,
		token:      "test-token",
		userID:     "me",
	}
}

func TestGmailClientListAndFetch(t *testing.T) {
	rawB64 := base64.URLEncoding.EncodeToString([]byte(multipartEmail))
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "newer_than:1d", r.URL.Query().Get("q"))
		assert.Equal(t, "25", r.URL.Query().Get("maxResults"))
		fmt.Fprint(w, `{"messages": [{"id": "gm-1"}, {"id": "gm-2"}]}`)
	})
	mux.HandleFunc("/users/me/messages/gm-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "raw", r.URL.Query().Get("format"))
		fmt.Fprintf(w, `{"raw": %q}`, rawB64)
	})
	client := newTestGmailClient(t, mux)

	ids, err := client.ListMessageIDs(context.Background(), "newer_than:1d", 25)
	require.NoError(t, err)
	assert.Equal(t, []string{"gm-1", "gm-2"}, ids)

	raw, err := client.GetRawMessage(context.Background(), "gm-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(multipartEmail), raw)
}

func TestGmailClientErrorStatus(t *testing.T) {
	client := newTestGmailClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.ListMessageIDs(context.Background(), "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewGmailClientReadsTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("ya29.secret\n"), 0o600))

	client, err := NewGmailClient(path)
	require.NoError(t, err)
	assert.Equal(t, "ya29.secret", client.token)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

func TestNewGmailClientRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := NewGmailClient(path)
	require.Error(t, err)
}
