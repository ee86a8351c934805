package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/pkg/logger"
)

func TestNtfySend(t *testing.T) {
	var got ntfyMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	n := NewNtfy(&config.NtfyConfig{Topic: "my-topic", Priority: 4, Server: srv.URL}, logger.Discard())
	require.NoError(t, n.Send(context.Background(), testNotification()))

	assert.Equal(t, "my-topic", got.Topic)
	assert.Equal(t, 4, got.Priority)
	assert.Equal(t, "1 new ad for 'Kinderwagen'", got.Title)
	assert.Contains(t, got.Message, "Kinderwagen ABC")
	assert.Equal(t, "https://www.kleinanzeigen.de/s-kinderwagen/k0", got.Click)
}

func TestNtfySendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewNtfy(&config.NtfyConfig{Topic: "t", Server: srv.URL}, logger.Discard())
	err := n.Send(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNtfyDefaultServer(t *testing.T) {
	n := NewNtfy(&config.NtfyConfig{Topic: "t"}, logger.Discard())
	assert.Equal(t, "https://ntfy.sh", n.server)
}
