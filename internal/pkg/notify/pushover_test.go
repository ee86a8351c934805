package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/model"
	"github.com/jonasehrlich/ek-scraper/internal/pkg/logger"
)

func testNotification() Notification {
	return Notification{
		Search:    "Kinderwagen",
		SearchURL: "https://www.kleinanzeigen.de/s-kinderwagen/k0",
		Ads:       []model.AdRecord{{ID: "1", Title: "Kinderwagen ABC", Price: "120 €"}},
	}
}

func TestPushoverSend(t *testing.T) {
	var gotPath string
	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotForm = r.PostForm
		w.Write([]byte(`{"status":1}`))
	}))
	defer srv.Close()

	p := NewPushover(&config.PushoverConfig{
		Token:  "tok",
		User:   "usr",
		Device: []string{"phone", "tablet"},
	}, logger.Discard())
	p.baseURL = srv.URL

	require.NoError(t, p.Send(context.Background(), testNotification()))

	assert.Equal(t, "/1/messages.json", gotPath)
	assert.Equal(t, []string{"tok"}, gotForm["token"])
	assert.Equal(t, []string{"usr"}, gotForm["user"])
	assert.Equal(t, []string{"phone,tablet"}, gotForm["device"])
	assert.Equal(t, []string{"1 new ad for 'Kinderwagen'"}, gotForm["title"])
	assert.Equal(t, []string{"https://www.kleinanzeigen.de/s-kinderwagen/k0"}, gotForm["url"])
}

func TestPushoverSendWithoutDevices(t *testing.T) {
	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Write([]byte(`{"status":1}`))
	}))
	defer srv.Close()

	p := NewPushover(&config.PushoverConfig{Token: "tok", User: "usr"}, logger.Discard())
	p.baseURL = srv.URL

	require.NoError(t, p.Send(context.Background(), testNotification()))
	assert.NotContains(t, gotForm, "device")
}

func TestPushoverSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":0,"errors":["invalid token"]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewPushover(&config.PushoverConfig{Token: "bad", User: "usr"}, logger.Discard())
	p.baseURL = srv.URL

	err := p.Send(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
