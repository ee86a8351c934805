package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/pkg/logger"
)

func TestFetcherSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(config.ScraperConfig{}, logger.Discard())
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "ok", string(body))
	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.Contains(t, gotLang, "de-DE")
}

func TestFetcherCustomUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	f := NewFetcher(config.ScraperConfig{UserAgent: "custom/1.0"}, logger.Discard())
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "custom/1.0", gotUA)
}

func TestFetcherNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(config.ScraperConfig{}, logger.Discard())
	_, err := f.Fetch(context.Background(), srv.URL)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestFetcherConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := NewFetcher(config.ScraperConfig{}, logger.Discard())
	_, err := f.Fetch(context.Background(), srv.URL)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Error(t, fetchErr.Unwrap())
}

func TestFetcherCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(config.ScraperConfig{RateLimit: 1, RateBurst: 1}, logger.Discard())
	_, err := f.Fetch(ctx, "http://127.0.0.1:0/")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}
