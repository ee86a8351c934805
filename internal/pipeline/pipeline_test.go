package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/model"
	"github.com/jonasehrlich/ek-scraper/internal/pkg/logger"
	"github.com/jonasehrlich/ek-scraper/internal/pkg/notify"
	"github.com/jonasehrlich/ek-scraper/internal/scraper"
	"github.com/jonasehrlich/ek-scraper/internal/store"
)

type recordingNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []notify.Notification
}

func (r *recordingNotifier) Name() string { return "recorder" }

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("provider down")
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) notifications() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

func adPage(ids ...string) string {
	page := `<html><body><ul id="srchrslt-adtable">`
	for _, id := range ids {
		page += fmt.Sprintf(
			`<article class="aditem" data-adid=%q data-href="/a/%s"><div class="text-module-begin"><a href="/a/%s">Anzeige %s</a></div></article>`,
			id, id, id, id)
	}
	return page + `</ul></body></html>`
}

func testConfig(searches ...config.SearchConfig) *config.Config {
	return &config.Config{
		Filter:   config.FilterConfig{ExcludeTopAds: true},
		Searches: searches,
		Scraper:  config.ScraperConfig{MaxPages: 5},
	}
}

func TestRunIsolatesSearchFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, adPage("1", "2"))
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(
		config.SearchConfig{Name: "good", URL: srv.URL + "/good", Recursive: true},
		config.SearchConfig{Name: "bad", URL: srv.URL + "/bad", Recursive: true},
	)
	st := store.OpenEphemeral(logger.Discard())
	rec := &recordingNotifier{}

	p, err := New(cfg, st, logger.Discard(),
		WithDispatcher(notify.NewDispatcher(logger.Discard(), rec)))
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Failed())
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "good", summary.Results[0].Search.Name)

	var fetchErr *scraper.FetchError
	require.ErrorAs(t, summary.SearchErrors["bad"], &fetchErr)

	// The healthy search still got stored and notified.
	assert.Equal(t, 2, st.Len("good"))
	assert.Zero(t, st.Len("bad"))
	sent := rec.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "good", sent[0].Search)
	assert.Len(t, sent[0].Ads, 2)
}

func TestRunWithoutNotificationsStillRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, adPage("1"))
	}))
	defer srv.Close()

	cfg := testConfig(config.SearchConfig{Name: "s", URL: srv.URL, Recursive: true})
	st := store.OpenEphemeral(logger.Discard())
	rec := &recordingNotifier{}

	p, err := New(cfg, st, logger.Discard(),
		WithoutNotifications(),
		WithDispatcher(notify.NewDispatcher(logger.Discard(), rec)))
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Failed())
	assert.Equal(t, 1, summary.NewAdCount())
	assert.Equal(t, 1, st.Len("s"), "baselining must record without notifying")
	assert.Empty(t, rec.notifications())
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, adPage("1", "2"))
	}))
	defer srv.Close()

	cfg := testConfig(config.SearchConfig{Name: "s", URL: srv.URL, Recursive: true})
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	runOnce := func() *Summary {
		st, err := store.Open(path, logger.Discard())
		require.NoError(t, err)
		defer func() { require.NoError(t, st.Close(ctx)) }()

		p, err := New(cfg, st, logger.Discard(),
			WithDispatcher(notify.NewDispatcher(logger.Discard())))
		require.NoError(t, err)
		summary, err := p.Run(ctx)
		require.NoError(t, err)
		return summary
	}

	first := runOnce()
	assert.Equal(t, 2, first.NewAdCount())

	second := runOnce()
	assert.Zero(t, second.NewAdCount(), "an unchanged result page must not produce new ads again")
}

func TestRunDeliveryFailureDoesNotFailRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, adPage("1"))
	}))
	defer srv.Close()

	cfg := testConfig(config.SearchConfig{Name: "s", URL: srv.URL, Recursive: true})
	st := store.OpenEphemeral(logger.Discard())
	rec := &recordingNotifier{fail: true}

	p, err := New(cfg, st, logger.Discard(),
		WithDispatcher(notify.NewDispatcher(logger.Discard(), rec)))
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Failed(), "delivery failures must not fail the run")
	require.Len(t, summary.NotifyErrors, 1)
	var derr *notify.DeliveryError
	require.ErrorAs(t, summary.NotifyErrors[0], &derr)

	assert.Equal(t, 1, st.Len("s"), "the store commit must not depend on delivery")
}

func TestRunPrune(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, adPage("2"))
	}))
	defer srv.Close()

	cfg := testConfig(config.SearchConfig{Name: "s", URL: srv.URL, Recursive: true})
	st := store.OpenEphemeral(logger.Discard())
	// Seed state from an earlier run where ad 1 was still listed.
	require.NoError(t, st.Record(ctx, "s", []model.AdRecord{{ID: "1", Title: "weg"}}))

	p, err := New(cfg, st, logger.Discard(),
		WithoutNotifications(), WithPrune())
	require.NoError(t, err)

	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.False(t, summary.Failed())
	assert.Equal(t, 1, summary.Pruned)
	seen, err := st.Seen(ctx, "s", []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": false, "2": true}, seen)
}

func TestRunInvalidFilterPattern(t *testing.T) {
	cfg := testConfig(config.SearchConfig{Name: "s", URL: "https://example.com", Recursive: true})
	cfg.Filter.ExcludePatterns = []string{"[unclosed"}

	_, err := New(cfg, store.OpenEphemeral(logger.Discard()), logger.Discard())
	assert.Error(t, err)
}
