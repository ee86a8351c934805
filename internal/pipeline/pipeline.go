// Package pipeline coordinates one scrape-diff-notify run across all
// configured searches.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/pkg/notify"
	"github.com/jonasehrlich/ek-scraper/internal/scraper"
	"github.com/jonasehrlich/ek-scraper/internal/store"
)

const defaultMaxConcurrent = 4

// Summary aggregates the outcome of one run.
type Summary struct {
	// Results holds one entry per search that completed, ordered by
	// search name.
	Results []*scraper.Result
	// SearchErrors maps failed search names to their fetch/parse error.
	SearchErrors map[string]error
	// NotifyErrors collects per-(service, search) delivery failures.
	// They do not fail the run.
	NotifyErrors []error
	// Pruned is the number of ids dropped from the store, when pruning
	// was requested.
	Pruned int
}

// Failed reports whether any search failed. Delivery failures alone do
// not count.
func (s *Summary) Failed() bool { return len(s.SearchErrors) > 0 }

// NewAdCount returns the number of new ads across all searches.
func (s *Summary) NewAdCount() int {
	total := 0
	for _, r := range s.Results {
		total += len(r.NewAds)
	}
	return total
}

// Option tweaks pipeline behavior.
type Option func(*Pipeline)

// WithoutNotifications suppresses the dispatcher for this run. The data
// store is still updated, which is how a fresh search is baselined
// without alerting on every historical ad.
func WithoutNotifications() Option {
	return func(p *Pipeline) { p.sendNotifications = false }
}

// WithPrune drops ids that were not observed anymore from each
// successfully scraped search's partition after the run.
func WithPrune() Option {
	return func(p *Pipeline) { p.prune = true }
}

// WithDispatcher replaces the config-derived dispatcher.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(p *Pipeline) { p.dispatcher = d }
}

// WithMaxConcurrent bounds how many searches run at the same time.
func WithMaxConcurrent(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxConcurrent = n
		}
	}
}

// Pipeline owns the data store for the duration of one run and drives the
// per-search runners.
type Pipeline struct {
	cfg               *config.Config
	store             store.Store
	runner            *scraper.Runner
	dispatcher        *notify.Dispatcher
	logger            *slog.Logger
	sendNotifications bool
	prune             bool
	maxConcurrent     int
}

// New wires a pipeline from a validated configuration and an open store.
// The caller keeps ownership of the store and closes it after Run.
func New(cfg *config.Config, st store.Store, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	filter, err := scraper.NewFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}
	fetcher := scraper.NewFetcher(cfg.Scraper, logger)

	p := &Pipeline{
		cfg:               cfg,
		store:             st,
		runner:            scraper.NewRunner(fetcher, filter, cfg.Scraper.MaxPages, logger),
		dispatcher:        notify.FromConfig(cfg.Notifications, logger),
		logger:            logger,
		sendNotifications: true,
		maxConcurrent:     defaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes every configured search concurrently, isolating per-search
// failures, then dispatches notifications for searches with new ads.
// Returned errors are per-search and live in the summary; Run itself only
// fails on a store-level error during pruning.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{SearchErrors: make(map[string]error)}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, p.maxConcurrent)
	)
	for _, search := range p.cfg.Searches {
		wg.Add(1)
		go func(sc config.SearchConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			part := store.NewPartition(p.store, sc.Name)
			res, err := p.runner.Run(ctx, sc, part)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Error("search failed",
					slog.String("search", sc.Name),
					slog.String("error", err.Error()))
				summary.SearchErrors[sc.Name] = err
				return
			}
			summary.Results = append(summary.Results, res)
		}(search)
	}
	wg.Wait()

	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].Search.Name < summary.Results[j].Search.Name
	})

	if p.prune {
		for _, res := range summary.Results {
			dropped, err := p.store.Prune(ctx, res.Search.Name, res.Observed)
			if err != nil {
				return nil, err
			}
			if dropped > 0 {
				p.logger.Info("pruned unavailable ads",
					slog.String("search", res.Search.Name),
					slog.Int("dropped", dropped))
			}
			summary.Pruned += dropped
		}
	}

	if !p.sendNotifications {
		p.logger.Info("notifications suppressed for this run")
		return summary, nil
	}

	var notifications []notify.Notification
	for _, res := range summary.Results {
		if len(res.NewAds) == 0 {
			continue
		}
		notifications = append(notifications, notify.Notification{
			Search:    res.Search.Name,
			SearchURL: res.Search.URL,
			Ads:       res.NewAds,
		})
	}
	if len(notifications) > 0 {
		p.logger.Info("dispatching notifications",
			slog.Int("searches", len(notifications)),
			slog.Any("services", p.dispatcher.Services()))
		summary.NotifyErrors = p.dispatcher.Dispatch(ctx, notifications)
	}
	return summary, nil
}
