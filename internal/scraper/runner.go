package scraper

import (
	"context"
	"log/slog"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/model"
	"github.com/jonasehrlich/ek-scraper/internal/store"
)

// Result is the outcome of one search's run.
type Result struct {
	Search config.SearchConfig
	// NewAds are the filtered ads whose id was not in the store before
	// this run, in page order.
	NewAds []model.AdRecord
	// Observed are the ids of all filtered ads of this run, including
	// already-seen ones. Prune uses it as the keep set.
	Observed    []string
	AlreadySeen int
	Excluded    int
	Pages       int
}

// Runner executes the scrape for one search: paginate, extract, filter,
// diff against the store partition, record.
//
// The store partition is only written after the whole page chain
// succeeded. A failure on any page leaves the partition untouched, so an
// ad is never marked seen without having been evaluated for notification.
type Runner struct {
	fetcher  *Fetcher
	filter   *Filter
	maxPages int
	logger   *slog.Logger
}

// NewRunner builds a runner. maxPages bounds pagination per search.
func NewRunner(fetcher *Fetcher, filter *Filter, maxPages int, logger *slog.Logger) *Runner {
	if maxPages < 1 {
		maxPages = 50
	}
	return &Runner{
		fetcher:  fetcher,
		filter:   filter,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Run fetches every page of the search, in discovery order, and diffs the
// filtered ads against part. Fetch and parse failures abort this search
// only; the returned error wraps *FetchError or *ParseError.
func (r *Runner) Run(ctx context.Context, search config.SearchConfig, part *store.Partition) (*Result, error) {
	log := r.logger.With(slog.String("search", search.Name))

	var ads []model.AdRecord
	visited := make(map[string]struct{})
	pages := 0

	pageURL := search.URL
	for pageURL != "" {
		// The next-page chain comes from remote markup; a cycle or an
		// endless chain must terminate here, not hang the run.
		if _, ok := visited[pageURL]; ok {
			log.Warn("pagination cycle detected, stopping", slog.String("url", pageURL))
			break
		}
		if pages >= r.maxPages {
			log.Warn("pagination bound reached, stopping",
				slog.Int("max_pages", r.maxPages))
			break
		}
		visited[pageURL] = struct{}{}

		body, err := r.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		page, err := ExtractPage(pageURL, body)
		if err != nil {
			return nil, err
		}
		pages++
		ads = append(ads, page.Ads...)
		log.Debug("page extracted",
			slog.String("url", pageURL),
			slog.Int("ads", len(page.Ads)),
			slog.Bool("has_next", page.NextURL != ""))

		if !search.Recursive {
			break
		}
		pageURL = page.NextURL
	}

	ads = dedupeByID(ads)
	kept, excluded := r.filter.Apply(ads)

	ids := make([]string, len(kept))
	for i, ad := range kept {
		ids[i] = ad.ID
	}
	seen, err := part.Seen(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Search:   search,
		Observed: ids,
		Excluded: excluded,
		Pages:    pages,
	}
	for _, ad := range kept {
		if seen[ad.ID] {
			result.AlreadySeen++
			continue
		}
		result.NewAds = append(result.NewAds, ad)
	}

	if err := part.Record(ctx, kept); err != nil {
		return nil, err
	}

	log.Info("search finished",
		slog.Int("pages", pages),
		slog.Int("new", len(result.NewAds)),
		slog.Int("already_seen", result.AlreadySeen),
		slog.Int("excluded", excluded))
	return result, nil
}

// dedupeByID drops repeated ids while preserving first-occurrence order.
// Top ads tend to repeat on every page of a paginated result.
func dedupeByID(ads []model.AdRecord) []model.AdRecord {
	if len(ads) < 2 {
		return ads
	}
	seen := make(map[string]struct{}, len(ads))
	out := ads[:0]
	for _, ad := range ads {
		if _, ok := seen[ad.ID]; ok {
			continue
		}
		seen[ad.ID] = struct{}{}
		out = append(out, ad)
	}
	return out
}
