// Package scraper fetches search result pages, extracts ad records and
// runs the pagination loop for a single configured search.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonasehrlich/ek-scraper/internal/config"
)

// Served pages are plain server-rendered HTML, so a browser user agent is
// all that is needed to get the real markup.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"

// FetchError reports that a page could not be retrieved: network failure,
// timeout or a non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves single pages over HTTP. One call, one outbound
// request; retry policy, if any, belongs to the caller.
type Fetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewFetcher builds a fetcher from the scraper configuration. The rate
// limiter is shared across all searches of a run so concurrent runners
// stay polite towards the site.
func NewFetcher(cfg config.ScraperConfig, logger *slog.Logger) *Fetcher {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: ua,
		limiter:   limiter,
		logger:    logger,
	}
}

// Fetch retrieves one page and returns its raw content. Failures are
// reported as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: pageURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}
	f.logger.Debug("page fetched",
		slog.String("url", pageURL),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)))
	return body, nil
}
