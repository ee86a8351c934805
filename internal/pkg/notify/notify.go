// Package notify delivers new-ad notifications through the configured
// push services.
//
// Every service implements Notifier: one notification per search run,
// summarizing the batch of newly discovered ads. Delivery is
// fire-and-forget; a failure of one service never blocks the others and
// never feeds back into pipeline state.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonasehrlich/ek-scraper/internal/model"
)

// Notification is one per-search batch of newly discovered ads.
type Notification struct {
	Search    string
	SearchURL string
	Ads       []model.AdRecord
}

// maxMessageAds caps how many ad lines a message body carries before
// collapsing the rest into a count.
const maxMessageAds = 8

// Title returns the notification title, e.g. `3 new ads for 'Kinderwagen'`.
func (n Notification) Title() string {
	plural := "s"
	if len(n.Ads) == 1 {
		plural = ""
	}
	return fmt.Sprintf("%d new ad%s for '%s'", len(n.Ads), plural, n.Search)
}

// Message returns the body: one line per ad with title and price, capped
// at maxMessageAds lines.
func (n Notification) Message() string {
	var b strings.Builder
	for i, ad := range n.Ads {
		if i == maxMessageAds {
			fmt.Fprintf(&b, "… and %d more", len(n.Ads)-maxMessageAds)
			break
		}
		b.WriteString(ad.Title)
		if ad.Price != "" {
			b.WriteString(" — ")
			b.WriteString(ad.Price)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// Notifier is the delivery capability implemented once per provider.
type Notifier interface {
	// Name identifies the service in logs and error reports.
	Name() string
	// Send delivers one notification. Implementations return an error on
	// any failure to hand the notification to the provider.
	Send(ctx context.Context, n Notification) error
}

// DeliveryError reports that one service failed to accept a notification
// for one search. It is collected, not raised: other services and the
// data store commit are unaffected.
type DeliveryError struct {
	Service string
	Search  string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification via %s for search %q failed: %v", e.Service, e.Search, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
