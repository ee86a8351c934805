package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jonasehrlich/ek-scraper/internal/config"
)

// Dispatcher fans notifications out to every configured service.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewDispatcher builds a dispatcher over an explicit notifier set.
func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, logger: logger}
}

// FromConfig builds a dispatcher with one notifier per configured
// service. Absent sections stay inactive.
func FromConfig(cfg config.NotificationsConfig, logger *slog.Logger) *Dispatcher {
	var notifiers []Notifier
	if cfg.Pushover != nil {
		notifiers = append(notifiers, NewPushover(cfg.Pushover, logger))
	}
	if cfg.Ntfy != nil {
		notifiers = append(notifiers, NewNtfy(cfg.Ntfy, logger))
	}
	if cfg.Email != nil {
		notifiers = append(notifiers, NewEmail(cfg.Email, logger))
	}
	return NewDispatcher(logger, notifiers...)
}

// Services lists the names of the active services.
func (d *Dispatcher) Services() []string {
	names := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Dispatch attempts delivery of every notification with ads through every
// service, concurrently. Failures are collected as *DeliveryError values
// and returned; they abort nothing else.
func (d *Dispatcher) Dispatch(ctx context.Context, notifications []Notification) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, n := range notifications {
		if len(n.Ads) == 0 {
			continue
		}
		for _, notifier := range d.notifiers {
			wg.Add(1)
			go func(notifier Notifier, n Notification) {
				defer wg.Done()
				if err := notifier.Send(ctx, n); err != nil {
					d.logger.Error("notification delivery failed",
						slog.String("service", notifier.Name()),
						slog.String("search", n.Search),
						slog.String("error", err.Error()))
					mu.Lock()
					errs = append(errs, &DeliveryError{
						Service: notifier.Name(),
						Search:  n.Search,
						Err:     err,
					})
					mu.Unlock()
				}
			}(notifier, n)
		}
	}
	wg.Wait()
	return errs
}
