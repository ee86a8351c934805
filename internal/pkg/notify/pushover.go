package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonasehrlich/ek-scraper/internal/config"
)

const pushoverAPIURL = "https://api.pushover.net"

// Pushover sends notifications through the Pushover message API.
type Pushover struct {
	token   string
	user    string
	devices []string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewPushover builds the Pushover notifier from its configuration.
func NewPushover(cfg *config.PushoverConfig, logger *slog.Logger) *Pushover {
	return &Pushover{
		token:   cfg.Token,
		user:    cfg.User,
		devices: cfg.Device,
		baseURL: pushoverAPIURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Name implements Notifier.
func (p *Pushover) Name() string { return "pushover" }

// Send implements Notifier. An empty device list sends to every device
// registered for the user; a non-empty list restricts delivery.
func (p *Pushover) Send(ctx context.Context, n Notification) error {
	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.user)
	form.Set("title", n.Title())
	form.Set("message", n.Message())
	form.Set("url", n.SearchURL)
	form.Set("url_title", "Open search")
	if len(p.devices) > 0 {
		form.Set("device", strings.Join(p.devices, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/1/messages.json", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pushover api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	p.logger.Info("pushover notification sent",
		slog.String("search", n.Search),
		slog.Int("ads", len(n.Ads)))
	return nil
}
