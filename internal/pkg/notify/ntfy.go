package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonasehrlich/ek-scraper/internal/config"
)

// Ntfy sends notifications to a ntfy.sh topic. Self-hosted servers are
// supported through the server setting.
type Ntfy struct {
	topic    string
	priority int
	server   string
	client   *http.Client
	logger   *slog.Logger
}

// NewNtfy builds the ntfy notifier from its configuration.
func NewNtfy(cfg *config.NtfyConfig, logger *slog.Logger) *Ntfy {
	server := cfg.Server
	if server == "" {
		server = "https://ntfy.sh"
	}
	return &Ntfy{
		topic:    cfg.Topic,
		priority: cfg.Priority,
		server:   strings.TrimRight(server, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// Name implements Notifier.
func (t *Ntfy) Name() string { return "ntfy.sh" }

// ntfyMessage is the publish payload of the ntfy JSON API.
type ntfyMessage struct {
	Topic    string `json:"topic"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority,omitempty"`
	Click    string `json:"click,omitempty"`
}

// Send implements Notifier.
func (t *Ntfy) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(ntfyMessage{
		Topic:    t.topic,
		Title:    n.Title(),
		Message:  n.Message(),
		Priority: t.priority,
		Click:    n.SearchURL,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.server+"/", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	t.logger.Info("ntfy notification sent",
		slog.String("search", n.Search),
		slog.String("topic", t.topic),
		slog.Int("ads", len(n.Ads)))
	return nil
}
