package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/jonasehrlich/ek-scraper/internal/config"
	"github.com/jonasehrlich/ek-scraper/internal/model"
)

// Email sends new-ad summaries over SMTP.
type Email struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
	send   func(m ...*gomail.Message) error
}

// NewEmail builds the email notifier from its configuration.
func NewEmail(cfg *config.EmailConfig, logger *slog.Logger) *Email {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	return &Email{
		cfg:    cfg,
		logger: logger,
		send:   dialer.DialAndSend,
	}
}

// Name implements Notifier.
func (e *Email) Name() string { return "email" }

// Send implements Notifier. One mail per search, listing every new ad.
func (e *Email) Send(ctx context.Context, n Notification) error {
	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.From)
	m.SetHeader("To", e.cfg.To...)
	m.SetHeader("Subject", "[ek-scraper] "+n.Title())
	m.SetBody("text/html", buildHTMLBody(n))

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.send(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	e.logger.Info("email notification sent",
		slog.String("search", n.Search),
		slog.Int("ads", len(n.Ads)))
	return nil
}

func buildHTMLBody(n Notification) string {
	var rows strings.Builder
	for _, ad := range n.Ads {
		rows.WriteString(adRow(ad))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <div style="max-width: 600px; margin: 0 auto; padding: 16px;">
    <h2>%s</h2>
    <table style="width: 100%%; border-collapse: collapse;">%s</table>
    <p style="margin-top: 16px;"><a href="%s">Open the search</a></p>
  </div>
</body>
</html>`, html.EscapeString(n.Title()), rows.String(), html.EscapeString(n.SearchURL))
}

func adRow(ad model.AdRecord) string {
	details := ad.Price
	if ad.Location != "" {
		if details != "" {
			details += " · "
		}
		details += ad.Location
	}
	return fmt.Sprintf(`
      <tr style="border-bottom: 1px solid #e5e7eb;">
        <td style="padding: 8px 0;">
          <a href="%s" style="font-weight: bold;">%s</a><br/>
          <span style="color: #6b7280;">%s</span>
        </td>
      </tr>`,
		html.EscapeString(ad.URL), html.EscapeString(ad.Title), html.EscapeString(details))
}
