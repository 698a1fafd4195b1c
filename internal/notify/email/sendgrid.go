package email

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"tap_notify/internal/config"
	"tap_notify/internal/domain"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGrid sends email through the SendGrid v3 mail API.
type SendGrid struct {
	apiKey string
	host   string
	from   string
	to     string
	brand  Brand
	logger *slog.Logger
}

func NewSendGrid(cfg config.SendGridConfig, brand Brand, logger *slog.Logger) *SendGrid {
	return &SendGrid{
		apiKey: cfg.APIKey,
		host:   cfg.Host,
		from:   cfg.From,
		to:     cfg.To,
		brand:  brand,
		logger: logger.With("channel", "sendgrid"),
	}
}

func (s *SendGrid) Name() string {
	return "sendgrid"
}

// Notify emails the run summary to the configured recipient.
func (s *SendGrid) Notify(ctx context.Context, run domain.RunSummary) *domain.Receipt {
	return s.Send(ctx, RunMessage(s.brand, s.from, s.to, run))
}

// Send delivers msg. Any failure is logged as a warning and reported as a nil
// receipt.
func (s *SendGrid) Send(ctx context.Context, msg Message) *domain.Receipt {
	if s.apiKey == "" {
		s.logger.WarnContext(ctx, "sendgrid email not sent", "error", domain.ErrMissingAPIKey)
		return nil
	}
	if err := msg.validate(); err != nil {
		s.logger.WarnContext(ctx, "sendgrid email not sent", "error", err)
		return nil
	}

	m := sgmail.NewSingleEmail(
		sgmail.NewEmail("", msg.From),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		msg.Text,
		msg.HTML,
	)

	request := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.host)
	request.Method = rest.Post
	request.Body = sgmail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		s.logger.WarnContext(ctx, "sendgrid request failed", "error", err)
		return nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		s.logger.WarnContext(ctx, "sendgrid rejected email",
			"status_code", resp.StatusCode,
			"body", resp.Body,
		)
		return nil
	}

	s.logger.InfoContext(ctx, "sendgrid email sent",
		"status_code", resp.StatusCode,
		"body", resp.Body,
		"headers", resp.Headers,
	)

	return &domain.Receipt{
		Channel:    s.Name(),
		MessageID:  firstHeader(resp.Headers, "X-Message-Id"),
		StatusCode: resp.StatusCode,
		Recipients: []string{msg.To},
		SentAt:     time.Now(),
	}
}

func firstHeader(headers map[string][]string, key string) string {
	if values := http.Header(headers).Values(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
