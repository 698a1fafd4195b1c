package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"tap_notify/internal/config"
	"tap_notify/internal/domain"
)

// mailClient is the subset of *mail.Client used to deliver a message.
// DialWithContext connects and authenticates.
type mailClient interface {
	DialWithContext(ctx context.Context) error
	Send(messages ...*mail.Msg) error
	Close() error
}

// SMTP sends email over an implicit-TLS SMTP connection.
type SMTP struct {
	host     string
	port     int
	from     string
	to       string
	password string
	brand    Brand
	timeout  time.Duration

	newClient func() (mailClient, error)
	logger    *slog.Logger
}

func NewSMTP(cfg config.SMTPConfig, logger *slog.Logger) *SMTP {
	s := &SMTP{
		host:     cfg.Host,
		port:     cfg.Port,
		from:     cfg.From,
		to:       cfg.To,
		password: cfg.Password,
		brand:    Brand{Name: cfg.Brand, URL: cfg.BrandURL},
		timeout:  cfg.Timeout,
		logger:   logger.With("channel", "smtp"),
	}
	s.newClient = s.dial
	return s
}

// dial builds the go-mail client. A zero timeout keeps the client default.
func (s *SMTP) dial() (mailClient, error) {
	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithSSL(),
		mail.WithTLSConfig(&tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.from),
		mail.WithPassword(s.password),
	}
	if s.timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.timeout))
	}

	client, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *SMTP) Name() string {
	return "smtp"
}

// Notify emails the run summary from the configured sender to the configured
// recipient.
func (s *SMTP) Notify(ctx context.Context, run domain.RunSummary) *domain.Receipt {
	return s.Send(ctx, RunMessage(s.brand, s.from, s.to, run))
}

// Send delivers msg as a multipart/alternative email. The connection is closed
// on every path; failures are logged and reported as a nil receipt.
func (s *SMTP) Send(ctx context.Context, msg Message) *domain.Receipt {
	m, messageID, err := s.build(msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "build email", "error", err)
		return nil
	}

	client, err := s.newClient()
	if err != nil {
		s.logger.ErrorContext(ctx, "create smtp client", "error", err)
		return nil
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.logger.WarnContext(ctx, "close smtp connection", "error", err)
		}
	}()

	if err := client.DialWithContext(ctx); err != nil {
		s.logger.ErrorContext(ctx, "smtp login failed",
			"host", s.host,
			"port", s.port,
			"error", err,
		)
		return nil
	}

	if err := client.Send(m); err != nil {
		s.logger.ErrorContext(ctx, "smtp send failed", "error", err)
		return nil
	}

	s.logger.InfoContext(ctx, "email sent",
		"message_id", messageID,
		"to", msg.To,
	)

	return &domain.Receipt{
		Channel:    s.Name(),
		MessageID:  messageID,
		Recipients: []string{msg.To},
		SentAt:     time.Now(),
	}
}

// build assembles the MIME message: plain-text part first, HTML alternative
// second, so clients that render HTML prefer it.
func (s *SMTP) build(msg Message) (*mail.Msg, string, error) {
	if err := msg.validate(); err != nil {
		return nil, "", err
	}

	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, "", fmt.Errorf("set sender: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, "", fmt.Errorf("set recipient: %w", err)
	}
	m.Subject(msg.Subject)

	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), s.host)
	m.SetMessageIDWithValue(messageID)
	m.SetDate()

	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)

	return m, messageID, nil
}
