package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"tap_notify/internal/config"
	"tap_notify/internal/notify/email"
	"tap_notify/internal/notify/slack"
	"tap_notify/internal/publisher"
	"tap_notify/internal/service"
	"tap_notify/internal/storage/postgres"
)

// channels holds the configured notifiers and the optional delivery ledger.
type channels struct {
	notifiers  []service.Notifier
	bestEffort []service.BestEffortNotifier
	deliveries service.DeliveryStore
	txManager  service.TransactionManager

	closers []func() error
	logger  *slog.Logger
}

// openChannels builds every channel enabled in cfg, in the order they are
// notified. Connection failures for the broker or database are returned.
func openChannels(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*channels, error) {
	ch := &channels{logger: logger}

	if cfg.Slack.Enabled() {
		notifier, err := slack.New(cfg.Slack, cfg.TapName, logger)
		if err != nil {
			return nil, err
		}
		ch.notifiers = append(ch.notifiers, notifier)
	}

	if cfg.RabbitMQ.Enabled() {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			ch.Close()
			return nil, err
		}
		ch.closers = append(ch.closers, rabbitMQ.Close)
		ch.notifiers = append(ch.notifiers, rabbitMQ)
	}

	if cfg.SendGrid.Enabled() {
		ch.bestEffort = append(ch.bestEffort, email.NewSendGrid(cfg.SendGrid, brandOf(cfg.SMTP), logger))
	}
	if cfg.SMTP.Enabled() {
		ch.bestEffort = append(ch.bestEffort, email.NewSMTP(cfg.SMTP, logger))
	}

	if cfg.Database.Enabled() {
		db, err := openDatabase(ctx, cfg.Database, logger)
		if err != nil {
			ch.Close()
			return nil, err
		}
		ch.closers = append(ch.closers, db.Close)
		ch.deliveries = postgres.NewDeliveryStore(db)
		ch.txManager = postgres.NewTransactionManager(db)
	}

	logger.Debug("channels configured",
		"notifiers", len(ch.notifiers),
		"best_effort", len(ch.bestEffort),
		"ledger", ch.deliveries != nil,
	)

	return ch, nil
}

func (c *channels) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("failed to close channel", "error", err)
		}
	}
	c.closers = nil
}

func brandOf(cfg config.SMTPConfig) email.Brand {
	return email.Brand{Name: cfg.Brand, URL: cfg.BrandURL}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Host, "dbname", cfg.DBName)
	return db, nil
}
