package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"tap_notify/internal/audit"
	"tap_notify/internal/notify/email"
	"tap_notify/internal/notify/slack"
	"tap_notify/internal/service"
	"tap_notify/internal/storage/postgres"
	"tap_notify/migrations"
)

const (
	providerSMTP     = "smtp"
	providerSendGrid = "sendgrid"
)

var errDatabaseNotConfigured = errors.New("database is not configured")

type loader func() (*env, error)

func newReportCmd(flags *runFlags, load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Write the audit record and notify every configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, batchEnd, err := flags.runSummary()
			if err != nil {
				return err
			}
			e, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			writer, err := audit.NewWriter(e.stdout, e.logger)
			if err != nil {
				return err
			}

			ch, err := openChannels(ctx, e.cfg, e.logger)
			if err != nil {
				e.logger.Error("failed to open channels", "error", err)
				return err
			}
			defer ch.Close()

			registry := prometheus.NewRegistry()
			svc := service.NewReportService(
				writer,
				ch.notifiers,
				ch.bestEffort,
				ch.deliveries,
				ch.txManager,
				service.NewMetrics(registry),
				e.logger,
			)

			_, reportErr := svc.Report(ctx, run, flags.stream, batchEnd)
			if reportErr != nil {
				e.logger.Error("report failed", "error", reportErr)
			}

			if flags.metricsOut != "" {
				if err := prometheus.WriteToTextfile(flags.metricsOut, registry); err != nil {
					e.logger.Warn("failed to write metrics", "path", flags.metricsOut, "error", err)
				}
			}

			return reportErr
		},
	}
}

func newAuditCmd(flags *runFlags, load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Write the audit_log SCHEMA and RECORD messages to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, batchEnd, err := flags.runSummary()
			if err != nil {
				return err
			}
			e, err := load()
			if err != nil {
				return err
			}

			writer, err := audit.NewWriter(e.stdout, e.logger)
			if err != nil {
				return err
			}

			entry := audit.EntryFromRun(run, flags.stream)
			if !batchEnd.IsZero() {
				entry.BatchEnd = batchEnd
			}

			if err := writer.Write(cmd.Context(), entry); err != nil {
				e.logger.Error("failed to write audit record", "error", err)
				return err
			}
			return nil
		},
	}
}

func newSlackCmd(flags *runFlags, load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "slack",
		Short: "Post the run summary to the Slack webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, _, err := flags.runSummary()
			if err != nil {
				return err
			}
			e, err := load()
			if err != nil {
				return err
			}

			notifier, err := slack.New(e.cfg.Slack, e.cfg.TapName, e.logger)
			if err != nil {
				e.logger.Error("failed to create slack notifier", "error", err)
				return err
			}

			if err := notifier.Notify(cmd.Context(), run); err != nil {
				e.logger.Error("slack notification failed", "error", err)
				return err
			}
			return nil
		},
	}
}

func newEmailCmd(flags *runFlags, load loader) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "email",
		Short: "Email the run summary; delivery failures are logged, never fatal",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, _, err := flags.runSummary()
			if err != nil {
				return err
			}
			e, err := load()
			if err != nil {
				return err
			}

			var sender service.BestEffortNotifier
			switch provider {
			case providerSMTP:
				sender = email.NewSMTP(e.cfg.SMTP, e.logger)
			case providerSendGrid:
				sender = email.NewSendGrid(e.cfg.SendGrid, brandOf(e.cfg.SMTP), e.logger)
			default:
				return fmt.Errorf("%w: unknown email provider %q", errInvalidFlag, provider)
			}

			if receipt := sender.Notify(cmd.Context(), run); receipt == nil {
				e.logger.Warn("email not delivered", "provider", provider)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", providerSMTP, "email provider: smtp or sendgrid")

	return cmd
}

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the delivery ledger migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			if !e.cfg.Database.Enabled() {
				return errDatabaseNotConfigured
			}

			db, err := openDatabase(cmd.Context(), e.cfg.Database, e.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return postgres.Migrate(cmd.Context(), db, migrations.FS, e.logger)
		},
	}
}
