package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"tap_notify/internal/audit"
	"tap_notify/internal/domain"
)

type ReportService struct {
	audit      AuditWriter
	notifiers  []Notifier
	bestEffort []BestEffortNotifier
	deliveries DeliveryStore
	txManager  TransactionManager
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewReportService wires the audit writer and channels. deliveries, txManager
// and metrics may be nil.
func NewReportService(
	auditWriter AuditWriter,
	notifiers []Notifier,
	bestEffort []BestEffortNotifier,
	deliveries DeliveryStore,
	txManager TransactionManager,
	metrics *Metrics,
	logger *slog.Logger,
) *ReportService {
	return &ReportService{
		audit:      auditWriter,
		notifiers:  notifiers,
		bestEffort: bestEffort,
		deliveries: deliveries,
		txManager:  txManager,
		metrics:    metrics,
		logger:     logger.With("component", "report"),
		now:        time.Now,
	}
}

// Report writes the audit record for run and notifies every channel once.
// A non-zero batchEnd is recorded as given; otherwise it is derived from the
// run. Each channel runs regardless of earlier failures; audit, propagating
// channel and ledger errors are joined into the returned error.
func (s *ReportService) Report(ctx context.Context, run domain.RunSummary, stream string, batchEnd time.Time) (*domain.Report, error) {
	startTime := time.Now()
	if err := run.Validate(); err != nil {
		return nil, fmt.Errorf("validate run: %w", err)
	}

	logger := s.logger.With("run_id", run.RunID)
	logger.Info("reporting run",
		"status", run.Status(),
		"records_synced", run.RecordCount,
		"channels", len(s.notifiers)+len(s.bestEffort),
	)

	report := &domain.Report{
		RunID:  run.RunID,
		Status: run.Status(),
	}

	var errs []error

	if s.audit != nil {
		entry := audit.EntryFromRun(run, stream)
		if !batchEnd.IsZero() {
			entry.BatchEnd = batchEnd
		}
		if err := s.audit.Write(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("write audit record: %w", err))
		} else {
			report.AuditWritten = true
			s.metrics.auditRecord(stream)
		}
	}

	for _, n := range s.notifiers {
		delivery := domain.Delivery{
			RunID:       run.RunID,
			Channel:     n.Name(),
			AttemptedAt: s.now(),
		}
		if err := n.Notify(ctx, run); err != nil {
			delivery.Error = err.Error()
			errs = append(errs, fmt.Errorf("notify %s: %w", n.Name(), err))
			logger.Error("notification failed", "channel", n.Name(), "error", err)
		} else {
			delivery.Delivered = true
		}
		s.record(report, delivery)
	}

	for _, n := range s.bestEffort {
		delivery := domain.Delivery{
			RunID:       run.RunID,
			Channel:     n.Name(),
			AttemptedAt: s.now(),
		}
		if receipt := n.Notify(ctx, run); receipt != nil {
			delivery.Delivered = true
			delivery.Detail = receiptDetail(receipt)
		} else {
			delivery.Error = "not delivered"
		}
		s.record(report, delivery)
	}

	if err := s.storeDeliveries(ctx, report.Deliveries); err != nil {
		errs = append(errs, fmt.Errorf("store deliveries: %w", err))
	}

	report.Duration = time.Since(startTime)

	logger.Info("run reported",
		"audit_written", report.AuditWritten,
		"delivered", len(report.Deliveries)-len(report.Failed()),
		"failed", report.Failed(),
		"duration", report.Duration,
	)

	return report, errors.Join(errs...)
}

func (s *ReportService) record(report *domain.Report, delivery domain.Delivery) {
	report.Deliveries = append(report.Deliveries, delivery)
	s.metrics.delivery(delivery.Channel, delivery.Delivered)
}

func (s *ReportService) storeDeliveries(ctx context.Context, deliveries []domain.Delivery) error {
	if s.deliveries == nil || len(deliveries) == 0 {
		return nil
	}
	if s.txManager == nil {
		return s.deliveries.InsertBatch(ctx, deliveries)
	}
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.deliveries.InsertBatch(txCtx, deliveries)
	})
}

func receiptDetail(r *domain.Receipt) string {
	if r.MessageID != "" {
		return r.MessageID
	}
	if r.StatusCode != 0 {
		return strconv.Itoa(r.StatusCode)
	}
	return ""
}
