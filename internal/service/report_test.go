package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tap_notify/internal/audit"
	"tap_notify/internal/domain"
	"tap_notify/internal/service/mocks"
)

type ReportServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	audit      *mocks.MockAuditWriter
	slack      *mocks.MockNotifier
	rabbitmq   *mocks.MockNotifier
	sendgrid   *mocks.MockBestEffortNotifier
	smtp       *mocks.MockBestEffortNotifier
	deliveries *mocks.MockDeliveryStore
	txManager  *mocks.MockTransactionManager

	registry *prometheus.Registry
	metrics  *Metrics
	service  *ReportService
	logger   *slog.Logger
	run      domain.RunSummary
}

func (s *ReportServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.audit = mocks.NewMockAuditWriter(s.ctrl)
	s.slack = mocks.NewMockNotifier(s.ctrl)
	s.rabbitmq = mocks.NewMockNotifier(s.ctrl)
	s.sendgrid = mocks.NewMockBestEffortNotifier(s.ctrl)
	s.smtp = mocks.NewMockBestEffortNotifier(s.ctrl)
	s.deliveries = mocks.NewMockDeliveryStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)

	s.slack.EXPECT().Name().Return("slack").AnyTimes()
	s.rabbitmq.EXPECT().Name().Return("rabbitmq").AnyTimes()
	s.sendgrid.EXPECT().Name().Return("sendgrid").AnyTimes()
	s.smtp.EXPECT().Name().Return("smtp").AnyTimes()

	s.registry = prometheus.NewRegistry()
	s.metrics = NewMetrics(s.registry)
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewReportService(
		s.audit,
		[]Notifier{s.slack, s.rabbitmq},
		[]BestEffortNotifier{s.sendgrid, s.smtp},
		s.deliveries,
		s.txManager,
		s.metrics,
		s.logger,
	)

	s.run = domain.RunSummary{
		RunID:       42,
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RunTime:     12500 * time.Millisecond,
		RecordCount: 150,
	}
}

func (s *ReportServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestReportServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ReportServiceTestSuite))
}

func (s *ReportServiceTestSuite) expectTransaction() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func (s *ReportServiceTestSuite) TestReport_AllChannelsDelivered() {
	ctx := context.Background()

	var written audit.Entry
	var stored []domain.Delivery

	gomock.InOrder(
		s.audit.EXPECT().Write(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Entry) error {
				written = e
				return nil
			}),
		s.slack.EXPECT().Notify(gomock.Any(), s.run).Return(nil),
		s.rabbitmq.EXPECT().Notify(gomock.Any(), s.run).Return(nil),
		s.sendgrid.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{Channel: "sendgrid", StatusCode: 202}),
		s.smtp.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{Channel: "smtp", MessageID: "abc@smtp.gmail.com"}),
	)
	s.expectTransaction()
	s.deliveries.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d []domain.Delivery) error {
			stored = d
			return nil
		})

	report, err := s.service.Report(ctx, s.run, "reviews", time.Time{})

	s.Require().NoError(err)
	s.Equal(int64(42), report.RunID)
	s.Equal(domain.StatusSuccess, report.Status)
	s.True(report.AuditWritten)
	s.Empty(report.Failed())
	s.Len(report.Deliveries, 4)
	s.Equal(report.Deliveries, stored)

	s.Equal("reviews", written.StreamName)
	s.Equal(s.run.StartTime, written.BatchStart)
	s.Equal(s.run.EndTime(), written.BatchEnd)

	s.Equal("202", report.Deliveries[2].Detail)
	s.Equal("abc@smtp.gmail.com", report.Deliveries[3].Detail)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.deliveries.WithLabelValues("slack", OutcomeDelivered)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.deliveries.WithLabelValues("smtp", OutcomeDelivered)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.auditRecords.WithLabelValues("reviews")))
}

func (s *ReportServiceTestSuite) TestReport_FailingChannelDoesNotStopOthers() {
	ctx := context.Background()
	slackErr := errors.New("webhook returned 500")

	s.audit.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil)
	s.slack.EXPECT().Notify(gomock.Any(), s.run).Return(slackErr)
	s.rabbitmq.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.sendgrid.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.smtp.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{Channel: "smtp"})
	s.expectTransaction()
	s.deliveries.EXPECT().InsertBatch(gomock.Any(), gomock.Len(4)).Return(nil)

	report, err := s.service.Report(ctx, s.run, "reviews", time.Time{})

	s.Require().Error(err)
	s.ErrorIs(err, slackErr)
	s.Contains(err.Error(), "notify slack")
	s.Require().NotNil(report)
	s.ElementsMatch([]string{"slack", "sendgrid"}, report.Failed())
	s.Equal(slackErr.Error(), report.Deliveries[0].Error)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.deliveries.WithLabelValues("slack", OutcomeFailed)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.deliveries.WithLabelValues("sendgrid", OutcomeFailed)))
}

func (s *ReportServiceTestSuite) TestReport_BestEffortFailuresDoNotError() {
	ctx := context.Background()

	s.audit.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil)
	s.slack.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.rabbitmq.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.sendgrid.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.smtp.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.expectTransaction()
	s.deliveries.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(nil)

	report, err := s.service.Report(ctx, s.run, "reviews", time.Time{})

	s.NoError(err)
	s.ElementsMatch([]string{"sendgrid", "smtp"}, report.Failed())
}

func (s *ReportServiceTestSuite) TestReport_AuditFailureStillNotifies() {
	ctx := context.Background()

	s.audit.EXPECT().Write(gomock.Any(), gomock.Any()).Return(domain.ErrMissingStream)
	s.slack.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.rabbitmq.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.sendgrid.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{})
	s.smtp.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{})
	s.expectTransaction()
	s.deliveries.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(nil)

	report, err := s.service.Report(ctx, s.run, "", time.Time{})

	s.ErrorIs(err, domain.ErrMissingStream)
	s.False(report.AuditWritten)
	s.Empty(report.Failed())
}

func (s *ReportServiceTestSuite) TestReport_LedgerFailurePropagates() {
	ctx := context.Background()
	dbErr := errors.New("connection refused")

	s.audit.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil)
	s.slack.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.rabbitmq.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.sendgrid.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{})
	s.smtp.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{})
	s.expectTransaction()
	s.deliveries.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(dbErr)

	_, err := s.service.Report(ctx, s.run, "reviews", time.Time{})

	s.ErrorIs(err, dbErr)
	s.Contains(err.Error(), "store deliveries")
}

func (s *ReportServiceTestSuite) TestReport_FailedRunStatus() {
	ctx := context.Background()
	s.run.Comments = "timeout error"

	s.audit.EXPECT().Write(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Entry) error {
			s.Equal("timeout error", e.Comments)
			return nil
		})
	s.slack.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.rabbitmq.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.sendgrid.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{})
	s.smtp.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{})
	s.expectTransaction()
	s.deliveries.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(nil)

	report, err := s.service.Report(ctx, s.run, "reviews", time.Time{})

	s.NoError(err)
	s.Equal(domain.StatusFailure, report.Status)
}

func (s *ReportServiceTestSuite) TestReport_ExplicitBatchEndWins() {
	ctx := context.Background()
	batchEnd := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	s.audit.EXPECT().Write(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Entry) error {
			s.Equal(batchEnd, e.BatchEnd)
			s.NotEqual(s.run.EndTime(), e.BatchEnd)
			return nil
		})
	s.slack.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.rabbitmq.EXPECT().Notify(gomock.Any(), s.run).Return(nil)
	s.sendgrid.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{})
	s.smtp.EXPECT().Notify(gomock.Any(), s.run).Return(&domain.Receipt{})
	s.expectTransaction()
	s.deliveries.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.Report(ctx, s.run, "reviews", batchEnd)

	s.NoError(err)
}

func (s *ReportServiceTestSuite) TestReport_InvalidRun() {
	s.run.RecordCount = -1

	report, err := s.service.Report(context.Background(), s.run, "reviews", time.Time{})

	s.Nil(report)
	s.ErrorIs(err, domain.ErrNegativeRecordCount)
}

func (s *ReportServiceTestSuite) TestReport_WithoutLedger() {
	svc := NewReportService(
		s.audit,
		[]Notifier{s.slack},
		nil,
		nil,
		nil,
		nil,
		s.logger,
	)

	s.audit.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil)
	s.slack.EXPECT().Notify(gomock.Any(), s.run).Return(nil)

	report, err := svc.Report(context.Background(), s.run, "reviews", time.Time{})

	s.NoError(err)
	s.Len(report.Deliveries, 1)
	s.True(report.Deliveries[0].Delivered)
}
