package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"tap_notify/internal/audit"
	"tap_notify/internal/domain"
)

// Notifier is a channel whose failures are returned to the caller.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, run domain.RunSummary) error
}

// BestEffortNotifier is a channel whose failures are logged and never surfaced.
// A nil receipt means the notification was not delivered.
type BestEffortNotifier interface {
	Name() string
	Notify(ctx context.Context, run domain.RunSummary) *domain.Receipt
}

type AuditWriter interface {
	Write(ctx context.Context, entry audit.Entry) error
}

type DeliveryStore interface {
	InsertBatch(ctx context.Context, deliveries []domain.Delivery) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
