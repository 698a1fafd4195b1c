package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tap_notify/internal/domain"
)

const deliveryColumns = 6

type DeliveryStore struct {
	db *sqlx.DB
}

func NewDeliveryStore(db *sqlx.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

// InsertBatch stores every attempt in a single statement. It runs inside the
// context transaction when there is one.
func (s *DeliveryStore) InsertBatch(ctx context.Context, deliveries []domain.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO notification_deliveries (run_id, channel, delivered, detail, error, attempted_at) VALUES ")
	valueArgs := make([]interface{}, 0, len(deliveries)*deliveryColumns)

	for i, d := range deliveries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for col := 1; col <= deliveryColumns; col++ {
			if col > 1 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*deliveryColumns + col))
		}
		sb.WriteString(")")
		valueArgs = append(valueArgs, d.RunID, d.Channel, d.Delivered, d.Detail, d.Error, d.AttemptedAt)
	}

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), valueArgs...); err != nil {
		return fmt.Errorf("insert deliveries: %w", err)
	}
	return nil
}

// ListByRunID returns the attempts recorded for runID, oldest first. When
// channels is non-empty only those channels are returned.
func (s *DeliveryStore) ListByRunID(ctx context.Context, runID int64, channels ...string) ([]domain.Delivery, error) {
	query := `
		SELECT id, run_id, channel, delivered, detail, error, attempted_at
		FROM notification_deliveries
		WHERE run_id = $1`
	args := []interface{}{runID}

	if len(channels) > 0 {
		query += ` AND channel = ANY($2)`
		args = append(args, pq.Array(channels))
	}
	query += ` ORDER BY attempted_at, id`

	var deliveries []domain.Delivery
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &deliveries, query, args...); err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return deliveries, nil
}
