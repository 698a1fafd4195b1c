package domain

import "time"

// Receipt holds the outcome of a best-effort delivery that succeeded.
// Best-effort senders return a nil *Receipt when delivery failed.
type Receipt struct {
	Channel    string
	MessageID  string
	StatusCode int
	Recipients []string
	SentAt     time.Time
}

// Delivery is one channel attempt for a run, as stored in the delivery ledger.
type Delivery struct {
	ID          int64     `db:"id"`
	RunID       int64     `db:"run_id"`
	Channel     string    `db:"channel"`
	Delivered   bool      `db:"delivered"`
	Detail      string    `db:"detail"`
	Error       string    `db:"error"`
	AttemptedAt time.Time `db:"attempted_at"`
}

// Report summarises a service run across the audit stream and all channels.
type Report struct {
	RunID        int64
	Status       Status
	AuditWritten bool
	Deliveries   []Delivery
	Duration     time.Duration
}

// Failed returns the channels whose delivery did not succeed.
func (r *Report) Failed() []string {
	var failed []string
	for _, d := range r.Deliveries {
		if !d.Delivered {
			failed = append(failed, d.Channel)
		}
	}
	return failed
}
