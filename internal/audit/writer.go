package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tap_notify/internal/domain"
)

// Entry describes one sync batch.
type Entry struct {
	RunID         int64
	StreamName    string
	BatchStart    time.Time
	// BatchEnd is the time the batch finished. When zero, the writer's clock
	// is used at the moment Write runs.
	BatchEnd      time.Time
	RecordsSynced int64
	RunTime       time.Duration
	Comments      string
}

// EntryFromRun builds the audit entry for a run summary. The batch end is
// derived from the run's start and duration, and left zero when unknown.
func EntryFromRun(run domain.RunSummary, stream string) Entry {
	return Entry{
		RunID:         run.RunID,
		StreamName:    stream,
		BatchStart:    run.StartTime,
		BatchEnd:      run.EndTime(),
		RecordsSynced: run.RecordCount,
		RunTime:       run.RunTime,
		Comments:      run.Comments,
	}
}

// BuildRecord assembles the untransformed record for e. now supplies batch_end
// when e.BatchEnd is zero.
func BuildRecord(e Entry, now func() time.Time) Record {
	batchEnd := e.BatchEnd
	if batchEnd.IsZero() {
		batchEnd = now()
	}

	var batchStart any
	if !e.BatchStart.IsZero() {
		batchStart = e.BatchStart
	}

	return Record{
		FieldRunID:         e.RunID,
		FieldStreamName:    e.StreamName,
		FieldBatchStart:    batchStart,
		FieldBatchEnd:      batchEnd,
		FieldRecordsSynced: e.RecordsSynced,
		FieldRunTime:       e.RunTime.Seconds(),
		FieldComments:      e.Comments,
	}
}

// SchemaMessage is the Singer SCHEMA message for the audit stream.
type SchemaMessage struct {
	Type          string          `json:"type"`
	Stream        string          `json:"stream"`
	Schema        Schema          `json:"schema"`
	KeyProperties []string        `json:"key_properties"`
	Metadata      []MetadataEntry `json:"metadata,omitempty"`
}

// RecordMessage is the Singer RECORD message for one audit record.
type RecordMessage struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
	Record Record `json:"record"`
}

// Writer writes audit records to a Singer message stream.
type Writer struct {
	enc       *json.Encoder
	schema    Schema
	metadata  []MetadataEntry
	validator *jsonschema.Schema
	clock     func() time.Time
	logger    *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock sets the clock used for a missing batch end.
func WithClock(clock func() time.Time) Option {
	return func(w *Writer) { w.clock = clock }
}

// WithMetadata replaces the catalog metadata applied to each record.
func WithMetadata(md []MetadataEntry) Option {
	return func(w *Writer) { w.metadata = md }
}

func NewWriter(out io.Writer, logger *slog.Logger, opts ...Option) (*Writer, error) {
	w := &Writer{
		enc:      json.NewEncoder(out),
		schema:   AuditSchema(),
		metadata: AuditMetadata(),
		clock:    time.Now,
		logger:   logger.With("stream", StreamName),
	}
	for _, opt := range opts {
		opt(w)
	}

	validator, err := compileSchema(w.schema)
	if err != nil {
		return nil, err
	}
	w.validator = validator

	return w, nil
}

func (w *Writer) Schema() Schema {
	return w.schema
}

func (w *Writer) Metadata() []MetadataEntry {
	return w.metadata
}

// Write emits the schema message followed by the transformed, validated record.
func (w *Writer) Write(ctx context.Context, e Entry) error {
	if e.StreamName == "" {
		return domain.ErrMissingStream
	}
	if e.BatchEnd.IsZero() {
		w.logger.DebugContext(ctx, "batch end not supplied, using current time",
			"run_id", e.RunID,
		)
	}

	rec, err := w.prepare(BuildRecord(e, w.clock))
	if err != nil {
		return err
	}

	if err := w.enc.Encode(SchemaMessage{
		Type:          "SCHEMA",
		Stream:        StreamName,
		Schema:        w.schema,
		KeyProperties: []string{},
		Metadata:      w.metadata,
	}); err != nil {
		return fmt.Errorf("write schema message: %w", err)
	}

	if err := w.enc.Encode(RecordMessage{
		Type:   "RECORD",
		Stream: StreamName,
		Record: rec,
	}); err != nil {
		return fmt.Errorf("write record message: %w", err)
	}

	w.logger.InfoContext(ctx, "audit record written",
		"run_id", e.RunID,
		"stream_name", e.StreamName,
		"records_synced", e.RecordsSynced,
	)

	return nil
}

func (w *Writer) prepare(raw Record) (Record, error) {
	rec, err := Transform(raw, w.schema, w.metadata)
	if err != nil {
		return nil, fmt.Errorf("transform audit record: %w", err)
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal audit record: %w", err)
	}
	var doc any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("decode audit record: %w", err)
	}
	if err := w.validator.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate audit record: %w", err)
	}

	return rec, nil
}
