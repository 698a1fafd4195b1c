package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tap_notify/internal/domain"
)

type WriterTestSuite struct {
	suite.Suite

	out    *bytes.Buffer
	logger *slog.Logger
	now    time.Time
	writer *Writer
}

func (s *WriterTestSuite) SetupTest() {
	s.out = &bytes.Buffer{}
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.now = time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)

	w, err := NewWriter(s.out, s.logger, WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.writer = w
}

func TestWriterTestSuite(t *testing.T) {
	suite.Run(t, new(WriterTestSuite))
}

func (s *WriterTestSuite) entry() Entry {
	return Entry{
		RunID:         42,
		StreamName:    "reviews",
		BatchStart:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RecordsSynced: 150,
		RunTime:       12500 * time.Millisecond,
		Comments:      "",
	}
}

func (s *WriterTestSuite) messages() []map[string]any {
	var msgs []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(s.out.Bytes()))
	for scanner.Scan() {
		var msg map[string]any
		s.Require().NoError(json.Unmarshal(scanner.Bytes(), &msg))
		msgs = append(msgs, msg)
	}
	s.Require().NoError(scanner.Err())
	return msgs
}

func (s *WriterTestSuite) TestWrite_EmitsSchemaThenRecord() {
	err := s.writer.Write(context.Background(), s.entry())
	s.Require().NoError(err)

	msgs := s.messages()
	s.Require().Len(msgs, 2)

	s.Equal("SCHEMA", msgs[0]["type"])
	s.Equal(StreamName, msgs[0]["stream"])
	s.Equal([]any{}, msgs[0]["key_properties"])

	schema := msgs[0]["schema"].(map[string]any)
	s.Equal(false, schema["additionalProperties"])
	props := schema["properties"].(map[string]any)
	s.Len(props, 7)
	s.Equal("date-time", props[FieldBatchEnd].(map[string]any)["format"])

	md := msgs[0]["metadata"].([]any)
	s.Len(md, 8)
	root := md[0].(map[string]any)["metadata"].(map[string]any)
	s.Equal("FULL_TABLE", root["forced-replication-method"])
	s.Equal("available", root["inclusion"])

	s.Equal("RECORD", msgs[1]["type"])
	s.Equal(StreamName, msgs[1]["stream"])
}

func (s *WriterTestSuite) TestWrite_RecordFields() {
	err := s.writer.Write(context.Background(), s.entry())
	s.Require().NoError(err)

	record := s.messages()[1]["record"].(map[string]any)

	s.Len(record, 7)
	s.Equal(float64(42), record[FieldRunID])
	s.Equal("reviews", record[FieldStreamName])
	s.Equal("2024-01-01T00:00:00Z", record[FieldBatchStart])
	s.Equal("2024-01-01T00:05:00Z", record[FieldBatchEnd])
	s.Equal(float64(150), record[FieldRecordsSynced])
	s.Equal(12.5, record[FieldRunTime])
	s.Equal("", record[FieldComments])
}

func (s *WriterTestSuite) TestWrite_ExplicitBatchEndWins() {
	e := s.entry()
	e.BatchEnd = time.Date(2024, 1, 1, 0, 0, 12, 0, time.UTC)

	s.Require().NoError(s.writer.Write(context.Background(), e))

	record := s.messages()[1]["record"].(map[string]any)
	s.Equal("2024-01-01T00:00:12Z", record[FieldBatchEnd])
}

func (s *WriterTestSuite) TestWrite_MissingStream() {
	e := s.entry()
	e.StreamName = ""

	err := s.writer.Write(context.Background(), e)
	s.True(errors.Is(err, domain.ErrMissingStream))
	s.Zero(s.out.Len())
}

func (s *WriterTestSuite) TestWrite_UnsupportedFieldDropped() {
	md := AuditMetadata()
	for i := range md {
		if len(md[i].Breadcrumb) == 2 && md[i].Breadcrumb[1] == FieldComments {
			md[i].Metadata = map[string]any{"inclusion": InclusionUnsupported}
		}
	}

	w, err := NewWriter(s.out, s.logger, WithClock(func() time.Time { return s.now }), WithMetadata(md))
	s.Require().NoError(err)
	s.Require().NoError(w.Write(context.Background(), s.entry()))

	record := s.messages()[1]["record"].(map[string]any)
	s.Len(record, 6)
	s.NotContains(record, FieldComments)
}

func (s *WriterTestSuite) TestWrite_FailingOutput() {
	w, err := NewWriter(failingWriter{}, s.logger)
	s.Require().NoError(err)

	err = w.Write(context.Background(), s.entry())
	s.Error(err)
	s.Contains(err.Error(), "write schema message")
}

func (s *WriterTestSuite) TestBuildRecord_Idempotent() {
	clock := func() time.Time { return s.now }

	first := BuildRecord(s.entry(), clock)
	second := BuildRecord(s.entry(), clock)
	s.Equal(first, second)

	e := s.entry()
	e.BatchEnd = time.Date(2024, 1, 1, 0, 0, 12, 0, time.UTC)
	s.Equal(BuildRecord(e, time.Now), BuildRecord(e, time.Now))
}

func (s *WriterTestSuite) TestBuildRecord_FixedClockForMissingBatchEnd() {
	rec := BuildRecord(s.entry(), func() time.Time { return s.now })
	s.Equal(s.now, rec[FieldBatchEnd])
}

func (s *WriterTestSuite) TestEntryFromRun() {
	run := domain.RunSummary{
		RunID:       7,
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RunTime:     10 * time.Second,
		RecordCount: 3,
		Comments:    "timeout error",
	}

	e := EntryFromRun(run, "responses")
	s.Equal(int64(7), e.RunID)
	s.Equal("responses", e.StreamName)
	s.Equal(run.StartTime, e.BatchStart)
	s.Equal(run.StartTime.Add(10*time.Second), e.BatchEnd)
	s.Equal(int64(3), e.RecordsSynced)
	s.Equal("timeout error", e.Comments)

	s.True(EntryFromRun(domain.RunSummary{RunID: 1}, "x").BatchEnd.IsZero())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("stdout closed")
}
