package domain

import (
	"fmt"
	"time"
)

// Status is the outcome of a sync run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// StatusFor derives the run status from its comments.
// Any non-empty comment marks the run as failed.
func StatusFor(comments string) Status {
	if comments != "" {
		return StatusFailure
	}
	return StatusSuccess
}

// RunSummary describes one completed (or failed) sync run.
type RunSummary struct {
	RunID       int64         `json:"run_id"`
	StartTime   time.Time     `json:"start_time"`
	RunTime     time.Duration `json:"run_time"`
	RecordCount int64         `json:"record_count"`
	Comments    string        `json:"comments"`
}

func (r RunSummary) Status() Status {
	return StatusFor(r.Comments)
}

func (r RunSummary) Failed() bool {
	return r.Status() == StatusFailure
}

// EndTime returns StartTime+RunTime, or the zero time when either is unknown.
func (r RunSummary) EndTime() time.Time {
	if r.StartTime.IsZero() || r.RunTime <= 0 {
		return time.Time{}
	}
	return r.StartTime.Add(r.RunTime)
}

// RunTimeSeconds renders RunTime the way notifications and audit records expect it.
func (r RunSummary) RunTimeSeconds() float64 {
	return r.RunTime.Seconds()
}

func (r RunSummary) StartTimeString() string {
	if r.StartTime.IsZero() {
		return ""
	}
	return r.StartTime.UTC().Format(time.RFC3339)
}

func (r RunSummary) Validate() error {
	if r.RecordCount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeRecordCount, r.RecordCount)
	}
	return nil
}
