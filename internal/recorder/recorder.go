// Package recorder persists screening run history for later analysis.
package recorder

import (
	"time"

	"perpscan/pkg/model"
)

// Run holds one completed screening run.
type Run struct {
	ID        string
	StartedAt time.Time
	Screened  int
	Matched   int
	Verdicts  []model.Verdict
}

// Recorder persists screening runs.
type Recorder interface {
	RecordRun(run *Run) error
	Close() error
}

// Noop discards all records. Used when no database is configured.
type Noop struct{}

func (Noop) RecordRun(*Run) error { return nil }
func (Noop) Close() error         { return nil }
