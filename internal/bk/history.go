package bk

import "time"

// Run statuses recorded in the history.
const (
	RunSucceeded = "success"
	RunPartial   = "partial"
	RunFailed    = "error"
)

// RunRecord is the persisted summary of a job run.
type RunRecord struct {
	ID         string
	Job        string
	Method     string
	Target     string
	Package    string
	Part       string
	StartedAt  time.Time
	FinishedAt time.Time
	Copied     int
	Skipped    int
	Failed     int
	Bytes      int64
	Status     string
	Error      string
}

// NewRunRecord builds the history record for a run. runErr is the error
// returned by PerformBackup, if any.
func NewRunRecord(id string, report *RunReport, runErr error) *RunRecord {
	rec := &RunRecord{
		ID:         id,
		Job:        report.Job,
		Method:     report.Method.String(),
		Target:     report.Target,
		Package:    report.Package,
		Part:       report.Part,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Copied:     report.Copied,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Bytes:      report.Bytes,
		Status:     RunSucceeded,
	}
	switch {
	case runErr != nil:
		rec.Status = RunFailed
		rec.Error = runErr.Error()
	case report.Failed > 0 || report.MirrorFailures > 0:
		rec.Status = RunPartial
	}
	return rec
}

// RunHistory stores run records.
type RunHistory interface {
	// RecordRun persists a finished run.
	RecordRun(run *RunRecord) error

	// RecentRuns returns up to limit runs, newest first.
	RecentRuns(limit int) ([]*RunRecord, error)

	// Close releases the underlying storage.
	Close() error
}

// NopHistory discards run records.
type NopHistory struct{}

var _ RunHistory = NopHistory{}

func (NopHistory) RecordRun(*RunRecord) error           { return nil }
func (NopHistory) RecentRuns(int) ([]*RunRecord, error) { return nil, nil }
func (NopHistory) Close() error                         { return nil }
