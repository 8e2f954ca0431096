package app

import "bk-go/internal/bk"

// RunOperation tracks one execution of a job. It starts out successful and
// takes its final status from the outcome passed to Finish.
type RunOperation struct {
	ID     string
	Job    string
	Status string
	record *bk.RunRecord
}

// NewRunOperation creates a run operation for job.
func NewRunOperation(id, job string) *RunOperation {
	return &RunOperation{
		ID:     id,
		Job:    job,
		Status: bk.RunSucceeded,
	}
}

// Finish settles the operation from the job's report and error and returns
// the record to store in the run history. A nil report is treated as a run
// that failed before producing anything.
func (op *RunOperation) Finish(report *bk.RunReport, err error) *bk.RunRecord {
	if report == nil {
		report = &bk.RunReport{Job: op.Job}
	}
	op.record = bk.NewRunRecord(op.ID, report, err)
	op.Status = op.record.Status
	return op.record
}

// Finished reports whether Finish has been called.
func (op *RunOperation) Finished() bool {
	return op.record != nil
}
