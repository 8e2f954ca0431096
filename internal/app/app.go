package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"bk-go/internal/bk"
	"bk-go/internal/config"
	"bk-go/internal/database"
	"bk-go/internal/fs"
	"bk-go/internal/schedule"
)

// ErrNoJobs is returned when the job file yields no runnable job.
var ErrNoJobs = errors.New("no valid jobs configured")

// BKApp is the application layer between the CLI and the backup engine.
// It builds jobs from the job file, runs them once or on their schedules,
// records every run in the history, and owns the log file and history store.
type BKApp struct {
	jobs    []*bk.BackupJob
	invalid []error
	history bk.RunHistory
	logger  bk.Logger
	ids     bk.IDGenerator
	closer  io.Closer
}

// Options selects the job file and log destinations for NewBKApp.
type Options struct {
	JobsPath string
	Log      LogOptions
}

// NewBKApp creates a fully wired BKApp. Jobs that fail validation are logged
// and left out; it is an error only when no job remains.
// The caller must call Close when done.
func NewBKApp(settings *config.Settings, opts Options) (*BKApp, error) {
	runID := time.Now().UTC().Format("20060102T150405Z")
	logger, closer, err := newLogger(opts.Log, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	defs, problems, err := config.LoadJobs(opts.JobsPath)
	if err != nil {
		log.Error("loading jobs", "path", opts.JobsPath, "error", err)
		closer.Close()
		return nil, err
	}

	history, err := database.NewHistoryFromConfig(settings.History)
	if err != nil {
		log.Error("creating run history", "error", err)
		closer.Close()
		return nil, fmt.Errorf("creating run history: %w", err)
	}

	env := bk.Env{FS: fs.NewOSFilesystemManager(), Logger: log, Clock: bk.RealClock{}}
	a := newBKApp(defs, env, history, bk.UUIDGenerator{})
	a.closer = closer
	for _, p := range problems {
		a.invalid = append(a.invalid, p)
		log.Error("invalid job", "job", p.Job, "field", p.Field, "problem", p.Message)
	}

	if len(a.jobs) == 0 {
		a.Close()
		return nil, ErrNoJobs
	}
	return a, nil
}

// newBKApp builds jobs from already validated definitions. Definitions the
// filesystem rejects are logged and kept in the invalid list.
func newBKApp(defs []bk.JobDefinition, env bk.Env, history bk.RunHistory, ids bk.IDGenerator) *BKApp {
	a := &BKApp{
		history: history,
		logger:  env.Logger,
		ids:     ids,
		closer:  io.NopCloser(nil),
	}
	for _, def := range defs {
		job, err := bk.NewBackupJob(def, env)
		if err != nil {
			a.invalid = append(a.invalid, fmt.Errorf("job %s: %w", def.Name, err))
			env.Logger.Error("invalid job", "job", def.Name, "error", err)
			continue
		}
		a.jobs = append(a.jobs, job)
	}
	return a
}

// Jobs returns the runnable jobs in file order.
func (a *BKApp) Jobs() []*bk.BackupJob { return a.jobs }

// Invalid returns the problems of the jobs that were left out.
func (a *BKApp) Invalid() []error { return a.invalid }

// RunAll runs every job once, in file order. It returns the joined errors of
// the runs that failed.
func (a *BKApp) RunAll() error {
	var errs []error
	for _, job := range a.jobs {
		if _, err := a.runJob(job); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// RunJob runs the named job once.
func (a *BKApp) RunJob(name string) (*bk.RunRecord, error) {
	for _, job := range a.jobs {
		if job.Name() == name {
			return a.runJob(job)
		}
	}
	return nil, fmt.Errorf("unknown job %q", name)
}

// Serve runs every job on its schedule until ctx is cancelled, then waits
// for running jobs to finish.
func (a *BKApp) Serve(ctx context.Context) error {
	s := schedule.New(a.logger)
	for _, job := range a.jobs {
		if err := s.Add(job.Name(), job.Timing(), func() { a.runJob(job) }); err != nil {
			return err
		}
	}
	s.Run(ctx)
	return nil
}

// History returns the most recent runs, newest first.
func (a *BKApp) History(limit int) ([]*bk.RunRecord, error) {
	return a.history.RecentRuns(limit)
}

func (a *BKApp) runJob(job *bk.BackupJob) (*bk.RunRecord, error) {
	op := NewRunOperation(a.ids.New(), job.Name())
	a.logger.Info("run started", "run", op.ID, "job", job.Name())

	report, err := job.PerformBackup()
	rec := op.Finish(report, err)

	if herr := a.history.RecordRun(rec); herr != nil {
		a.logger.Error("recording run", "run", op.ID, "error", herr)
	}

	if err != nil {
		a.logger.Error("run failed", "run", op.ID, "job", job.Name(), "error", err)
		return rec, err
	}
	a.logger.Info("run finished", "run", op.ID, "job", job.Name(), "status", op.Status,
		"copied", rec.Copied, "skipped", rec.Skipped, "failed", rec.Failed,
		"size", humanize.IBytes(uint64(rec.Bytes)))
	return rec, nil
}

// Close releases the history store and the log file.
func (a *BKApp) Close() error {
	var errs []error
	if err := a.history.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing history: %w", err))
	}
	if err := a.closer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing log: %w", err))
	}
	return errors.Join(errs...)
}

// CheckJobs loads the job file at path and checks every job against the
// filesystem the way a run would, creating missing targets. It returns the
// names of the runnable jobs and the problems of the others.
func CheckJobs(path string) ([]string, []error, error) {
	defs, problems, err := config.LoadJobs(path)
	if err != nil {
		return nil, nil, err
	}
	env := bk.Env{FS: fs.NewOSFilesystemManager(), Logger: bk.NewNopLogger(), Clock: bk.RealClock{}}
	a := newBKApp(defs, env, bk.NopHistory{}, bk.UUIDGenerator{})

	var invalid []error
	for _, p := range problems {
		invalid = append(invalid, p)
	}
	invalid = append(invalid, a.invalid...)

	names := make([]string, len(a.jobs))
	for i, job := range a.jobs {
		names[i] = job.Name()
	}
	return names, invalid, nil
}
