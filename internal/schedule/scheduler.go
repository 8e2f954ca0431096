package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"bk-go/internal/bk"
)

// Scheduler runs functions on cron schedules. A job whose previous run is
// still going when it fires again is skipped, never run twice at once.
type Scheduler struct {
	cron   *cron.Cron
	logger bk.Logger
	names  map[cron.EntryID]string
}

// New creates a stopped scheduler.
func New(logger bk.Logger) *Scheduler {
	cl := cronLogger{l: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		names:  make(map[cron.EntryID]string),
	}
}

// Add registers run under name on the timing expression expr.
func (s *Scheduler) Add(name, expr string, run func()) error {
	normalized, err := Normalize(expr)
	if err != nil {
		return err
	}
	id, err := s.cron.AddFunc(normalized, run)
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	s.names[id] = name
	return nil
}

// Next returns the next activation of every registered job, keyed by name.
func (s *Scheduler) Next() map[string]time.Time {
	next := make(map[string]time.Time)
	for _, e := range s.cron.Entries() {
		next[s.names[e.ID]] = e.Schedule.Next(time.Now())
	}
	return next
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	for name, at := range s.Next() {
		s.logger.Info("job scheduled", "job", name, "next", at.Format(time.RFC3339))
	}

	<-ctx.Done()
	s.logger.Info("scheduler stopping, waiting for running jobs")
	<-s.cron.Stop().Done()
}

// cronLogger adapts bk.Logger to cron.Logger.
type cronLogger struct {
	l bk.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
