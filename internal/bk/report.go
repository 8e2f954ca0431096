package bk

import "time"

// SourceReport counts what happened to one source during a run.
type SourceReport struct {
	Source    string
	Wholesale bool // copied without comparison because no prior part existed
	Copied    int
	Skipped   int
	Failed    int
	Bytes     int64
}

func (s *SourceReport) addCopy(stats CopyStats) {
	s.Copied += stats.Files + stats.Links
	s.Failed += stats.Failed
	s.Bytes += stats.Bytes
}

// RunReport summarizes one PerformBackup call.
type RunReport struct {
	Job            string
	Method         Method
	Target         string
	Package        string
	Part           string
	StartedAt      time.Time
	FinishedAt     time.Time
	Copied         int
	Skipped        int
	Failed         int
	Bytes          int64
	MirrorFailures int
	Sources        []SourceReport
}

func (r *RunReport) add(sr SourceReport) {
	r.Sources = append(r.Sources, sr)
	r.Copied += sr.Copied
	r.Skipped += sr.Skipped
	r.Failed += sr.Failed
	r.Bytes += sr.Bytes
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
