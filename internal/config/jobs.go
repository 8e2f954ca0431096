package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"bk-go/internal/bk"
	"bk-go/internal/schedule"
)

// Retention defaults applied when a job record leaves them out.
const (
	DefaultRetentionCount = 5
	DefaultRetentionSize  = 5
)

// JobRecord is one job as written in the job file.
type JobRecord struct {
	Name      string           `json:"name,omitempty"`
	Sources   []string         `json:"sources"`
	Targets   []string         `json:"targets"`
	Timing    string           `json:"timing"`
	Retention *RetentionRecord `json:"retention,omitempty"`
	Method    string           `json:"method,omitempty"`
	Ignore    []string         `json:"ignore,omitempty"`
}

// RetentionRecord holds the optional retention fields of a job record.
type RetentionRecord struct {
	Count *int `json:"count,omitempty"`
	Size  *int `json:"size,omitempty"`
}

// FieldError describes one problem with one job.
type FieldError struct {
	Job     string
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("job %s: %s: %s", e.Job, e.Field, e.Message)
}

// ValidationErrors is the list of problems found while validating jobs.
type ValidationErrors []*FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// ParseJobs decodes a job file. Comments and trailing commas are allowed, and
// the root may be either an array of jobs or a single job object.
func ParseJobs(data []byte) ([]JobRecord, error) {
	stripped := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(stripped) == 0 {
		return nil, fmt.Errorf("job file is empty")
	}

	switch stripped[0] {
	case '[':
		var records []JobRecord
		if err := json.Unmarshal(stripped, &records); err != nil {
			return nil, fmt.Errorf("parsing jobs: %w", err)
		}
		return records, nil
	case '{':
		var record JobRecord
		if err := json.Unmarshal(stripped, &record); err != nil {
			return nil, fmt.Errorf("parsing job: %w", err)
		}
		return []JobRecord{record}, nil
	default:
		return nil, fmt.Errorf("job file must contain a JSON array or object")
	}
}

// Definition applies defaults to the record and checks everything that can be
// checked without touching the filesystem. index names unnamed jobs.
func (r JobRecord) Definition(index int) (bk.JobDefinition, ValidationErrors) {
	name := r.Name
	if name == "" {
		name = fmt.Sprintf("job-%d", index+1)
	}

	var errs ValidationErrors
	fail := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Job: name, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	def := bk.JobDefinition{
		Name:      name,
		Retention: bk.Retention{Count: DefaultRetentionCount, Size: DefaultRetentionSize},
		Method:    bk.Full,
		Ignore:    r.Ignore,
	}

	if len(r.Sources) == 0 {
		fail("sources", "list is missing or empty")
	}
	for _, s := range r.Sources {
		if strings.TrimSpace(s) == "" {
			fail("sources", "empty path")
			continue
		}
		def.Sources = append(def.Sources, s)
	}

	if len(r.Targets) == 0 {
		fail("targets", "list is missing or empty")
	}
	for _, t := range r.Targets {
		if strings.TrimSpace(t) == "" {
			fail("targets", "empty path")
			continue
		}
		def.Targets = append(def.Targets, t)
	}

	if r.Timing == "" {
		fail("timing", "cron expression is missing")
	} else if timing, err := schedule.Normalize(r.Timing); err != nil {
		fail("timing", "%v", err)
	} else {
		def.Timing = timing
	}

	if r.Method != "" {
		m, err := bk.ParseMethod(r.Method)
		if err != nil {
			fail("method", "%v", err)
		}
		def.Method = m
	}

	if r.Retention != nil {
		if r.Retention.Count != nil {
			def.Retention.Count = *r.Retention.Count
		}
		if r.Retention.Size != nil {
			def.Retention.Size = *r.Retention.Size
		}
	}
	if def.Retention.Count < 1 {
		fail("retention.count", "must be at least 1, got %d", def.Retention.Count)
	}
	if def.Method == bk.Full {
		def.Retention.Size = 1
	} else if def.Retention.Size < 1 {
		fail("retention.size", "must be at least 1, got %d", def.Retention.Size)
	}

	return def, errs
}

// ValidateJobs turns records into definitions. Jobs with problems are left
// out and their problems returned. A target may belong to one job only: the
// first job naming it keeps it and every later job naming it is rejected.
func ValidateJobs(records []JobRecord) ([]bk.JobDefinition, ValidationErrors) {
	var defs []bk.JobDefinition
	var errs ValidationErrors
	owners := make(map[string]string)

	for i, r := range records {
		def, problems := r.Definition(i)

		claimed := make(map[string]bool)
		for _, t := range def.Targets {
			key := targetKey(t)
			if owner, ok := owners[key]; ok {
				problems = append(problems, &FieldError{
					Job:     def.Name,
					Field:   "targets",
					Message: fmt.Sprintf("target %s is already used by job %s", t, owner),
				})
				continue
			}
			if claimed[key] {
				problems = append(problems, &FieldError{
					Job:     def.Name,
					Field:   "targets",
					Message: fmt.Sprintf("target %s is listed twice", t),
				})
			}
			claimed[key] = true
		}

		if len(problems) > 0 {
			errs = append(errs, problems...)
			continue
		}
		for key := range claimed {
			owners[key] = def.Name
		}
		defs = append(defs, def)
	}
	return defs, errs
}

// LoadJobs reads and validates the job file at path. A file that cannot be
// read or parsed is an error; invalid jobs are only reported.
func LoadJobs(path string) ([]bk.JobDefinition, ValidationErrors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	records, err := ParseJobs(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	defs, problems := ValidateJobs(records)
	return defs, problems, nil
}

func targetKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return strings.ToLower(filepath.Clean(path))
}
