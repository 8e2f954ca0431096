// Package schedule turns job timing expressions into cron schedules and runs
// jobs on them.
package schedule

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// parser accepts six fields (seconds first) and descriptors such as @daily.
var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Normalize rewrites a timing expression into the six-field form the
// scheduler runs. Five-field expressions get a "0" seconds field, a wildcard
// seventh (year) field is dropped, and when both day-of-month and day-of-week
// are restricted, day-of-week becomes "?" so only day-of-month applies.
func Normalize(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@") {
		if _, err := parser.Parse(expr); err != nil {
			return "", fmt.Errorf("invalid cron descriptor %q: %w", expr, err)
		}
		return expr, nil
	}

	fields := strings.Fields(expr)
	switch len(fields) {
	case 5:
		fields = append([]string{"0"}, fields...)
	case 6:
	case 7:
		if year := fields[6]; year != "*" && year != "?" {
			return "", fmt.Errorf("invalid cron expression %q: year field must be a wildcard", expr)
		}
		fields = fields[:6]
	default:
		return "", fmt.Errorf("invalid cron expression %q: expected 5 to 7 fields, got %d", expr, len(fields))
	}

	if restrictive(fields[3]) && restrictive(fields[5]) {
		fields[5] = "?"
	}

	normalized := strings.Join(fields, " ")
	if _, err := parser.Parse(normalized); err != nil {
		return "", fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return normalized, nil
}

// Parse normalizes expr and returns its schedule.
func Parse(expr string) (cron.Schedule, error) {
	normalized, err := Normalize(expr)
	if err != nil {
		return nil, err
	}
	return parser.Parse(normalized)
}

func restrictive(field string) bool {
	return field != "*" && field != "?"
}
