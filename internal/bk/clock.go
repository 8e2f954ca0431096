package bk

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock supplies the time that names parts and packages.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator names run records.
type IDGenerator interface {
	New() string
}

// UUIDGenerator names runs with random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// hexTimestamp renders t as uppercase hexadecimal nanoseconds. Names built
// from it sort in creation order.
func hexTimestamp(t time.Time) string {
	return strings.ToUpper(strconv.FormatInt(t.UnixNano(), 16))
}

// parseHexTimestamp is the inverse of hexTimestamp.
func parseHexTimestamp(s string) (time.Time, bool) {
	n, err := strconv.ParseInt(s, 16, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}
