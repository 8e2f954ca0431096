package bk

import (
	"fmt"
	"strings"
)

// Method selects how a job decides what to copy.
type Method int

const (
	// Full copies every source into a fresh package on every run.
	Full Method = iota
	// Differential copies what changed since the package's baseline part.
	Differential
	// Incremental copies what changed since the package's most recent parts.
	Incremental
)

var methodNames = [...]string{"Full", "Differential", "Incremental"}

// String returns the configuration name of the method.
func (m Method) String() string {
	if m < Full || m > Incremental {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// Prefix returns the prefix used in part folder names.
func (m Method) Prefix() string {
	switch m {
	case Differential:
		return "DIFF"
	case Incremental:
		return "INCR"
	default:
		return "FULL"
	}
}

// ParseMethod parses a method name case-insensitively.
func ParseMethod(s string) (Method, error) {
	for i, name := range methodNames {
		if strings.EqualFold(s, name) {
			return Method(i), nil
		}
	}
	return Full, fmt.Errorf("unknown backup method: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if m < Full || m > Incremental {
		return nil, fmt.Errorf("invalid backup method: %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Retention bounds how much history a target keeps.
type Retention struct {
	Count int `json:"count" toml:"count"` // max packages per target
	Size  int `json:"size" toml:"size"`   // max parts per package
}

// PartLimit returns the number of parts after which a package is full.
func (r Retention) PartLimit(m Method) int {
	if m == Full || r.Size < 1 {
		return 1
	}
	return r.Size
}
