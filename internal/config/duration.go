package config

import (
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string found at path. Blank means 0.
// Errors are *FieldError and match ErrInvalid.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fieldErr(path, "invalid duration %q", raw)
	case d < 0:
		return 0, fieldErr(path, "duration must be >= 0")
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for 0.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
