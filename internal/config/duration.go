package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration is a config field holding a Go duration string ("500ms", "10s").
// Empty means unset; negatives are rejected at validation time.
type Duration string

// Value parses the field. path names the field in error messages.
func (d Duration) Value(path string) (time.Duration, error) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return 0, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, string(d), err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return v, nil
}

// Or parses the field, substituting def when unset.
func (d Duration) Or(path string, def time.Duration) (time.Duration, error) {
	v, err := d.Value(path)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return def, nil
	}
	return v, nil
}
