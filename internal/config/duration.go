package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations are Go duration strings ("90s", "1m30s"). Minute-valued fields
// (interval bounds, cooldown) are plain integers and go through minutesOrDefault.

// ParseDurationField parses a non-negative duration; blank means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	return ParseDurationOrDefault(path, raw, 0)
}

// ParseDurationOrDefault returns def for a blank value. "0s" stays zero so a
// field can be switched off explicitly.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration (e.g. 90s, 5m): %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: %s is negative", path, raw)
	}
	return d, nil
}

func minutesOrDefault(path string, v *int, def time.Duration) (time.Duration, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 {
		return 0, fmt.Errorf("%s must be >= 0", path)
	}
	return time.Duration(*v) * time.Minute, nil
}
