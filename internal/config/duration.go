package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration resolves one of the config file's duration-string fields
// (poll_timeout, busy_timeout). Every such field is optional with a
// positive built-in default, so empty and "0" both mean "use def";
// negatives and unparseable values are configuration errors.
func Duration(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %q is not a duration (use Go syntax, e.g. \"10s\"): %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s: %q is negative", field, raw)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
