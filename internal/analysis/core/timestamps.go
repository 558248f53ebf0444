// internal/analysis/core/timestamps.go
package core

import (
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp parses an archive timestamp. Recorders emit RFC 3339 with
// varying precision and occasionally without a colon in the offset.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// UnixMillis returns the timestamp in milliseconds, or 0 when it does not parse.
func UnixMillis(s string) int64 {
	t, ok := ParseTimestamp(s)
	if !ok {
		return 0
	}
	return t.UnixMilli()
}

// DurationMs is end minus start in milliseconds. Each side that fails to
// parse counts as 0.
func DurationMs(start, end string) int64 {
	return UnixMillis(end) - UnixMillis(start)
}
