package carbon

import (
	"strings"
	"time"
)

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses a single instant and normalizes it to UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, NewValidationError(ErrUnparsableTimestamp, "could not parse %q", raw)
}

// ParseTimeInterval validates and parses a "<start>/<end>" interval.
//
// The string must contain exactly two parts separated by '/'. Each part is
// parsed with ParseTimestamp. The start must not come after the end.
func ParseTimeInterval(timeInterval string) (TimeInterval, error) {
	parts := strings.Split(timeInterval, "/")
	if len(parts) != 2 {
		return TimeInterval{}, NewValidationError(ErrMalformedInterval,
			"expected exactly 2 dates separated by '/', received %q", timeInterval)
	}

	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return TimeInterval{}, NewValidationError(ErrUnparsableTimestamp, "could not parse start time %q", parts[0])
	}
	end, err := ParseTimestamp(parts[1])
	if err != nil {
		return TimeInterval{}, NewValidationError(ErrUnparsableTimestamp, "could not parse end time %q", parts[1])
	}

	if start.After(end) {
		return TimeInterval{}, NewValidationError(ErrInvertedInterval,
			"start time must come before end time: %q", timeInterval)
	}

	return TimeInterval{Start: start, End: end}, nil
}
