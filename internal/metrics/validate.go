package metrics

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidRange is returned when a range string fails validation.
var ErrInvalidRange = errors.New("invalid range")

// rangePattern is the only shape a range string may take: a number from 1
// to 9999 followed by a single unit letter. Range strings reach the query
// layer verbatim, so anything outside this shape is rejected outright
// rather than sanitized.
var rangePattern = regexp.MustCompile(`^[1-9][0-9]{0,3}(m|h|d|w)$`)

// ParseRange validates a user-supplied range string like "24h" or "7d" and
// converts it to a duration. Supported units: m (minutes), h (hours),
// d (days), w (weeks).
func ParseRange(s string) (time.Duration, error) {
	match := rangePattern.FindStringSubmatch(s)
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	switch match[1] {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRange, s)
}
