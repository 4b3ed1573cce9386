// Package normalizer converts the loosely-typed timestamp field of inbound
// events into a canonical instant.
package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layouts tried for textual timestamps before falling back to a numeric
// re-interpretation of the string.
var textLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp coerces a timestamp value of unknown shape into a time.Time.
// It never fails: unrecognized input yields the current instant.
//
// Numeric epochs are classified by the decimal digit count of the truncated
// absolute value: >=19 digits nanoseconds, >=16 microseconds, >=13
// milliseconds, everything else seconds. The boundaries are a heuristic but
// historical data depends on them, so they must not be adjusted.
func Timestamp(v any) time.Time {
	return at(v, time.Now())
}

func at(v any, now time.Time) time.Time {
	switch t := v.(type) {
	case nil:
		return now
	case time.Time:
		return t
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range textLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return at(f, now)
		}
		return now
	case float64:
		return fromEpoch(t, now)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return fromEpoch(f, now)
		}
		return now
	case int64:
		return fromEpoch(float64(t), now)
	case int:
		return fromEpoch(float64(t), now)
	default:
		return now
	}
}

func fromEpoch(f float64, now time.Time) time.Time {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return now
	}

	var ms float64
	switch digits := digitCount(math.Trunc(math.Abs(f))); {
	case digits >= 19: // nanoseconds
		ms = f / 1e6
	case digits >= 16: // microseconds
		ms = f / 1e3
	case digits >= 13: // milliseconds
		ms = f
	default: // seconds, including implausibly small values
		ms = f * 1e3
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func digitCount(n float64) int {
	count := 1
	for n >= 10 {
		n /= 10
		count++
	}
	return count
}
