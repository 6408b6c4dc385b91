// Package timeutil reconciles the heterogeneous timestamp shapes the
// provider API returns (RFC3339 strings, bare dates, numeric epochs,
// missing fields) into comparable epoch-millisecond values.
package timeutil

import (
	"math"
	"time"
)

// EpochMillis converts any date-like value into epoch milliseconds.
// Unusable input (nil, empty, unparseable, non-finite) resolves to 0,
// the "oldest possible" sentinel. It never panics and never returns a
// negative value.
func EpochMillis(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case time.Time:
		if t.IsZero() {
			return 0
		}
		return clamp(t.UnixMilli())
	case *time.Time:
		if t == nil {
			return 0
		}
		return EpochMillis(*t)
	case string:
		return parseString(t)
	case *string:
		if t == nil {
			return 0
		}
		return parseString(*t)
	case int64:
		return clamp(t)
	case int:
		return clamp(int64(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return clamp(int64(t))
	default:
		return 0
	}
}

func parseString(s string) int64 {
	if s == "" {
		return 0
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return clamp(ts.UnixMilli())
		}
	}
	return 0
}

func clamp(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms
}

// Latest returns the greatest of the candidate timestamps. Candidates
// that resolved to the 0 sentinel stay eligible, so the result is 0
// only when every source was unusable.
func Latest(candidates ...int64) int64 {
	var max int64
	for _, c := range candidates {
		if c > max {
			max = c
		}
	}
	return max
}
