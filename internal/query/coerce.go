package query

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// Coerce converts raw into the semantic type of f. The second result is false
// when the value cannot be represented; callers drop the clause in that case.
func Coerce(f Field, raw string) (any, bool) {
	if f.Kind != Scalar || strings.TrimSpace(raw) == "" {
		return nil, false
	}
	switch f.Type {
	case TypeString:
		return raw, true
	case TypeEnum:
		for _, v := range f.Enum {
			if v == raw {
				return v, true
			}
		}
		return nil, false
	case TypeInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case TypeFloat:
		x, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		return x, true
	case TypeBool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "on", "yes", "1":
			return true, true
		case "false", "off", "no", "0":
			return false, true
		}
		return nil, false
	case TypeTime:
		return ParseTime(raw)
	default:
		return nil, false
	}
}

// ParseTime accepts RFC 3339 or a local ISO date-time; results are UTC.
func ParseTime(raw string) (time.Time, bool) {
	v := strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
