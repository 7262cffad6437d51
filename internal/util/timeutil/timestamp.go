// Package timeutil converts between SQL date/time literals, time.Time and
// the microsecond numbers statistics store for temporal columns.
package timeutil

import (
	"fmt"
	"time"
)

// Common time format strings
const (
	DateFormat          = "2006-01-02"
	DateTimeFormat      = "2006-01-02 15:04:05"
	DateTimeMicroFormat = "2006-01-02 15:04:05.999999"
)

// layouts are tried in order by Parse.
var layouts = []string{
	time.RFC3339Nano,
	DateTimeMicroFormat,
	DateTimeFormat,
	DateFormat,
}

// Parse reads a date or timestamp literal. Literals without a zone are UTC.
func Parse(s string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date/time literal %q", s)
}

// ToMicros maps t to microseconds since the Unix epoch, the numeric domain
// of temporal column statistics.
func ToMicros(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// FromMicros is the inverse of ToMicros, in UTC.
func FromMicros(v float64) time.Time {
	return time.UnixMicro(int64(v)).UTC()
}
