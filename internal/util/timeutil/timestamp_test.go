package timeutil

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-03-01 10:30:45", time.Date(2024, 3, 1, 10, 30, 45, 0, time.UTC)},
		{"2024-03-01 10:30:45.123456", time.Date(2024, 3, 1, 10, 30, 45, 123456000, time.UTC)},
		{"2024-03-01T10:30:45Z", time.Date(2024, 3, 1, 10, 30, 45, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := Parse("yesterday"); err == nil {
		t.Error("expected error for invalid literal")
	}
}

func TestMicrosRoundTrip(t *testing.T) {
	ts := time.Date(2024, 12, 20, 10, 30, 45, 123456000, time.UTC)
	if got := FromMicros(ToMicros(ts)); !got.Equal(ts) {
		t.Errorf("round trip failed: original=%v, converted=%v", ts, got)
	}
	if got := FromMicros(ToMicros(ts)).Year(); got != 2024 {
		t.Errorf("year = %d, want 2024", got)
	}
}
