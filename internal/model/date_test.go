package model

import (
	"testing"
	"time"
)

func TestParseTradeDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-02-29", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{" 2024-01-01 ", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-03-01T15:30:00+02:00", time.Date(2024, 3, 1, 13, 30, 0, 0, time.UTC)},
		{"2024-03-01T09:00:00Z", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTradeDate(tt.in)
		if err != nil {
			t.Errorf("ParseTradeDate(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) || got.Location() != time.UTC {
			t.Errorf("ParseTradeDate(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestParseTradeDate_Today(t *testing.T) {
	got, err := ParseTradeDate("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour() != 0 || got.Minute() != 0 || got.Location() != time.UTC {
		t.Errorf("expected midnight UTC, got %v", got)
	}
}

func TestParseTradeDate_Invalid(t *testing.T) {
	for _, bad := range []string{"29/02/2024", "2024-13-01", "yesterday", "2024-03-01T15:30"} {
		if _, err := ParseTradeDate(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
