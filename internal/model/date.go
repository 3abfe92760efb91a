package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateFormat     = "2006-01-02"
	DatetimeFormat = time.RFC3339
)

// ParseTradeDate reads a ledger trade date as either a calendar date or an
// RFC 3339 timestamp, returned in UTC. An empty string means today at
// midnight UTC.
func ParseTradeDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		y, m, d := time.Now().UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	if t, err := time.Parse(DateFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(DatetimeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid trade date %q, expected YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}
