package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// timestampLayouts are tried before the general-purpose parser. The first is
// the SFPD export format.
var timestampLayouts = []string{
	"2006/01/02 03:04:05 PM",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// timeOfDayLayouts cover the "Incident Time" column.
var timeOfDayLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04:05 PM",
}

var errEmptyTimestamp = errors.New("empty value")

// ParseTimestamp parses a datetime string in any of the common textual
// formats. All results are in UTC; the source carries no zone.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyTimestamp
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseIn(s, time.UTC)
}

// ParseTimeOfDay parses a bare time-of-day string into a duration since midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errEmptyTimestamp
	}
	var lastErr error
	for _, layout := range timeOfDayLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return sinceMidnight(t), nil
		}
		lastErr = err
	}
	return 0, lastErr
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// MinutesBetween returns (to - from) in minutes, signed.
func MinutesBetween(from, to time.Time) float64 {
	return to.Sub(from).Minutes()
}
