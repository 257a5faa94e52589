package domain

import (
	"fmt"
	"strings"
	"time"
)

// zonedLayouts carry their own offset; naiveLayouts are interpreted in the broker location.
// Order matters: the first layout that parses wins.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z0700",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006.01.02 15:04:05",
		"2006.01.02 15:04",
		"2006-01-02",
	}
)

// ParseTimestamp normalizes a raw deal timestamp to UTC.
// Accepted shapes: time.Time, epoch milliseconds (int64), ISO-8601 strings with or without
// an offset, and the legacy "YYYY.MM.DD HH:MM:SS" broker export. Values without an offset
// are read in loc (UTC when nil). Anything else, including an empty value, is a
// *DataIntegrityError carrying the raw value.
func ParseTimestamp(raw any, recordID string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, &DataIntegrityError{Field: "time", RecordID: recordID, Value: "", Reason: "zero timestamp"}
		}
		return v.UTC(), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, &DataIntegrityError{Field: "time", RecordID: recordID, Reason: "missing timestamp"}
		}
		return ParseTimestamp(*v, recordID, loc)
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case string:
		return parseTimestampString(v, recordID, loc)
	case nil:
		return time.Time{}, &DataIntegrityError{Field: "time", RecordID: recordID, Reason: "missing timestamp"}
	default:
		return time.Time{}, &DataIntegrityError{
			Field:    "time",
			RecordID: recordID,
			Value:    fmt.Sprintf("%v", raw),
			Reason:   fmt.Sprintf("unsupported timestamp type %T", raw),
		}
	}
}

func parseTimestampString(s, recordID string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &DataIntegrityError{Field: "time", RecordID: recordID, Reason: "empty timestamp"}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &DataIntegrityError{Field: "time", RecordID: recordID, Value: s, Reason: "unrecognized timestamp format"}
}

// Window is a half-open time range [Start, End). A zero Start is unbounded.
// A zero End on a window with a Start means "now" at the time of reduction;
// a window with neither bound is all time and stays open on both ends.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AllTime is the unbounded window.
func AllTime() Window {
	return Window{}
}

// Unbounded reports whether the window has neither a start nor an end.
func (w Window) Unbounded() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Resolve fills a zero End with now. All-time windows are returned unchanged
// so deals stamped after now are still counted.
func (w Window) Resolve(now time.Time) Window {
	if w.End.IsZero() && !w.Start.IsZero() {
		w.End = now
	}
	return w
}

// Empty reports whether a resolved window can contain no instant.
func (w Window) Empty() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && !w.End.After(w.Start)
}

// Contains reports whether t falls in [Start, End). A zero End is open.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || t.Before(w.End)
}
