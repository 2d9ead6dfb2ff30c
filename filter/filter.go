package filter

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/varunsharma6956/ost-mail-searcher/model"
)

// Options captures the filtering configuration. Both bounds are raw,
// user-supplied ISO-8601-like strings; an empty string means unbounded.
type Options struct {
	Start string
	End   string
}

// Filter selects records whose timestamp lies inside an inclusive date range.
// All comparisons use wall-clock digits only: any zone or offset is dropped
// after parsing.
type Filter struct {
	active   bool
	start    time.Time
	end      time.Time
	hasStart bool
	hasEnd   bool
	logger   *slog.Logger
}

// New creates a Filter. A bound that cannot be parsed is logged and ignored,
// so New never fails.
func New(opts Options, logger *slog.Logger) *Filter {
	f := &Filter{
		active: opts.Start != "" || opts.End != "",
		logger: logger,
	}
	if !f.active {
		return f
	}

	if start, ok := f.bound("start", opts.Start); ok {
		f.start, f.hasStart = start, true
	}
	if end, ok := f.bound("end", opts.End); ok {
		f.end, f.hasEnd = end, true
	}
	return f
}

// Apply filters records with the given bounds.
func Apply(records []model.EmailRecord, start, end string) []model.EmailRecord {
	return New(Options{Start: start, End: end}, nil).Apply(records)
}

// Apply returns the records the filter allows, in their original order. The
// input slice is not modified. Without any bound the input is returned as is.
func (f *Filter) Apply(records []model.EmailRecord) []model.EmailRecord {
	if !f.active {
		return records
	}
	out := make([]model.EmailRecord, 0, len(records))
	for _, record := range records {
		if f.Allows(record) {
			out = append(out, record)
		}
	}
	return out
}

// Allows returns true if the record's timestamp is inside the range.
func (f *Filter) Allows(record model.EmailRecord) bool {
	if !f.active {
		return true
	}
	if record.Timestamp == "" {
		return false
	}
	ts, err := ParseTimestamp(record.Timestamp)
	if err != nil {
		if f.logger != nil {
			f.logger.Debug("excluding record with unparsable date", "id", record.ID, "date", record.Timestamp, "err", err)
		}
		return false
	}
	if f.hasStart && ts.Before(f.start) {
		return false
	}
	if f.hasEnd && ts.After(f.end) {
		return false
	}
	return true
}

func (f *Filter) bound(name, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := ParseBound(raw)
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("ignoring malformed date bound", "bound", name, "value", raw, "err", err)
		}
		return time.Time{}, false
	}
	return t, true
}

var (
	isoBases   = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02T15"}
	isoOffsets = []string{"", "Z07:00", "Z0700", "Z07"}

	// Native archive rendering, optionally followed by an offset.
	recordLayouts = []string{"2006-01-02 15:04:05", "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04:05 -0700"}
)

// ParseBound parses an ISO-8601-like date or date-time. A space may replace
// the T separator, fractional seconds and a Z or numeric offset are accepted.
// The result carries the wall clock of the input in UTC.
func ParseBound(value string) (time.Time, error) {
	return parseISO(strings.TrimSpace(value))
}

// ParseTimestamp parses a record timestamp. Values containing a T are read as
// ISO-8601 with every Z removed; anything else is read as
// "YYYY-MM-DD HH:MM:SS" after cutting at the first dot.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "T") {
		return parseISO(strings.ReplaceAll(value, "Z", ""))
	}

	if idx := strings.Index(value, "."); idx >= 0 {
		value = value[:idx]
	}
	for _, layout := range recordLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return naive(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func parseISO(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	if len(value) > 10 && value[10] == ' ' {
		value = value[:10] + "T" + value[11:]
	}
	for _, base := range isoBases {
		for _, offset := range isoOffsets {
			if t, err := time.Parse(base+offset, value); err == nil {
				return naive(t), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ISO-8601 date %q", value)
}

// naive keeps the wall-clock fields of t and drops its location.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
