package redate

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// stampLayout is the zoneless entry form. Zoneless entries are taken in
// the machine's local zone, which then becomes the zone recorded on the
// rewritten commits.
const stampLayout = "2006-01-02T15:04:05"

var defaultStamps = []string{
	"2025-07-21T10:15:00",
	"2025-07-21T14:40:00",
	"2025-07-22T09:05:00",
	"2025-07-22T11:30:00",
	"2025-07-22T16:20:00",
	"2025-07-23T10:45:00",
	"2025-07-23T15:10:00",
	"2025-07-24T09:25:00",
	"2025-07-24T13:50:00",
	"2025-07-25T11:05:00",
	"2025-07-25T17:35:00",
	"2025-07-27T09:30:00",
	"2025-07-27T14:20:00",
	"2025-07-27T16:45:00",
	"2025-07-28T10:10:00",
	"2025-07-28T15:55:00",
	"2025-07-29T09:40:00",
	"2025-07-29T14:05:00",
	"2025-07-30T11:20:00",
	"2025-07-31T10:30:00",
	"2025-07-31T16:15:00",
	"2025-08-01T09:50:00",
	"2025-08-01T13:25:00",
	"2025-08-04T10:05:00",
	"2025-08-04T14:45:00",
	"2025-08-05T11:40:00",
	"2025-08-06T09:15:00",
}

// Table is an ordered sequence of replacement timestamps. The commit at
// position N in history receives entry N; positions past the end all
// receive the final entry.
type Table struct {
	stamps []time.Time
}

// NewTable parses and validates a table. Entries must parse (RFC 3339 or
// zoneless local time), the table must not be empty, and entries must not
// decrease.
func NewTable(entries []string) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("date table is empty")
	}

	stamps := make([]time.Time, 0, len(entries))
	for i, entry := range entries {
		when, err := parseStamp(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to parse table entry %d: %w", i, err)
		}
		if i > 0 && when.Before(stamps[i-1]) {
			return nil, fmt.Errorf("table entry %d (%s) is earlier than entry %d", i, entry, i-1)
		}
		stamps = append(stamps, when)
	}

	return &Table{stamps: stamps}, nil
}

// DefaultTable returns the built-in schedule used when no table file is
// given.
func DefaultTable() *Table {
	t, err := NewTable(defaultStamps)
	if err != nil {
		panic("redate: built-in date table is invalid: " + err.Error())
	}
	return t
}

// LoadTableFile reads a table with one timestamp per line. Blank lines
// and lines starting with # are ignored.
func LoadTableFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table file: %w", err)
	}

	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}

	t, err := NewTable(entries)
	if err != nil {
		return nil, fmt.Errorf("invalid table file %s: %w", path, err)
	}
	return t, nil
}

// Assign returns the timestamp for the given 0-based history position,
// clamped to the final entry once the table is exhausted.
func (t *Table) Assign(position int) time.Time {
	if position >= len(t.stamps) {
		position = len(t.stamps) - 1
	}
	if position < 0 {
		position = 0
	}
	return t.stamps[position]
}

func (t *Table) Len() int {
	return len(t.stamps)
}

func parseStamp(s string) (time.Time, error) {
	if when, err := time.Parse(time.RFC3339, s); err == nil {
		return when, nil
	}
	when, err := time.ParseInLocation(stampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return when, nil
}
