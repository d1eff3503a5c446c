package core

import (
	"fmt"
	"time"
)

const dateKeyLayout = "2006-01-02"

// DateKey is a calendar day formatted as zero-padded "YYYY-MM-DD". The fixed
// width makes lexicographic order equal to chronological order, which the
// stores rely on for month range queries.
type DateKey string

// NewDateKey formats a year, month and day. Out-of-range values are
// normalized the way time.Date normalizes them.
func NewDateKey(year int, month time.Month, day int) DateKey {
	return DateKey(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format(dateKeyLayout))
}

// ParseDateKey validates s and returns it as a DateKey.
func ParseDateKey(s string) (DateKey, error) {
	t, err := time.Parse(dateKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	// time.Parse accepts some non-canonical inputs; require the exact form.
	if t.Format(dateKeyLayout) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateKey(s), nil
}

// Time returns the key as midnight UTC.
func (k DateKey) Time() time.Time {
	t, _ := time.Parse(dateKeyLayout, string(k))
	return t
}

// Day returns the day of month, 0 for an unparsable key.
func (k DateKey) Day() int {
	t := k.Time()
	if t.IsZero() {
		return 0
	}
	return t.Day()
}

// Month returns the month the key falls in.
func (k DateKey) Month() Month {
	t := k.Time()
	return Month{Year: t.Year(), Month: t.Month()}
}

func (k DateKey) String() string { return string(k) }

// Month is a calendar month of a specific year.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth validates year and month numbers as received from requests.
func NewMonth(year, month int) (Month, error) {
	if month < 1 || month > 12 {
		return Month{}, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	if year < 1 || year > 9999 {
		return Month{}, fmt.Errorf("%w: year %d", ErrInvalidMonth, year)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// First returns the key of the first day.
func (m Month) First() DateKey {
	return NewDateKey(m.Year, m.Month, 1)
}

// Last returns the key of the last day.
func (m Month) Last() DateKey {
	return NewDateKey(m.Year, m.Month, m.Days())
}

// Day returns the key of the given day of the month.
func (m Month) Day(day int) DateKey {
	return NewDateKey(m.Year, m.Month, day)
}

// Contains reports whether k falls inside the month, using the same
// inclusive string range the stores use.
func (m Month) Contains(k DateKey) bool {
	return k >= m.First() && k <= m.Last()
}

// Add moves the month by delta months.
func (m Month) Add(delta int) Month {
	t := time.Date(m.Year, m.Month+time.Month(delta), 1, 0, 0, 0, 0, time.UTC)
	return MonthOf(t)
}

func (m Month) Prev() Month { return m.Add(-1) }
func (m Month) Next() Month { return m.Add(1) }

// String returns "YYYY-MM".
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Label returns a human readable name such as "February 2024".
func (m Month) Label() string {
	return fmt.Sprintf("%s %d", m.Month.String(), m.Year)
}

// GridCell is one slot of a Sunday-first month grid. Blank cells pad the
// first week and carry Day 0.
type GridCell struct {
	Day int
	Key DateKey
}

// Blank reports whether the cell is padding before the first day.
func (c GridCell) Blank() bool { return c.Day == 0 }

// Grid lays the month out Sunday-first with leading blanks.
func (m Month) Grid() []GridCell {
	lead := int(time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Weekday())
	days := m.Days()
	cells := make([]GridCell, 0, lead+days)
	for i := 0; i < lead; i++ {
		cells = append(cells, GridCell{})
	}
	for d := 1; d <= days; d++ {
		cells = append(cells, GridCell{Day: d, Key: m.Day(d)})
	}
	return cells
}
