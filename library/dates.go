package library

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without a clock or zone. It is stored as
// "YYYY-MM-DD" text so that SQL comparisons order correctly.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its parts. Out-of-range parts normalise the way
// time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate accepts "YYYY-MM-DD" and the common "YYYY/MM/DD" spelling.
func ParseDate(s string) (Date, error) {
	for _, layout := range []string{dateLayout, "2006/01/02", "2006-1-2", "2006/1/2"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// Format formats the day with a time layout.
func (d Date) Format(layout string) string { return d.t.Format(layout) }

func (d Date) AddDays(n int) Date         { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date       { return Date{t: d.t.AddDate(0, n, 0)} }
func (d Date) Before(o Date) bool         { return d.t.Before(o.t) }
func (d Date) After(o Date) bool          { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool          { return d.t.Equal(o.t) }
func (d Date) FirstOfMonth() Date         { return NewDate(d.Year(), d.Month(), 1) }
func (d Date) FirstOfYear() Date          { return NewDate(d.Year(), time.January, 1) }
func (d Date) LastOfMonth() Date          { return d.FirstOfMonth().AddMonths(1).AddDays(-1) }
func (d Date) DaysSince(earlier Date) int { return int(d.t.Sub(earlier.t).Hours() / 24) }
func (d Date) SameMonth(o Date) bool      { return d.Year() == o.Year() && d.Month() == o.Month() }
func (d Date) Ptr() *Date                 { return &d }

func (d Date) orDefault(def Date) Date {
	if d.IsZero() {
		return def
	}
	return d
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanText(s string) error {
	if s == "" {
		*d = Date{}
		return nil
	}
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" || string(b) == `""` {
		*d = Date{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid date %s", b)
	}
	return d.scanText(string(b[1 : len(b)-1]))
}

// Clock reports the current time. Tests substitute a fixed clock.
type Clock func() time.Time

func (c Clock) Today() Date {
	if c == nil {
		return DateOf(time.Now())
	}
	return DateOf(c())
}

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
