package redmine

import (
	"fmt"
	"time"

	"github.com/zeebo/errs"
)

// DateLayout is the timestamp format used by the Redmine REST API.
const DateLayout = "2006-01-02T15:04:05Z"

// DueDateLayout is the format of an issue's due_date.
const DueDateLayout = "2006-01-02"

// Now is the package clock.
var Now = time.Now

// SLA tier names carried by the project "SLA" custom field.
const (
	Tier24x7 = "24x7"
	Tier5x8  = "5x8"
)

// SLAWindow returns how long an issue may stay New under the given tier.
func SLAWindow(tier string) time.Duration {
	switch tier {
	case Tier24x7:
		return 2 * time.Hour
	case Tier5x8:
		return 8 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// SLADescription is the human label of a tier shown in report heads.
func SLADescription(tier string) string {
	switch tier {
	case Tier24x7:
		return "Problems with New status more than 2 hours"
	case Tier5x8:
		return "Problems with New status more than 1 day"
	default:
		return "Problems with New status more than 7 days"
	}
}

// currentOffset is the local UTC offset right now. Conversions use it for
// every timestamp, whatever daylight-saving rule applied at that date.
func currentOffset() time.Duration {
	_, offset := Now().Zone()
	return time.Duration(offset) * time.Second
}

// UTCToLocal shifts a UTC wall-clock time to local wall-clock time.
func UTCToLocal(t time.Time) time.Time {
	return t.Add(currentOffset())
}

// LocalToUTC shifts a local wall-clock time to UTC wall-clock time.
func LocalToUTC(t time.Time) time.Time {
	return t.Add(-currentOffset())
}

// ParseDate parses a tracker timestamp. The result is a wall-clock value
// in the UTC location; toLocal shifts it to local wall-clock time.
func ParseDate(s string, toLocal bool) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errs.Wrap(err)
	}
	if toLocal {
		t = UTCToLocal(t)
	}
	return t, nil
}

// FormatDate is the inverse of ParseDate.
func FormatDate(t time.Time, toUTC bool) string {
	if toUTC {
		t = LocalToUTC(t)
	}
	return t.Format(DateLayout)
}

// nowLocal is the current local wall-clock time expressed in the UTC
// location, comparable with the values returned by ParseDate.
func nowLocal() time.Time {
	now := Now()
	return UTCToLocal(now.UTC())
}

// Elapsed is the time passed since the tracker timestamp s.
func Elapsed(s string) (time.Duration, error) {
	t, err := ParseDate(s, true)
	if err != nil {
		return 0, err
	}
	return nowLocal().Sub(t), nil
}

// ElapsedMinutes is Elapsed in whole minutes.
func ElapsedMinutes(s string) (int, error) {
	d, err := Elapsed(s)
	if err != nil {
		return 0, err
	}
	return int(d / time.Minute), nil
}

// ElapsedString is Elapsed rendered by FormatDelta.
func ElapsedString(s string) (string, error) {
	d, err := Elapsed(s)
	if err != nil {
		return "", err
	}
	return FormatDelta(d), nil
}

// FormatDelta renders d as "H:MM:SS", prefixed by "N day(s), " past one
// day. Sub-second precision is dropped.
func FormatDelta(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Truncate(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second

	clock := fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	switch {
	case days == 1:
		return fmt.Sprintf("%s1 day, %s", sign, clock)
	case days > 1:
		return fmt.Sprintf("%s%d days, %s", sign, days, clock)
	}
	return sign + clock
}

// SLACutoff returns the created_on filter selecting issues older than the
// tier's window, e.g. "<=2024-01-01T10:00:00Z".
func SLACutoff(tier string) string {
	return "<=" + FormatDate(Now().UTC().Add(-SLAWindow(tier)), false)
}

// DueDateFrom returns the due date offset days after the creation
// timestamp, as YYYY-MM-DD. The UTC calendar date is used.
func DueDateFrom(createdOn string, days int) (string, error) {
	t, err := ParseDate(createdOn, false)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, days).Format(DueDateLayout), nil
}
