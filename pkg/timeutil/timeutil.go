// Package timeutil provides India Standard Time helpers and the academic
// calendar used by the college: an academic year runs from June to the
// following spring and is labelled "2024-2025".
package timeutil

import (
	"fmt"
	"time"
)

// IST is India Standard Time (UTC+5:30, no DST).
var IST = time.FixedZone("Asia/Kolkata", 5*60*60+30*60)

// AcademicYearStartMonth is the month a new academic year begins.
const AcademicYearStartMonth = time.June

// Now returns the current time in IST.
func Now() time.Time {
	return time.Now().In(IST)
}

// ToIST converts a time to IST.
func ToIST(t time.Time) time.Time {
	return t.In(IST)
}

// Date creates a midnight time in IST.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, IST)
}

// StartOfDay returns 00:00 of t's day in IST.
func StartOfDay(t time.Time) time.Time {
	ist := ToIST(t)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
}

// AcademicYearOf returns the academic year label that contains t.
func AcademicYearOf(t time.Time) string {
	ist := ToIST(t)
	start := ist.Year()
	if ist.Month() < AcademicYearStartMonth {
		start--
	}
	return fmt.Sprintf("%d-%d", start, start+1)
}

// CurrentAcademicYear returns the academic year label for today.
func CurrentAcademicYear() string {
	return AcademicYearOf(Now())
}

// FormatDate renders dd/mm/yyyy, the form printed on college documents.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return ToIST(t).Format("02/01/2006")
}

// FormatDateTime renders dd/mm/yyyy hh:mm in IST.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return ToIST(t).Format("02/01/2006 15:04")
}

// FileStamp renders yyyy-mm-dd for export file names.
func FileStamp(t time.Time) string {
	return ToIST(t).Format("2006-01-02")
}

// ParseDate accepts the date layouts the backend has been seen to emit.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, IST); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timeutil: unrecognized date %q", value)
}
