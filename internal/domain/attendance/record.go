package attendance

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
)

// MaxWorkingDays is the upper bound for working days in a month.
const MaxWorkingDays = 31

var hundred = decimal.NewFromInt(100)

// AttendanceRecord is one (student, academic year, month) observation.
// The percentage is derived on read and never stored.
type AttendanceRecord struct {
	Month       Month `json:"month"`
	WorkingDays int   `json:"working_days"`
	DaysPresent int   `json:"days_present"`
}

// NewAttendanceRecord validates the counts and builds a record.
func NewAttendanceRecord(month Month, workingDays, daysPresent int) (AttendanceRecord, error) {
	if !month.IsValid() {
		return AttendanceRecord{}, shared.ErrInvalidMonth
	}
	if err := ValidateWorkingDays(workingDays); err != nil {
		return AttendanceRecord{}, err
	}
	if daysPresent < 0 || daysPresent > workingDays {
		return AttendanceRecord{}, shared.WrapError("attendance", "NewAttendanceRecord", shared.ErrValueOutOfRange,
			fmt.Sprintf("days present (%d) must be between 0 and working days (%d)", daysPresent, workingDays),
			shared.ErrDaysPresentRange)
	}
	return AttendanceRecord{Month: month, WorkingDays: workingDays, DaysPresent: daysPresent}, nil
}

// MustRecord is NewAttendanceRecord for literals known to be valid.
func MustRecord(month Month, workingDays, daysPresent int) AttendanceRecord {
	r, err := NewAttendanceRecord(month, workingDays, daysPresent)
	if err != nil {
		panic(err)
	}
	return r
}

// RecordFromCounts builds a record from backend-reported counts, clamping them
// into range. The backend may lower working days below days already marked
// present; the record then reports full attendance instead of exceeding 100%.
func RecordFromCounts(month Month, workingDays, daysPresent int) AttendanceRecord {
	workingDays = clamp(workingDays, 0, MaxWorkingDays)
	daysPresent = clamp(daysPresent, 0, workingDays)
	return AttendanceRecord{Month: month, WorkingDays: workingDays, DaysPresent: daysPresent}
}

// ZeroRecord substitutes a month that could not be fetched.
func ZeroRecord(month Month) AttendanceRecord {
	return AttendanceRecord{Month: month}
}

// IsRecorded reports whether working days were set for the month.
func (r AttendanceRecord) IsRecorded() bool {
	return r.WorkingDays > 0
}

// Percentage returns present/working*100 rounded to one decimal, or 0 when no
// working days are recorded.
func (r AttendanceRecord) Percentage() float64 {
	return Percent(r.DaysPresent, r.WorkingDays)
}

// Status returns the label for the record's percentage.
func (r AttendanceRecord) Status() string {
	return StatusLabel(r.Percentage())
}

// Percent computes part/whole*100 rounded half away from zero to one decimal.
func Percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(whole))).
		Round(1).
		InexactFloat64()
}

// Round1 rounds a percentage to one decimal for display.
func Round1(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

// ValidateWorkingDays checks the 0-31 range.
func ValidateWorkingDays(workingDays int) error {
	if workingDays < 0 || workingDays > MaxWorkingDays {
		return shared.WrapError("attendance", "ValidateWorkingDays", shared.ErrValueOutOfRange,
			fmt.Sprintf("working days must be between 0 and %d, got %d", MaxWorkingDays, workingDays),
			shared.ErrWorkingDaysRange)
	}
	return nil
}

// ValidateThreshold checks the 1-100 range for low-attendance queries.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 1 || threshold > 100 {
		return shared.WrapError("attendance", "ValidateThreshold", shared.ErrValueOutOfRange,
			fmt.Sprintf("threshold must be between 1 and 100, got %g", threshold),
			shared.ErrThresholdRange)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
