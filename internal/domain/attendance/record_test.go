package attendance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
)

func TestAttendanceRecord_Percentage(t *testing.T) {
	tests := []struct {
		name        string
		workingDays int
		daysPresent int
		want        float64
	}{
		{name: "no working days", workingDays: 0, daysPresent: 0, want: 0},
		{name: "full attendance", workingDays: 24, daysPresent: 24, want: 100},
		{name: "two thirds rounds up", workingDays: 3, daysPresent: 2, want: 66.7},
		{name: "one third rounds down", workingDays: 3, daysPresent: 1, want: 33.3},
		{name: "half rounds away from zero", workingDays: 16, daysPresent: 1, want: 6.3},
		{name: "absent all month", workingDays: 26, daysPresent: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewAttendanceRecord(May, tt.workingDays, tt.daysPresent)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Percentage())
		})
	}
}

func TestNewAttendanceRecord_Validation(t *testing.T) {
	tests := []struct {
		name        string
		month       Month
		workingDays int
		daysPresent int
	}{
		{name: "working days above 31", month: May, workingDays: 32, daysPresent: 0},
		{name: "negative working days", month: May, workingDays: -1, daysPresent: 0},
		{name: "present exceeds working", month: May, workingDays: 20, daysPresent: 21},
		{name: "negative present", month: May, workingDays: 20, daysPresent: -2},
		{name: "unknown month", month: Month("undecember"), workingDays: 20, daysPresent: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAttendanceRecord(tt.month, tt.workingDays, tt.daysPresent)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestRecordFromCounts_Clamps(t *testing.T) {
	r := RecordFromCounts(October, 18, 20)
	assert.Equal(t, 18, r.DaysPresent)
	assert.Equal(t, 100.0, r.Percentage())

	r = RecordFromCounts(October, 40, -3)
	assert.Equal(t, MaxWorkingDays, r.WorkingDays)
	assert.Equal(t, 0, r.DaysPresent)
}

func TestZeroRecord(t *testing.T) {
	r := ZeroRecord(March)
	assert.Equal(t, March, r.Month)
	assert.Equal(t, 0, r.WorkingDays)
	assert.Equal(t, 0, r.DaysPresent)
	assert.Equal(t, 0.0, r.Percentage())
	assert.False(t, r.IsRecorded())
}

func TestValidateThreshold(t *testing.T) {
	assert.NoError(t, ValidateThreshold(1))
	assert.NoError(t, ValidateThreshold(75))
	assert.NoError(t, ValidateThreshold(100))

	for _, bad := range []float64{0, 0.5, 100.1, -10, math.NaN(), math.Inf(1)} {
		err := ValidateThreshold(bad)
		assert.Error(t, err, "threshold %v", bad)
		assert.True(t, shared.IsValidation(err))
	}
}
