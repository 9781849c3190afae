package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusLabel_Boundaries(t *testing.T) {
	tests := []struct {
		percentage float64
		want       string
	}{
		{100, StatusGood},
		{75.0, StatusGood},
		{74.9, StatusAverage},
		{50.0, StatusAverage},
		{49.9, StatusPoor},
		{0, StatusPoor},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusLabel(tt.percentage), "percentage %v", tt.percentage)
	}
}

func TestStatusLabel_SharedByRecordAndSummary(t *testing.T) {
	r := MustRecord(August, 4, 3)
	assert.Equal(t, StatusGood, r.Status())

	s := ComputeAnnualSummary(map[Month]AttendanceRecord{August: MustRecord(August, 20, 9)})
	assert.Equal(t, StatusPoor, s.Status())
}
