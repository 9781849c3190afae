package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
)

type sample struct {
	Month        string  `json:"month" validate:"required,month"`
	AcademicYear string  `json:"academic_year" validate:"required,academic_year"`
	Group        string  `json:"group" validate:"omitempty,group"`
	Threshold    float64 `json:"threshold" validate:"min=1,max=100"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		in      sample
		wantErr string
	}{
		{"valid", sample{"March", "2024-2025", "mpc", 75}, ""},
		{"empty group allowed", sample{"march", "2024-2025", "", 1}, ""},
		{"bad month", sample{"smarch", "2024-2025", "", 75}, `month: unknown month "smarch"`},
		{"bad year", sample{"march", "2024-2026", "", 75}, "academic_year must look like 2024-2025"},
		{"bad group", sample{"march", "2024-2025", "xyz", 75}, `group: unknown group "xyz"`},
		{"threshold high", sample{"march", "2024-2025", "", 101}, "threshold must be at most 100"},
		{"threshold low", sample{"march", "2024-2025", "", 0}, "threshold must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct("attendance", "Test", tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, shared.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStruct_ReportsEveryField(t *testing.T) {
	err := Struct("attendance", "Test", sample{})
	assert.Contains(t, err.Error(), "month is required")
	assert.Contains(t, err.Error(), "academic_year is required")
	assert.Contains(t, err.Error(), "threshold must be at least 1")
}

func TestFields(t *testing.T) {
	err := Validator().Struct(sample{Month: "march", AcademicYear: "2024-2025", Threshold: 500})
	assert.Equal(t, map[string]string{"threshold": "max"}, Fields(err))
	assert.Nil(t, Fields(nil))
}
