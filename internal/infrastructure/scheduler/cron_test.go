package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjc-vemulawada/attendance-hub/pkg/timeutil"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{"30 18 * * 1-6", false},
		{"*/15 8-17 * * *", false},
		{"0 9-17/2 * * *", false},
		{"0 0 1,15 * *", false},
		{"@daily", false},
		{"0 0 * * 7", true},
		{"0 0 * *", true},
		{"60 * * * *", true},
		{"* 24 * * *", true},
		{"* * 0 * *", true},
		{"*/0 * * * *", true},
		{"5-1 * * * *", true},
		{"a * * * *", true},
		{"1,,2 * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseCron(tt.expr, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCronSchedule_Next(t *testing.T) {
	loc := timeutil.IST
	at := func(y int, m time.Month, d, h, min int) time.Time {
		return time.Date(y, m, d, h, min, 0, 0, loc)
	}

	tests := []struct {
		name string
		expr string
		from time.Time
		want time.Time
	}{
		{"same day", "30 18 * * 1-6", at(2025, 3, 14, 9, 0), at(2025, 3, 14, 18, 30)},
		{"strictly after", "30 18 * * 1-6", at(2025, 3, 14, 18, 30), at(2025, 3, 15, 18, 30)},
		{"skips sunday", "30 18 * * 1-6", at(2025, 3, 15, 19, 0), at(2025, 3, 17, 18, 30)},
		{"sunday", "0 6 * * 0", at(2025, 3, 14, 0, 0), at(2025, 3, 16, 6, 0)},
		{"step minutes", "*/15 * * * *", at(2025, 3, 14, 9, 7), at(2025, 3, 14, 9, 15)},
		{"ranged step", "0 9-17/4 * * *", at(2025, 3, 14, 13, 1), at(2025, 3, 14, 17, 0)},
		{"month rollover", "0 7 1 * *", at(2025, 1, 31, 8, 0), at(2025, 2, 1, 7, 0)},
		{"year rollover", "0 0 1 6 *", at(2025, 7, 1, 0, 0), at(2026, 6, 1, 0, 0)},
		{"leap day", "0 0 29 2 *", at(2025, 3, 1, 0, 0), at(2028, 2, 29, 0, 0)},
		{"dom or dow", "0 12 1 * 1", at(2025, 3, 25, 0, 0), at(2025, 3, 31, 12, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := ParseCron(tt.expr, loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(cs.Next(tt.from)), "got %s", cs.Next(tt.from))
		})
	}
}

func TestCronSchedule_NextImpossible(t *testing.T) {
	cs, err := ParseCron("0 0 31 2 *", timeutil.IST)
	require.NoError(t, err)
	assert.True(t, cs.Next(time.Now()).IsZero())
}

func TestCronSchedule_WithoutLocationUsesCallerZone(t *testing.T) {
	cs, err := ParseCron("0 9 * * *", nil)
	require.NoError(t, err)
	from := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), cs.Next(from).UTC())
	assert.Equal(t, "0 9 * * *", cs.String())
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 90s", nil)
	require.NoError(t, err)
	assert.IsType(t, &IntervalSchedule{}, s)
	from := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(90*time.Second), s.Next(from))

	s, err = ParseSchedule("30 18 * * 1-6", timeutil.IST)
	require.NoError(t, err)
	// 13:00 UTC is 18:30 IST.
	assert.Equal(t,
		time.Date(2025, 3, 14, 13, 0, 0, 0, time.UTC),
		s.Next(time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)).UTC())
	assert.Contains(t, s.String(), "30 18 * * 1-6")

	_, err = ParseSchedule("@every soon", nil)
	assert.Error(t, err)
	_, err = ParseSchedule("@every 10ms", nil)
	assert.Error(t, err)
	_, err = ParseSchedule("bad", nil)
	assert.Error(t, err)
}
