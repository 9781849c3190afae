package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
)

func TestStudentRosterEntry_PutRecomputesSummary(t *testing.T) {
	e := NewRosterEntry(student.Student{ID: "s1", Name: "Lakshmi"})
	assert.Equal(t, ZeroRecord(April), e.Record(April))

	e.Put(MustRecord(January, 4, 2))
	e.Put(MustRecord(February, 30, 27))
	assert.Equal(t, 85.3, e.Summary.RoundedPercentage())

	// A correction to an earlier month replaces it.
	e.Put(MustRecord(January, 4, 4))
	assert.Equal(t, 34, e.Summary.TotalWorkingDays)
	assert.Equal(t, 31, e.Summary.TotalDaysPresent)
}

func TestStudentRosterEntry_CloneIsDeep(t *testing.T) {
	e := NewRosterEntry(student.Student{ID: "s1"})
	e.Put(MustRecord(March, 20, 10))

	c := e.Clone()
	e.Put(MustRecord(March, 20, 20))

	assert.Equal(t, 10, c.Record(March).DaysPresent)
	assert.Equal(t, 20, e.Record(March).DaysPresent)
}

func TestLowAnnualAttendance_KeepsOrder(t *testing.T) {
	mk := func(id string, working, present int) StudentRosterEntry {
		e := NewRosterEntry(student.Student{ID: id})
		e.Put(RecordFromCounts(January, working, present))
		return e
	}
	entries := []StudentRosterEntry{
		mk("c", 20, 10),
		mk("a", 20, 19),
		mk("b", 20, 2),
		mk("d", 0, 0),
	}

	low := LowAnnualAttendance(entries, 75)

	ids := make([]string, 0, len(low))
	for _, e := range low {
		ids = append(ids, e.Student.ID)
	}
	assert.Equal(t, []string{"c", "b", "d"}, ids)
}

func TestRosterSnapshot_Progress(t *testing.T) {
	s := EmptySnapshot()
	assert.Equal(t, 0.0, s.Progress())

	s = RosterSnapshot{State: StateFullyLoaded}
	assert.Equal(t, 1.0, s.Progress())

	s = RosterSnapshot{
		State:        StatePartiallyLoaded,
		Entries:      []StudentRosterEntry{NewRosterEntry(student.Student{ID: "x"}), NewRosterEntry(student.Student{ID: "y"})},
		LoadedMonths: 6,
	}
	assert.Equal(t, 0.25, s.Progress())
	_, ok := s.Entry("y")
	assert.True(t, ok)
}
