package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
)

func TestRecord_MaxMarks(t *testing.T) {
	r := Record{Subjects: []SubjectScore{{"english", 71}, {"physics", 64}, {"chemistry", 88}}}
	assert.Equal(t, 300, r.MaxMarks())
	assert.Equal(t, []string{"english", "physics", "chemistry"}, r.SubjectNames())

	assert.Equal(t, 0, Record{}.MaxMarks())
}

func TestParseType(t *testing.T) {
	tp, err := ParseType(" Half-Yearly ")
	assert.NoError(t, err)
	assert.Equal(t, TypeHalfYearly, tp)

	_, err = ParseType("midterm")
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "midterm", Type("midterm").Label())
}

func TestSubjectsForGroup(t *testing.T) {
	assert.Equal(t, []string{"english", "telugu_hindi", "math_a", "math_b", "physics", "chemistry"}, SubjectsForGroup(student.GroupMPC))
	assert.Equal(t, SubjectsForGroup(student.GroupOAS), SubjectsForGroup(student.GroupMPHW))
	assert.Nil(t, SubjectsForGroup(student.GroupOther))

	// Callers may not mutate the shared syllabus.
	s := SubjectsForGroup(student.GroupCEC)
	s[0] = "changed"
	assert.Equal(t, "english", SubjectsForGroup(student.GroupCEC)[0])
}

func TestOrderBySyllabus(t *testing.T) {
	scores := []SubjectScore{{"physics", 50}, {"extra", 10}, {"english", 70}, {"math_a", 80}}

	ordered := OrderBySyllabus(scores, student.GroupMPC)

	names := Record{Subjects: ordered}.SubjectNames()
	assert.Equal(t, []string{"english", "math_a", "physics", "extra"}, names)
	assert.Equal(t, scores, OrderBySyllabus(scores, student.GroupOther))
}
