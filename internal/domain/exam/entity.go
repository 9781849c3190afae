// Package exam models the exam results printed on a student's progress report.
package exam

import (
	"strings"
	"time"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
)

// MarksPerSubject is the maximum score of one subject paper. Every subject is
// assumed to be marked out of 100.
const MarksPerSubject = 100

// ══════════════════════════════════════════════════════════════════════════════
// EXAM TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type identifies an exam in the academic calendar.
type Type string

const (
	TypeUT1        Type = "ut1"
	TypeUT2        Type = "ut2"
	TypeUT3        Type = "ut3"
	TypeUT4        Type = "ut4"
	TypeHalfYearly Type = "half-yearly"
	TypeFinal      Type = "final"
)

// AllTypes lists the six performance buckets in report order.
var AllTypes = [6]Type{TypeUT1, TypeUT2, TypeUT3, TypeUT4, TypeHalfYearly, TypeFinal}

var typeLabels = map[Type]string{
	TypeUT1:        "Unit Test 1",
	TypeUT2:        "Unit Test 2",
	TypeUT3:        "Unit Test 3",
	TypeUT4:        "Unit Test 4",
	TypeHalfYearly: "Half Yearly",
	TypeFinal:      "Final Exam",
}

// ParseType normalizes an exam type; unknown values are a validation error.
func ParseType(s string) (Type, error) {
	t := NormalizeType(s)
	if !t.IsValid() {
		return t, shared.ErrInvalidExamType
	}
	return t, nil
}

// NormalizeType lowercases and trims without validating.
func NormalizeType(s string) Type {
	return Type(strings.ToLower(strings.TrimSpace(s)))
}

// IsValid reports whether t is one of the six known types.
func (t Type) IsValid() bool {
	_, ok := typeLabels[t]
	return ok
}

// Label returns the report heading, e.g. "Unit Test 3". Unknown types print as-is.
func (t Type) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM RECORD
// ══════════════════════════════════════════════════════════════════════════════

// SubjectScore is one subject's marks.
type SubjectScore struct {
	Subject string `json:"subject"`
	Score   int    `json:"score"`
}

// Record is one exam sitting as reported by the backend. Percentage is
// computed by the backend and used as-is.
type Record struct {
	ID         string         `json:"id"`
	Type       Type           `json:"exam_type"`
	Subjects   []SubjectScore `json:"subjects"`
	TotalMarks int            `json:"total_marks"`
	Percentage float64        `json:"percentage"`
	CreatedAt  time.Time      `json:"created_at"`
}

// MaxMarks is the number of subjects times MarksPerSubject.
func (r Record) MaxMarks() int {
	return len(r.Subjects) * MarksPerSubject
}

// SubjectNames returns the subject names in their recorded order.
func (r Record) SubjectNames() []string {
	names := make([]string, 0, len(r.Subjects))
	for _, s := range r.Subjects {
		names = append(names, s.Subject)
	}
	return names
}

// StudentExams is the backend's exam listing for one student.
type StudentExams struct {
	StudentID       string        `json:"student_id"`
	StudentName     string        `json:"student_name"`
	AdmissionNumber string        `json:"admission_number"`
	Group           student.Group `json:"group"`
	Exams           []Record      `json:"exams"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECTS BY GROUP
// ══════════════════════════════════════════════════════════════════════════════

var (
	subjectsMPC        = []string{"english", "telugu_hindi", "math_a", "math_b", "physics", "chemistry"}
	subjectsBIPC       = []string{"english", "telugu_hindi", "botany", "zoology", "physics", "chemistry"}
	subjectsCEC        = []string{"english", "telugu_hindi", "political_science", "economics", "commerce"}
	subjectsHEC        = []string{"english", "telugu_hindi", "history", "economics", "commerce"}
	subjectsVocational = []string{"english", "gfc", "voc1", "voc2", "voc3"}
)

// SubjectsForGroup returns the syllabus of a group, or nil for unknown groups.
func SubjectsForGroup(g student.Group) []string {
	var subjects []string
	switch {
	case g == student.GroupMPC:
		subjects = subjectsMPC
	case g == student.GroupBIPC:
		subjects = subjectsBIPC
	case g == student.GroupCEC:
		subjects = subjectsCEC
	case g == student.GroupHEC:
		subjects = subjectsHEC
	case g.IsVocational():
		subjects = subjectsVocational
	default:
		return nil
	}
	return append([]string(nil), subjects...)
}

// OrderBySyllabus sorts scores into the group's syllabus order. Subjects that
// are not on the syllabus keep their relative order after the known ones.
func OrderBySyllabus(scores []SubjectScore, g student.Group) []SubjectScore {
	syllabus := SubjectsForGroup(g)
	if len(syllabus) == 0 {
		return scores
	}
	pos := make(map[string]int, len(syllabus))
	for i, s := range syllabus {
		pos[s] = i
	}

	ordered := make([]SubjectScore, 0, len(scores))
	for _, name := range syllabus {
		for _, s := range scores {
			if s.Subject == name {
				ordered = append(ordered, s)
			}
		}
	}
	for _, s := range scores {
		if _, known := pos[s.Subject]; !known {
			ordered = append(ordered, s)
		}
	}
	return ordered
}
