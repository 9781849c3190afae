package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/exam"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR BODY
// ══════════════════════════════════════════════════════════════════════════════

// ErrorDTO is the backend's error body. Detail is a string for handled errors
// and a list of field problems for request validation failures.
type ErrorDTO struct {
	Detail json.RawMessage `json:"detail"`
}

type fieldErrorDTO struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// Message flattens Detail into one line.
func (e ErrorDTO) Message() string {
	if len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	var fields []fieldErrorDTO
	if err := json.Unmarshal(e.Detail, &fields); err == nil {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			if len(f.Loc) > 0 {
				parts = append(parts, fmt.Sprintf("%v: %s", f.Loc[len(f.Loc)-1], f.Msg))
				continue
			}
			parts = append(parts, f.Msg)
		}
		return strings.Join(parts, "; ")
	}
	return string(e.Detail)
}

// ══════════════════════════════════════════════════════════════════════════════
// LENIENT SCALARS
// ══════════════════════════════════════════════════════════════════════════════

// FlexInt accepts a JSON number, a numeric string or an empty string (0).
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flex int %s: %w", b, err)
	}
	*f = FlexInt(int(v))
	return nil
}

// FlexTime accepts RFC 3339, naive ISO timestamps and plain dates.
type FlexTime struct {
	time.Time
}

var flexTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (f *FlexTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		f.Time = time.Time{}
		return nil
	}
	for _, layout := range flexTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// MonthlyAttendanceDTO is returned by the single-student and class endpoints.
// AttendancePercentage is ignored; percentages are always recomputed.
type MonthlyAttendanceDTO struct {
	StudentID            string  `json:"student_id"`
	StudentName          string  `json:"student_name"`
	AdmissionNumber      string  `json:"admission_number"`
	Month                string  `json:"month"`
	AcademicYear         string  `json:"academic_year"`
	WorkingDays          FlexInt `json:"working_days"`
	DaysPresent          FlexInt `json:"days_present"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// ClassAttendanceDTO is the class month listing.
type ClassAttendanceDTO struct {
	Year         FlexInt                `json:"year"`
	Group        string                 `json:"group"`
	Month        string                 `json:"month"`
	AcademicYear string                 `json:"academic_year"`
	WorkingDays  FlexInt                `json:"working_days"`
	Students     []MonthlyAttendanceDTO `json:"students"`
}

// LowAttendanceStudentDTO is one row of the low-attendance listing.
type LowAttendanceStudentDTO struct {
	MonthlyAttendanceDTO
	Year  FlexInt `json:"year"`
	Group string  `json:"group"`
}

// LowAttendanceDTO wraps the low-attendance listing.
type LowAttendanceDTO struct {
	AcademicYear        string                    `json:"academic_year"`
	Month               string                    `json:"month"`
	PercentageThreshold float64                   `json:"percentage_threshold"`
	Students            []LowAttendanceStudentDTO `json:"students"`
}

// WorkingDaysRequestDTO is the body of POST /attendance/working-days.
type WorkingDaysRequestDTO struct {
	Month        string `json:"month"`
	AcademicYear string `json:"academic_year"`
	WorkingDays  int    `json:"working_days"`
}

// WorkingDaysDTO is returned by the working-days endpoints.
type WorkingDaysDTO struct {
	AcademicYear string  `json:"academic_year,omitempty"`
	Month        string  `json:"month,omitempty"`
	Message      string  `json:"message,omitempty"`
	WorkingDays  FlexInt `json:"working_days"`
}

// AttendanceUpdateDTO is the body of PUT /attendance/student/...
type AttendanceUpdateDTO struct {
	DaysPresent int `json:"days_present"`
}

// AttendanceRecordDTO is the stored record returned after an update.
type AttendanceRecordDTO struct {
	ID           string   `json:"id"`
	StudentID    string   `json:"student_id"`
	AcademicYear string   `json:"academic_year"`
	Month        string   `json:"month"`
	WorkingDays  FlexInt  `json:"working_days"`
	DaysPresent  FlexInt  `json:"days_present"`
	LastUpdated  FlexTime `json:"last_updated"`
	UpdatedBy    string   `json:"updated_by"`
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM DTOs
// ══════════════════════════════════════════════════════════════════════════════

// SubjectMarksDTO decodes a {"subject": marks} object keeping the key order
// the backend sent, which is the order subjects are printed in.
type SubjectMarksDTO []exam.SubjectScore

func (s *SubjectMarksDTO) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*s = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("subjects: expected object, got %v", tok)
	}

	out := make(SubjectMarksDTO, 0, 6)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("subjects: expected key, got %v", keyTok)
		}
		var score FlexInt
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("subjects: %s: %w", key, err)
		}
		out = append(out, exam.SubjectScore{Subject: key, Score: int(score)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = out
	return nil
}

// ExamDTO is one exam sitting.
type ExamDTO struct {
	ID              string          `json:"id"`
	StudentID       string          `json:"student_id"`
	StudentName     string          `json:"student_name"`
	AdmissionNumber string          `json:"admission_number"`
	Year            FlexInt         `json:"year"`
	Group           string          `json:"group"`
	ExamType        string          `json:"exam_type"`
	Subjects        SubjectMarksDTO `json:"subjects"`
	TotalMarks      FlexInt         `json:"total_marks"`
	Percentage      float64         `json:"percentage"`
	CreatedAt       FlexTime        `json:"created_at"`
}

// StudentExamsDTO is the response of GET /exams/student/{id}.
type StudentExamsDTO struct {
	StudentID       string    `json:"student_id"`
	StudentName     string    `json:"student_name"`
	AdmissionNumber string    `json:"admission_number"`
	Group           string    `json:"group"`
	Exams           []ExamDTO `json:"exams"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT DTOs
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO is a student as returned by the backend.
type StudentDTO struct {
	ID              string   `json:"id"`
	AdmissionNumber string   `json:"admission_number"`
	Year            FlexInt  `json:"year"`
	Group           string   `json:"group"`
	Medium          string   `json:"medium"`
	Name            string   `json:"name"`
	FatherName      string   `json:"father_name"`
	DateOfBirth     FlexTime `json:"date_of_birth"`
	Caste           string   `json:"caste"`
	Gender          string   `json:"gender"`
	AadharNumber    string   `json:"aadhar_number"`
	StudentPhone    string   `json:"student_phone"`
	ParentPhone     string   `json:"parent_phone"`
}
