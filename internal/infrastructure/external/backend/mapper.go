package backend

import (
	"strings"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/exam"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to Domain Entity transformations
// ══════════════════════════════════════════════════════════════════════════════

// Mapper turns backend DTOs into domain values. Backend percentages are never
// trusted: records are rebuilt from the raw counts.
type Mapper struct{}

// NewMapper creates a new Mapper instance.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ErrNilDTO is returned when trying to map a nil DTO.
var ErrNilDTO = &MappingError{Message: "cannot map nil DTO"}

// MappingError is a backend payload that does not fit the domain.
type MappingError struct {
	Field   string
	Message string
	Cause   error
}

func (e *MappingError) Error() string {
	if e.Field != "" {
		return "mapping error for field " + e.Field + ": " + e.Message
	}
	return "mapping error: " + e.Message
}

func (e *MappingError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return shared.ErrBackendInvalidResponse
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// RecordFromDTO builds the record for the month that was asked for.
func (m *Mapper) RecordFromDTO(month attendance.Month, dto *MonthlyAttendanceDTO) (attendance.AttendanceRecord, error) {
	if dto == nil {
		return attendance.AttendanceRecord{}, ErrNilDTO
	}
	return attendance.RecordFromCounts(month, int(dto.WorkingDays), int(dto.DaysPresent)), nil
}

// ClassAttendanceFromDTO keeps the backend's student order.
func (m *Mapper) ClassAttendanceFromDTO(month attendance.Month, ay attendance.AcademicYear, dto *ClassAttendanceDTO) (*attendance.ClassAttendance, error) {
	if dto == nil {
		return nil, ErrNilDTO
	}

	out := &attendance.ClassAttendance{
		Year:         int(dto.Year),
		Group:        student.Group(strings.ToLower(dto.Group)),
		Month:        month,
		AcademicYear: ay,
		WorkingDays:  int(dto.WorkingDays),
		Students:     make([]attendance.ClassStudentAttendance, 0, len(dto.Students)),
	}
	for _, s := range dto.Students {
		if s.StudentID == "" {
			return nil, &MappingError{Field: "students.student_id", Message: "missing"}
		}
		out.Students = append(out.Students, attendance.ClassStudentAttendance{
			StudentID:       s.StudentID,
			StudentName:     s.StudentName,
			AdmissionNumber: s.AdmissionNumber,
			Record:          attendance.RecordFromCounts(month, int(s.WorkingDays), int(s.DaysPresent)),
		})
	}
	return out, nil
}

// LowAttendanceFromDTO maps the listing in backend order.
func (m *Mapper) LowAttendanceFromDTO(month attendance.Month, dto *LowAttendanceDTO) []attendance.LowAttendanceStudent {
	if dto == nil {
		return []attendance.LowAttendanceStudent{}
	}
	out := make([]attendance.LowAttendanceStudent, 0, len(dto.Students))
	for _, s := range dto.Students {
		out = append(out, attendance.LowAttendanceStudent{
			StudentID:       s.StudentID,
			StudentName:     s.StudentName,
			AdmissionNumber: s.AdmissionNumber,
			Year:            int(s.Year),
			Group:           student.Group(strings.ToLower(s.Group)),
			Record:          attendance.RecordFromCounts(month, int(s.WorkingDays), int(s.DaysPresent)),
		})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// StudentExamsFromDTO maps an exam listing. Unknown exam types are kept so
// the exam table can still print them; they fall out of the performance
// buckets.
func (m *Mapper) StudentExamsFromDTO(dto *StudentExamsDTO) (*exam.StudentExams, error) {
	if dto == nil {
		return nil, ErrNilDTO
	}

	out := &exam.StudentExams{
		StudentID:       dto.StudentID,
		StudentName:     dto.StudentName,
		AdmissionNumber: dto.AdmissionNumber,
		Group:           student.Group(strings.ToLower(dto.Group)),
		Exams:           make([]exam.Record, 0, len(dto.Exams)),
	}
	for _, e := range dto.Exams {
		out.Exams = append(out.Exams, exam.Record{
			ID:         e.ID,
			Type:       exam.NormalizeType(e.ExamType),
			Subjects:   []exam.SubjectScore(e.Subjects),
			TotalMarks: int(e.TotalMarks),
			Percentage: e.Percentage,
			CreatedAt:  e.CreatedAt.Time,
		})
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// StudentFromDTO converts a StudentDTO to a domain Student.
func (m *Mapper) StudentFromDTO(dto *StudentDTO) (*student.Student, error) {
	if dto == nil {
		return nil, ErrNilDTO
	}
	if dto.ID == "" {
		return nil, &MappingError{Field: "id", Message: "missing"}
	}

	group, _ := student.ParseGroup(dto.Group)
	return &student.Student{
		ID:              dto.ID,
		AdmissionNumber: dto.AdmissionNumber,
		Name:            strings.TrimSpace(dto.Name),
		Year:            int(dto.Year),
		Group:           group,
		Medium:          student.Medium(strings.ToLower(strings.TrimSpace(dto.Medium))),
		FatherName:      dto.FatherName,
		DateOfBirth:     dto.DateOfBirth.Time,
		Caste:           dto.Caste,
		Gender:          dto.Gender,
		AadharNumber:    dto.AadharNumber,
		StudentPhone:    dto.StudentPhone,
		ParentPhone:     dto.ParentPhone,
	}, nil
}

// StudentsFromDTOs maps a listing, skipping entries without an ID.
func (m *Mapper) StudentsFromDTOs(dtos []StudentDTO) ([]*student.Student, []error) {
	out := make([]*student.Student, 0, len(dtos))
	var errs []error
	for i := range dtos {
		s, err := m.StudentFromDTO(&dtos[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, s)
	}
	return out, errs
}
