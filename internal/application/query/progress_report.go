package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gjc-vemulawada/attendance-hub/internal/application/validation"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/exam"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

// YearFetcher fetches a student's twelve months, substituting failures.
type YearFetcher interface {
	FetchStudentYear(ctx context.Context, studentID string, ay attendance.AcademicYear) (map[attendance.Month]attendance.AttendanceRecord, int)
}

// ProgressRenderer renders the progress report document.
type ProgressRenderer interface {
	ProgressDocument(s *student.Student, records map[attendance.Month]attendance.AttendanceRecord, exams []exam.Record, ay attendance.AcademicYear) ([]byte, error)
}

// ProgressReportQuery selects one student's report.
type ProgressReportQuery struct {
	StudentID    string `json:"student_id" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required,academic_year"`
}

// ProgressReport is a rendered report ready for download.
type ProgressReport struct {
	Student       *student.Student
	AcademicYear  attendance.AcademicYear
	FileName      string
	Content       []byte
	MissingMonths int
	ExamsLoaded   bool
}

// ProgressReportHandler assembles and renders progress reports.
type ProgressReportHandler struct {
	students student.Directory
	months   YearFetcher
	exams    exam.Source
	renderer ProgressRenderer
	logger   *slog.Logger
}

// NewProgressReportHandler creates the handler.
func NewProgressReportHandler(students student.Directory, months YearFetcher, exams exam.Source, renderer ProgressRenderer, log *slog.Logger) *ProgressReportHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ProgressReportHandler{
		students: students,
		months:   months,
		exams:    exams,
		renderer: renderer,
		logger:   log,
	}
}

// Handle fetches the student, twelve months and exams, then renders. Only a
// missing student or a render failure is an error; missing months render as
// zeros and an exam failure renders an empty exam section.
func (h *ProgressReportHandler) Handle(ctx context.Context, q ProgressReportQuery) (*ProgressReport, error) {
	if err := validation.Struct("export", "ProgressReport", q); err != nil {
		return nil, err
	}
	ay, _ := attendance.ParseAcademicYear(q.AcademicYear)

	s, err := h.students.GetStudent(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("progress report for %s: %w", q.StudentID, err)
	}

	records, missing := h.months.FetchStudentYear(ctx, s.ID, ay)

	var exams []exam.Record
	examsLoaded := true
	listing, err := h.exams.GetStudentExams(ctx, s.ID)
	if err != nil {
		examsLoaded = false
		h.logger.Warn("exam records unavailable, rendering without them",
			"student_id", s.ID,
			logger.Err(err),
		)
	} else if listing != nil {
		exams = syllabusOrdered(listing, s.Group)
	}

	content, err := h.renderer.ProgressDocument(s, records, exams, ay)
	if err != nil {
		return nil, err
	}

	return &ProgressReport{
		Student:       s,
		AcademicYear:  ay,
		FileName:      ProgressFileName(s),
		Content:       content,
		MissingMonths: missing,
		ExamsLoaded:   examsLoaded,
	}, nil
}

// syllabusOrdered returns the listing's exams with subjects in the group's
// syllabus order. The student's group wins over the listing's.
func syllabusOrdered(listing *exam.StudentExams, group student.Group) []exam.Record {
	if group == "" {
		group = listing.Group
	}
	exams := make([]exam.Record, len(listing.Exams))
	for i, e := range listing.Exams {
		e.Subjects = exam.OrderBySyllabus(e.Subjects, group)
		exams[i] = e
	}
	return exams
}

// ProgressFileName returns "progress_card_<admission>.pdf", falling back to
// the student ID when the admission number is unknown.
func ProgressFileName(s *student.Student) string {
	key := s.AdmissionNumber
	if key == "" {
		key = s.ID
	}
	key = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':', '"':
			return '_'
		}
		return r
	}, key)
	return "progress_card_" + key + ".pdf"
}
