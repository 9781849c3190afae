// Package query contains the read operations: attendance listings straight
// from the backend, views over the current roster snapshot and report
// assembly.
package query

import (
	"context"
	"fmt"

	"github.com/gjc-vemulawada/attendance-hub/internal/application/validation"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOW ATTENDANCE (single month, backend)
// ══════════════════════════════════════════════════════════════════════════════

// LowAttendanceQuery lists students below Threshold percent for one month.
// Year and Group are optional filters combined with AND.
type LowAttendanceQuery struct {
	AcademicYear string  `json:"academic_year" validate:"required,academic_year"`
	Month        string  `json:"month" validate:"required,month"`
	Threshold    float64 `json:"threshold" validate:"min=1,max=100"`
	Year         int     `json:"year" validate:"omitempty,oneof=1 2"`
	Group        string  `json:"group" validate:"omitempty,group"`
}

// LowAttendanceResult echoes the query and keeps the backend's order.
type LowAttendanceResult struct {
	AcademicYear attendance.AcademicYear           `json:"academic_year"`
	Month        attendance.Month                  `json:"month"`
	Threshold    float64                           `json:"threshold"`
	Year         int                               `json:"year,omitempty"`
	Group        student.Group                     `json:"group,omitempty"`
	Students     []attendance.LowAttendanceStudent `json:"students"`
}

// LowAttendanceHandler handles LowAttendanceQuery.
type LowAttendanceHandler struct {
	source attendance.Source
}

// NewLowAttendanceHandler creates the handler.
func NewLowAttendanceHandler(source attendance.Source) *LowAttendanceHandler {
	return &LowAttendanceHandler{source: source}
}

// Handle validates the query before any request is made.
func (h *LowAttendanceHandler) Handle(ctx context.Context, q LowAttendanceQuery) (*LowAttendanceResult, error) {
	if err := validation.Struct("attendance", "LowAttendance", q); err != nil {
		return nil, err
	}
	month, _ := attendance.ParseMonth(q.Month)
	ay, _ := attendance.ParseAcademicYear(q.AcademicYear)
	group, _ := student.ParseGroup(q.Group)

	dq := attendance.LowAttendanceQuery{
		AcademicYear: ay,
		Month:        month,
		Threshold:    q.Threshold,
		Year:         q.Year,
		Group:        group,
	}
	students, err := h.source.GetLowAttendance(ctx, dq)
	if err != nil {
		return nil, fmt.Errorf("low attendance for %s %s: %w", month, ay, err)
	}
	if students == nil {
		students = []attendance.LowAttendanceStudent{}
	}
	return &LowAttendanceResult{
		AcademicYear: ay,
		Month:        month,
		Threshold:    q.Threshold,
		Year:         q.Year,
		Group:        group,
		Students:     students,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOW ANNUAL ATTENDANCE (roster snapshot)
// ══════════════════════════════════════════════════════════════════════════════

// LowAnnualRow is one student under the threshold in a snapshot.
type LowAnnualRow struct {
	StudentID         string  `json:"student_id"`
	AdmissionNumber   string  `json:"admission_number"`
	Name              string  `json:"name"`
	TotalWorkingDays  int     `json:"total_working_days"`
	TotalDaysPresent  int     `json:"total_days_present"`
	OverallPercentage float64 `json:"overall_percentage"`
	Status            string  `json:"status"`
}

// LowAnnualResult is the roster-mode low attendance view.
type LowAnnualResult struct {
	Generation   uint64               `json:"generation"`
	State        attendance.LoadState `json:"state"`
	AcademicYear string               `json:"academic_year"`
	Threshold    float64              `json:"threshold"`
	Students     []LowAnnualRow       `json:"students"`
}

// LowAnnualAttendance filters a snapshot by overall percentage, preserving
// snapshot order. Partial snapshots are filtered as they are.
func LowAnnualAttendance(snap attendance.RosterSnapshot, threshold float64) (*LowAnnualResult, error) {
	if err := attendance.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	entries := attendance.LowAnnualAttendance(snap.Entries, threshold)
	rows := make([]LowAnnualRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, LowAnnualRow{
			StudentID:         e.Student.ID,
			AdmissionNumber:   e.Student.AdmissionNumber,
			Name:              e.Student.Name,
			TotalWorkingDays:  e.Summary.TotalWorkingDays,
			TotalDaysPresent:  e.Summary.TotalDaysPresent,
			OverallPercentage: e.Summary.RoundedPercentage(),
			Status:            e.Summary.Status(),
		})
	}
	return &LowAnnualResult{
		Generation:   snap.Generation,
		State:        snap.State,
		AcademicYear: snap.AcademicYear.String(),
		Threshold:    threshold,
		Students:     rows,
	}, nil
}
