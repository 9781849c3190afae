package query

import (
	"context"
	"fmt"

	"github.com/gjc-vemulawada/attendance-hub/internal/application/validation"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
)

// ClassReportQuery selects one class month.
type ClassReportQuery struct {
	Year         int    `json:"year" validate:"required,oneof=1 2"`
	Group        string `json:"group" validate:"required,group"`
	AcademicYear string `json:"academic_year" validate:"required,academic_year"`
	Month        string `json:"month" validate:"required,month"`
}

// ClassReportHandler builds class reports from the backend's class listing.
type ClassReportHandler struct {
	source attendance.Source
}

// NewClassReportHandler creates the handler.
func NewClassReportHandler(source attendance.Source) *ClassReportHandler {
	return &ClassReportHandler{source: source}
}

// Handle fetches the class month and rolls it up.
func (h *ClassReportHandler) Handle(ctx context.Context, q ClassReportQuery) (*attendance.ClassReport, error) {
	if err := validation.Struct("attendance", "ClassReport", q); err != nil {
		return nil, err
	}
	month, _ := attendance.ParseMonth(q.Month)
	ay, _ := attendance.ParseAcademicYear(q.AcademicYear)
	group, _ := student.ParseGroup(q.Group)

	class, err := h.source.GetClassAttendance(ctx, q.Year, string(group), ay, month)
	if err != nil {
		return nil, fmt.Errorf("class attendance %d/%s %s %s: %w", q.Year, q.Group, month, ay, err)
	}
	report := attendance.BuildClassReport(*class)
	return &report, nil
}
