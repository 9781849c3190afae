package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gjc-vemulawada/attendance-hub/internal/application/validation"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE STUDENT ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStudentAttendanceCommand records the days a student was present.
type UpdateStudentAttendanceCommand struct {
	StudentID    string `json:"student_id" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required,academic_year"`
	Month        string `json:"month" validate:"required,month"`
	DaysPresent  *int   `json:"days_present" validate:"required,min=0,max=31"`
}

// Validate checks the command without contacting the backend.
func (c UpdateStudentAttendanceCommand) Validate() error {
	return validation.Struct("attendance", "UpdateStudentAttendance", c)
}

// UpdateStudentAttendanceHandler handles UpdateStudentAttendanceCommand.
type UpdateStudentAttendanceHandler struct {
	writer attendance.Writer
	logger *slog.Logger
}

// NewUpdateStudentAttendanceHandler creates the handler.
func NewUpdateStudentAttendanceHandler(writer attendance.Writer, logger *slog.Logger) *UpdateStudentAttendanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateStudentAttendanceHandler{writer: writer, logger: logger}
}

// Handle checks days present against the month's working days, then writes
// the value. A month without working days cannot take attendance.
func (h *UpdateStudentAttendanceHandler) Handle(ctx context.Context, cmd UpdateStudentAttendanceCommand) (attendance.AttendanceRecord, error) {
	if err := cmd.Validate(); err != nil {
		return attendance.AttendanceRecord{}, err
	}
	month, _ := attendance.ParseMonth(cmd.Month)
	ay, _ := attendance.ParseAcademicYear(cmd.AcademicYear)

	workingDays, err := h.writer.GetWorkingDays(ctx, ay, month)
	if err != nil && !shared.IsNotFound(err) {
		return attendance.AttendanceRecord{}, fmt.Errorf("read working days for %s %s: %w", month, ay, err)
	}
	if workingDays == 0 {
		return attendance.AttendanceRecord{}, shared.NewValidationError("attendance", "UpdateStudentAttendance",
			fmt.Sprintf("working days are not set for %s %s", month.Label(), ay))
	}
	if _, err := attendance.NewAttendanceRecord(month, workingDays, *cmd.DaysPresent); err != nil {
		return attendance.AttendanceRecord{}, err
	}

	rec, err := h.writer.UpdateStudentAttendance(ctx, cmd.StudentID, ay, month, *cmd.DaysPresent)
	if err != nil {
		return attendance.AttendanceRecord{}, fmt.Errorf("update attendance of %s for %s %s: %w", cmd.StudentID, month, ay, err)
	}

	h.logger.Info("student attendance updated",
		"student_id", cmd.StudentID,
		"month", month,
		"academic_year", ay,
		"days_present", rec.DaysPresent,
	)
	return rec, nil
}
