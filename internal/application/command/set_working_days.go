// Package command contains the operations that change attendance data in the
// backend or record the hub's own output.
package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gjc-vemulawada/attendance-hub/internal/application/validation"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET WORKING DAYS
// ══════════════════════════════════════════════════════════════════════════════

// SetWorkingDaysCommand sets the college-wide working days of one month.
// WorkingDays is a pointer so that an explicit 0 is distinguishable from a
// missing field.
type SetWorkingDaysCommand struct {
	Month        string `json:"month" validate:"required,month"`
	AcademicYear string `json:"academic_year" validate:"required,academic_year"`
	WorkingDays  *int   `json:"working_days" validate:"required,min=0,max=31"`
}

// Validate checks the command without contacting the backend.
func (c SetWorkingDaysCommand) Validate() error {
	return validation.Struct("attendance", "SetWorkingDays", c)
}

// SetWorkingDaysResult echoes the stored value.
type SetWorkingDaysResult struct {
	Month        attendance.Month        `json:"month"`
	AcademicYear attendance.AcademicYear `json:"academic_year"`
	WorkingDays  int                     `json:"working_days"`
}

// SetWorkingDaysHandler handles SetWorkingDaysCommand.
type SetWorkingDaysHandler struct {
	writer attendance.Writer
	logger *slog.Logger
}

// NewSetWorkingDaysHandler creates the handler.
func NewSetWorkingDaysHandler(writer attendance.Writer, logger *slog.Logger) *SetWorkingDaysHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetWorkingDaysHandler{writer: writer, logger: logger}
}

// Handle validates and forwards the command. The write is not retried.
func (h *SetWorkingDaysHandler) Handle(ctx context.Context, cmd SetWorkingDaysCommand) (*SetWorkingDaysResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	month, _ := attendance.ParseMonth(cmd.Month)
	ay, _ := attendance.ParseAcademicYear(cmd.AcademicYear)

	if err := h.writer.SetWorkingDays(ctx, month, ay, *cmd.WorkingDays); err != nil {
		return nil, fmt.Errorf("set working days for %s %s: %w", month, ay, err)
	}

	h.logger.Info("working days set",
		"month", month,
		"academic_year", ay,
		"working_days", *cmd.WorkingDays,
	)
	return &SetWorkingDaysResult{Month: month, AcademicYear: ay, WorkingDays: *cmd.WorkingDays}, nil
}
