package attendance

import "context"

// Source is the backend attendance contract the pipeline consumes.
type Source interface {
	// GetAttendance returns one student's month.
	// Returns shared.ErrNotFound when the backend does not know the student.
	GetAttendance(ctx context.Context, studentID string, ay AcademicYear, month Month) (AttendanceRecord, error)

	// GetClassAttendance lists a class's month in backend order.
	GetClassAttendance(ctx context.Context, year int, group string, ay AcademicYear, month Month) (*ClassAttendance, error)

	// GetLowAttendance returns students below the query threshold in backend order.
	GetLowAttendance(ctx context.Context, q LowAttendanceQuery) ([]LowAttendanceStudent, error)
}

// Writer is the part of the backend contract that changes attendance.
type Writer interface {
	// SetWorkingDays sets a month's working days for the whole college.
	SetWorkingDays(ctx context.Context, month Month, ay AcademicYear, workingDays int) error

	// GetWorkingDays reads the month's working days, 0 when unset.
	GetWorkingDays(ctx context.Context, ay AcademicYear, month Month) (int, error)

	// UpdateStudentAttendance records days present for one student.
	UpdateStudentAttendance(ctx context.Context, studentID string, ay AcademicYear, month Month, daysPresent int) (AttendanceRecord, error)
}
