package student

import "context"

// Filter narrows a student listing. Zero values mean "any".
type Filter struct {
	Year   int
	Group  Group
	Medium Medium
}

// Directory looks students up in the backend.
type Directory interface {
	// GetStudent returns one student.
	// Returns shared.ErrStudentNotFound if the backend does not know the ID.
	GetStudent(ctx context.Context, id string) (*Student, error)

	// ListStudents returns the students matching the filter in backend order.
	ListStudents(ctx context.Context, filter Filter) ([]*Student, error)
}
