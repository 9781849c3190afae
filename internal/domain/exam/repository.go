package exam

import "context"

// Source reads exam results from the backend.
type Source interface {
	// GetStudentExams returns the student's exams, newest first.
	GetStudentExams(ctx context.Context, studentID string) (*StudentExams, error)
}
