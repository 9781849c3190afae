package archive

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows an export listing. Zero values mean "any".
type ListFilter struct {
	Kind         Kind
	AcademicYear string
	StudentID    string
	Limit        int
}

// ExportRepository stores generated files.
type ExportRepository interface {
	// Save stores the export with its content.
	Save(ctx context.Context, e *Export) error

	// Get returns the export with its content.
	// Returns shared.ErrExportNotFound if the ID is unknown.
	Get(ctx context.Context, id uuid.UUID) (*Export, error)

	// List returns exports without content, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Export, error)
}

// LoadRunRepository stores roster load runs.
type LoadRunRepository interface {
	Start(ctx context.Context, run *LoadRun) error
	Finish(ctx context.Context, run *LoadRun) error
	Recent(ctx context.Context, limit int) ([]*LoadRun, error)
}
