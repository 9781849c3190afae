// Package archive describes what the hub keeps about its own work: the files
// it generated and the roster loads it ran. Neither is needed to answer a
// request; both exist for audit and re-download.
package archive

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the type of a generated file.
type Kind string

const (
	KindSpreadsheet Kind = "spreadsheet"
	KindProgress    Kind = "progress_report"
)

// Content types of the generated files.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

// ContentType returns the MIME type of the kind.
func (k Kind) ContentType() string {
	if k == KindSpreadsheet {
		return ContentTypeXLSX
	}
	return ContentTypePDF
}

// Export is one generated file.
type Export struct {
	ID           uuid.UUID `json:"id"`
	Kind         Kind      `json:"kind"`
	AcademicYear string    `json:"academic_year"`
	StudentID    string    `json:"student_id,omitempty"`
	Generation   uint64    `json:"generation,omitempty"`
	FileName     string    `json:"file_name"`
	SizeBytes    int       `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`

	// Content is empty in listings.
	Content []byte `json:"-"`
}

// NewExport builds an Export with a fresh ID.
func NewExport(kind Kind, academicYear, fileName string, content []byte) *Export {
	return &Export{
		ID:           uuid.New(),
		Kind:         kind,
		AcademicYear: academicYear,
		FileName:     fileName,
		SizeBytes:    len(content),
		Content:      content,
		CreatedAt:    time.Now().UTC(),
	}
}

// ContentType returns the MIME type of the file.
func (e *Export) ContentType() string {
	return e.Kind.ContentType()
}

// Trigger says what started a roster load.
type Trigger string

const (
	TriggerAPI       Trigger = "api"
	TriggerScheduler Trigger = "scheduler"
)

// LoadRun records one roster load.
type LoadRun struct {
	ID           uuid.UUID  `json:"id"`
	Generation   uint64     `json:"generation"`
	AcademicYear string     `json:"academic_year"`
	Trigger      Trigger    `json:"trigger"`
	ClassYear    int        `json:"class_year,omitempty"`
	ClassGroup   string     `json:"class_group,omitempty"`
	Students     int        `json:"students"`
	Failures     int        `json:"failures"`
	State        string     `json:"state"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// NewLoadRun starts a run record.
func NewLoadRun(trigger Trigger, academicYear string, students int) *LoadRun {
	return &LoadRun{
		ID:           uuid.New(),
		AcademicYear: academicYear,
		Trigger:      trigger,
		Students:     students,
		State:        "running",
		StartedAt:    time.Now().UTC(),
	}
}

// Finish closes the run with the final state of its snapshot.
func (r *LoadRun) Finish(generation uint64, state string, failures int, err error) {
	now := time.Now().UTC()
	r.Generation = generation
	r.State = state
	r.Failures = failures
	r.FinishedAt = &now
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration is zero while the run is going.
func (r *LoadRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
