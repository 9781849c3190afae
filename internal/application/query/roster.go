package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/archive"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/pkg/timeutil"
)

// SnapshotReader exposes the last published roster snapshot.
type SnapshotReader interface {
	Current() attendance.RosterSnapshot
}

// SpreadsheetRenderer renders roster spreadsheets.
type SpreadsheetRenderer interface {
	Spreadsheet(entries []attendance.StudentRosterEntry) ([]byte, error)
}

// RosterSpreadsheet is a rendered snapshot.
type RosterSpreadsheet struct {
	Generation   uint64
	State        attendance.LoadState
	AcademicYear attendance.AcademicYear
	FileName     string
	Content      []byte
}

// RosterSpreadsheetHandler renders whatever the current snapshot holds.
type RosterSpreadsheetHandler struct {
	snapshots SnapshotReader
	renderer  SpreadsheetRenderer
	now       func() time.Time
}

// NewRosterSpreadsheetHandler creates the handler.
func NewRosterSpreadsheetHandler(snapshots SnapshotReader, renderer SpreadsheetRenderer) *RosterSpreadsheetHandler {
	return &RosterSpreadsheetHandler{snapshots: snapshots, renderer: renderer, now: timeutil.Now}
}

// Handle renders the snapshot current at call time; partial snapshots are fine.
func (h *RosterSpreadsheetHandler) Handle(_ context.Context) (*RosterSpreadsheet, error) {
	snap := h.snapshots.Current()
	return RenderRosterSpreadsheet(snap, h.renderer, h.now())
}

// RenderRosterSpreadsheet renders snap and names the file after its academic
// year and the date.
func RenderRosterSpreadsheet(snap attendance.RosterSnapshot, renderer SpreadsheetRenderer, now time.Time) (*RosterSpreadsheet, error) {
	content, err := renderer.Spreadsheet(snap.Entries)
	if err != nil {
		return nil, err
	}
	return &RosterSpreadsheet{
		Generation:   snap.Generation,
		State:        snap.State,
		AcademicYear: snap.AcademicYear,
		FileName:     RosterFileName(snap.AcademicYear, "", now),
		Content:      content,
	}, nil
}

// RosterFileName returns "attendance_<ay>[_<label>]_<date>.xlsx".
func RosterFileName(ay attendance.AcademicYear, label string, now time.Time) string {
	name := "attendance"
	if ay != "" {
		name += "_" + ay.String()
	}
	if label != "" {
		name += "_" + label
	}
	return fmt.Sprintf("%s_%s.xlsx", name, timeutil.FileStamp(now))
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

// ExportsHandler reads the export archive. A nil repository behaves like an
// empty archive.
type ExportsHandler struct {
	repo archive.ExportRepository
}

// NewExportsHandler creates the handler.
func NewExportsHandler(repo archive.ExportRepository) *ExportsHandler {
	return &ExportsHandler{repo: repo}
}

// List returns archived exports without content, newest first.
func (h *ExportsHandler) List(ctx context.Context, filter archive.ListFilter) ([]*archive.Export, error) {
	if h.repo == nil {
		return []*archive.Export{}, nil
	}
	exports, err := h.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	return exports, nil
}

// Get returns one export with its content.
func (h *ExportsHandler) Get(ctx context.Context, id string) (*archive.Export, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, shared.NewValidationError("export", "Get", "export id must be a UUID")
	}
	if h.repo == nil {
		return nil, shared.ErrExportNotFound
	}
	return h.repo.Get(ctx, parsed)
}
