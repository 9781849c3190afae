package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/archive"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

// Archiver records generated files and roster load runs. Both repositories
// are optional; without them the calls are no-ops.
type Archiver struct {
	exports archive.ExportRepository
	runs    archive.LoadRunRepository
	logger  *slog.Logger
}

// NewArchiver creates an archiver. Pass nil repositories to disable archiving.
func NewArchiver(exports archive.ExportRepository, runs archive.LoadRunRepository, log *slog.Logger) *Archiver {
	if log == nil {
		log = slog.Default()
	}
	return &Archiver{exports: exports, runs: runs, logger: log}
}

// Enabled reports whether generated files are stored.
func (a *Archiver) Enabled() bool {
	return a != nil && a.exports != nil
}

// SaveExport stores a generated file.
func (a *Archiver) SaveExport(ctx context.Context, e *archive.Export) error {
	if !a.Enabled() {
		return nil
	}
	if err := a.exports.Save(ctx, e); err != nil {
		a.logger.Error("failed to archive export",
			"kind", e.Kind,
			"file_name", e.FileName,
			logger.Err(err),
		)
		return fmt.Errorf("archive %s: %w", e.FileName, err)
	}
	a.logger.Debug("export archived", "id", e.ID, "kind", e.Kind, "size_bytes", e.SizeBytes)
	return nil
}

// StartRun records the start of a roster load.
func (a *Archiver) StartRun(ctx context.Context, run *archive.LoadRun) {
	if a == nil || a.runs == nil {
		return
	}
	if err := a.runs.Start(ctx, run); err != nil {
		a.logger.Warn("failed to record load run start", "run_id", run.ID, logger.Err(err))
	}
}

// FinishRun closes a load run with the outcome of its last snapshot.
func (a *Archiver) FinishRun(ctx context.Context, run *archive.LoadRun, snap attendance.RosterSnapshot, loadErr error) {
	run.Finish(snap.Generation, string(snap.State), snap.Failures, loadErr)
	if a == nil || a.runs == nil {
		return
	}
	if err := a.runs.Finish(ctx, run); err != nil {
		a.logger.Warn("failed to record load run finish", "run_id", run.ID, logger.Err(err))
	}
}
