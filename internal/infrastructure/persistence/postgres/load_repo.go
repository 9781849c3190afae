package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/archive"
)

// LoadRunRepository implements archive.LoadRunRepository.
type LoadRunRepository struct {
	conn *Connection
}

var _ archive.LoadRunRepository = (*LoadRunRepository)(nil)

// NewLoadRunRepository creates a new LoadRunRepository.
func NewLoadRunRepository(conn *Connection) *LoadRunRepository {
	return &LoadRunRepository{conn: conn}
}

// Start records a run that has just begun.
func (r *LoadRunRepository) Start(ctx context.Context, run *archive.LoadRun) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO load_runs (id, generation, academic_year, trigger, class_year, class_group, students, state, started_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, ''), $7, $8, $9)
	`
	_, err := r.conn.Exec(ctx, query,
		run.ID, int64(run.Generation), run.AcademicYear, string(run.Trigger),
		run.ClassYear, run.ClassGroup, run.Students, run.State, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record load start: %w", err)
	}
	return nil
}

// Finish stores the outcome of a run.
func (r *LoadRunRepository) Finish(ctx context.Context, run *archive.LoadRun) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE load_runs
		SET generation = $2, failures = $3, state = $4, error = NULLIF($5, ''), finished_at = $6
		WHERE id = $1
	`
	tag, err := r.conn.Exec(ctx, query, run.ID, int64(run.Generation), run.Failures, run.State, run.Error, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record load finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("load run %s: %w", run.ID, pgx.ErrNoRows)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (r *LoadRunRepository) Recent(ctx context.Context, limit int) ([]*archive.LoadRun, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	if limit <= 0 || limit > 200 {
		limit = 20
	}

	query := `
		SELECT id, generation, academic_year, trigger, COALESCE(class_year, 0), COALESCE(class_group, ''),
		       students, failures, state, COALESCE(error, ''), started_at, finished_at
		FROM load_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query load runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*archive.LoadRun, error) {
		var (
			run        archive.LoadRun
			trigger    string
			generation int64
			classYear  int16
		)
		err := row.Scan(&run.ID, &generation, &run.AcademicYear, &trigger, &classYear, &run.ClassGroup,
			&run.Students, &run.Failures, &run.State, &run.Error, &run.StartedAt, &run.FinishedAt)
		if err != nil {
			return nil, err
		}
		run.Trigger = archive.Trigger(trigger)
		run.Generation = uint64(generation)
		run.ClassYear = int(classYear)
		return &run, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan load runs: %w", err)
	}
	return runs, nil
}
