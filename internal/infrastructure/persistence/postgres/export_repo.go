package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/archive"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
)

// ExportRepository implements archive.ExportRepository.
type ExportRepository struct {
	conn *Connection
}

var _ archive.ExportRepository = (*ExportRepository)(nil)

// NewExportRepository creates a new ExportRepository.
func NewExportRepository(conn *Connection) *ExportRepository {
	return &ExportRepository{conn: conn}
}

// Save inserts the export. IDs are generated by the caller.
func (r *ExportRepository) Save(ctx context.Context, e *archive.Export) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO exports (id, kind, academic_year, student_id, generation, file_name, size_bytes, content, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
	`
	_, err := r.conn.Exec(ctx, query,
		e.ID,
		string(e.Kind),
		e.AcademicYear,
		e.StudentID,
		int64(e.Generation),
		e.FileName,
		e.SizeBytes,
		e.Content,
		e.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("export %s already archived: %w", e.ID, err)
		}
		return fmt.Errorf("failed to save export: %w", err)
	}
	return nil
}

// Get loads one export with its content.
func (r *ExportRepository) Get(ctx context.Context, id uuid.UUID) (*archive.Export, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, kind, academic_year, COALESCE(student_id, ''), generation, file_name, size_bytes, content, created_at
		FROM exports
		WHERE id = $1
	`
	var (
		e          archive.Export
		kind       string
		generation int64
	)
	err := r.conn.QueryRow(ctx, query, id).Scan(
		&e.ID, &kind, &e.AcademicYear, &e.StudentID, &generation,
		&e.FileName, &e.SizeBytes, &e.Content, &e.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrExportNotFound
		}
		return nil, fmt.Errorf("failed to get export: %w", err)
	}
	e.Kind = archive.Kind(kind)
	e.Generation = uint64(generation)
	return &e, nil
}

// List returns export metadata, newest first.
func (r *ExportRepository) List(ctx context.Context, filter archive.ListFilter) ([]*archive.Export, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query, args := buildExportListQuery(filter)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}

	exports, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*archive.Export, error) {
		var (
			e          archive.Export
			kind       string
			generation int64
		)
		if err := row.Scan(&e.ID, &kind, &e.AcademicYear, &e.StudentID, &generation, &e.FileName, &e.SizeBytes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = archive.Kind(kind)
		e.Generation = uint64(generation)
		return &e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan exports: %w", err)
	}
	return exports, nil
}

func buildExportListQuery(filter archive.ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.Kind != "" {
		add("kind = $%d", string(filter.Kind))
	}
	if filter.AcademicYear != "" {
		add("academic_year = $%d", filter.AcademicYear)
	}
	if filter.StudentID != "" {
		add("student_id = $%d", filter.StudentID)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var b strings.Builder
	b.WriteString(`SELECT id, kind, academic_year, COALESCE(student_id, ''), generation, file_name, size_bytes, created_at FROM exports`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC LIMIT ")
	b.WriteString(strconv.Itoa(limit))
	return b.String(), args
}
