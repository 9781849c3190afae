package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: EXPORT ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Generated spreadsheets and progress reports
CREATE TABLE IF NOT EXISTS exports (
    id UUID PRIMARY KEY,
    kind VARCHAR(30) NOT NULL,
    academic_year VARCHAR(9) NOT NULL,
    student_id VARCHAR(64),
    generation BIGINT NOT NULL DEFAULT 0,
    file_name VARCHAR(255) NOT NULL,
    size_bytes INTEGER NOT NULL,
    content BYTEA NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_kind CHECK (kind IN ('spreadsheet', 'progress_report')),
    CONSTRAINT valid_size CHECK (size_bytes >= 0)
);

CREATE INDEX IF NOT EXISTS idx_exports_created_at ON exports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_exports_year_kind ON exports(academic_year, kind, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_exports_student ON exports(student_id, created_at DESC) WHERE student_id IS NOT NULL;
`

const migration001Down = `
DROP TABLE IF EXISTS exports;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ROSTER LOAD RUNS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS load_runs (
    id UUID PRIMARY KEY,
    generation BIGINT NOT NULL DEFAULT 0,
    academic_year VARCHAR(9) NOT NULL,
    trigger VARCHAR(20) NOT NULL,
    class_year SMALLINT,
    class_group VARCHAR(10),
    students INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0,
    state VARCHAR(20) NOT NULL DEFAULT 'running',
    error TEXT,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    finished_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_trigger CHECK (trigger IN ('api', 'scheduler')),
    CONSTRAINT valid_state CHECK (state IN ('running', 'empty', 'partially_loaded', 'fully_loaded', 'failed', 'superseded'))
);

CREATE INDEX IF NOT EXISTS idx_load_runs_started_at ON load_runs(started_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS load_runs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// ErrMigrationFailed wraps every migration error.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one versioned schema change of the archive.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// GetMigrations returns the archive migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_exports", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_load_runs", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}

const migrationsTable = "schema_migrations"

// Migrator applies and reverts the archive schema. Each step runs in its own
// transaction together with its bookkeeping row.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a Migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// Up applies every pending migration in version order.
func (m *Migrator) Up(ctx context.Context) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	for _, mig := range status {
		if mig.IsApplied {
			continue
		}
		err := m.step(ctx, mig.Version, mig.UpSQL,
			"INSERT INTO "+migrationsTable+" (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
		if err != nil {
			return err
		}
	}
	return nil
}

// Down reverts the latest applied migration and returns it. It returns nil
// when the archive has no applied migrations.
func (m *Migrator) Down(ctx context.Context) (*Migration, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(status) - 1; i >= 0; i-- {
		mig := status[i]
		if !mig.IsApplied {
			continue
		}
		err := m.step(ctx, mig.Version, mig.DownSQL,
			"DELETE FROM "+migrationsTable+" WHERE version = $1", mig.Version)
		if err != nil {
			return nil, err
		}
		return &mig, nil
	}
	return nil, nil
}

func (m *Migrator) step(ctx context.Context, version int, script, bookkeeping string, args ...any) error {
	if script == "" {
		return fmt.Errorf("%w: version %d has no SQL for this direction", ErrMigrationFailed, version)
	}
	err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, script); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, bookkeeping, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, version, err)
	}
	return nil
}

// Status returns every known migration with its applied time, creating the
// bookkeeping table on first use.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	_, err := m.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrMigrationFailed, migrationsTable, err)
	}

	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM "+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMigrationFailed, migrationsTable, err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}
