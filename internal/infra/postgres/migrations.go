package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NotifyChannel is the LISTEN/NOTIFY channel the change trigger publishes on.
const NotifyChannel = "jobboard_changes"

type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Migrations returns the schema history for the postings table
// schema.table, oldest first.
func Migrations(schema, table string) []Migration {
	tbl := pgx.Identifier{schema, table}.Sanitize()
	fn := pgx.Identifier{schema, table + "_notify_change"}.Sanitize()
	trg := pgx.Identifier{table + "_notify_change"}.Sanitize()
	idx := pgx.Identifier{table + "_created_at_idx"}.Sanitize()

	return []Migration{
		{
			Version:     1,
			Description: "Create postings table",
			Up: fmt.Sprintf(`
				CREATE SCHEMA IF NOT EXISTS %s;
				CREATE TABLE IF NOT EXISTS %s (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					role TEXT NOT NULL,
					company TEXT NOT NULL,
					company_url TEXT NOT NULL,
					description TEXT NOT NULL,
					heading TEXT NOT NULL,
					applylink TEXT NOT NULL,
					"desc" TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT now()
				);
				CREATE INDEX IF NOT EXISTS %s ON %s (created_at DESC);
			`, pgx.Identifier{schema}.Sanitize(), tbl, idx, tbl),
			Down: fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tbl),
		},
		{
			Version:     2,
			Description: "Publish row changes on " + NotifyChannel,
			Up: fmt.Sprintf(`
				CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$
				BEGIN
					PERFORM pg_notify('%s', json_build_object(
						'schema', TG_TABLE_SCHEMA,
						'table', TG_TABLE_NAME,
						'type', TG_OP,
						'id', CASE WHEN TG_OP = 'DELETE' THEN OLD.id ELSE NEW.id END
					)::text);
					RETURN NULL;
				END;
				$$ LANGUAGE plpgsql;
				DROP TRIGGER IF EXISTS %s ON %s;
				CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s
					FOR EACH ROW EXECUTE FUNCTION %s();
			`, fn, NotifyChannel, trg, tbl, trg, tbl, fn),
			Down: fmt.Sprintf(`
				DROP TRIGGER IF EXISTS %s ON %s;
				DROP FUNCTION IF EXISTS %s();
			`, trg, tbl, fn),
		},
	}
}

// Migrator applies Migrations and records them in schema_migrations.
type Migrator struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewMigrator(pool *pgxpool.Pool, logger *zap.Logger) *Migrator {
	return &Migrator{
		pool:   pool,
		logger: logger,
	}
}

func (m *Migrator) CreateMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`

	if _, err := m.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return nil
}

func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.pool.Query(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}

	return applied, rows.Err()
}

// ApplyMigration runs Up and records the version in one transaction.
func (m *Migrator) ApplyMigration(ctx context.Context, migration Migration) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		return nil
	})
}

func (m *Migrator) RollbackMigration(ctx context.Context, migration Migration) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.Down); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", migration.Version); err != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
		}
		return nil
	})
}

// Up applies every pending migration in order.
func (m *Migrator) Up(ctx context.Context, migrations []Migration) error {
	if err := m.CreateMigrationsTable(ctx); err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if _, ok := applied[migration.Version]; ok {
			m.logger.Debug("migration already applied",
				zap.Int("version", migration.Version),
				zap.String("description", migration.Description))
			continue
		}
		m.logger.Info("applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))
		if err := m.ApplyMigration(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}
