package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

// The schema is append-only: a document version is one metasheets row plus
// its metadata and docsets rows, all sharing (doc_id, version).
var steps = []migrationStep{
	{
		Name: "create_table_metasheets",
		SQL: `CREATE TABLE IF NOT EXISTS metasheets (
  doc_id       TEXT    NOT NULL,
  version      BIGINT  NOT NULL,
  written_at   BIGINT  NOT NULL,
  display_name TEXT    NOT NULL,
  target_class TEXT    NOT NULL,
  site_class   TEXT    NOT NULL,
  system_class TEXT    NOT NULL DEFAULT '',
  status       TEXT    NOT NULL,
  editor_id    TEXT    NOT NULL DEFAULT '',
  comment      TEXT    NOT NULL DEFAULT '',
  changed      TEXT,
  PRIMARY KEY (doc_id, version)
);`,
	},
	{
		Name: "create_table_metadata",
		SQL: `CREATE TABLE IF NOT EXISTS metadata (
  doc_id      TEXT   NOT NULL,
  version     BIGINT NOT NULL,
  section     TEXT   NOT NULL,
  field_key   TEXT   NOT NULL,
  field_value TEXT   NOT NULL,
  PRIMARY KEY (doc_id, version, section, field_key)
);`,
	},
	{
		Name: "create_index_metadata_lookup",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_metadata_lookup ON metadata (section, field_key, field_value);`,
	},
	{
		Name: "create_table_docsets",
		SQL: `CREATE TABLE IF NOT EXISTS docsets (
  doc_id   TEXT    NOT NULL,
  version  BIGINT  NOT NULL,
  ordinal  INTEGER NOT NULL,
  group_id TEXT    NOT NULL,
  PRIMARY KEY (doc_id, version, group_id)
);`,
	},
	{
		Name: "create_index_docsets_group",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_docsets_group ON docsets (group_id);`,
	},
	{
		Name: "create_index_metasheets_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_metasheets_status ON metasheets (status);`,
	},
}

// EnsureMigrated applies every schema step. Steps are idempotent, so running
// against an already migrated database is a no-op.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	log = log.With(zap.String("component", "database"))
	start := time.Now()
	log.Info("db_migration_start", zap.Int("steps", len(steps)))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Debug("db_migration_step",
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}
