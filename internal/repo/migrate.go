package repo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migration — одна версионированная миграция схемы.
type migration struct {
	// Version — порядковый номер. Применяются строго по возрастанию.
	Version int

	// Name — короткое имя для журнала.
	Name string

	// SQL — DDL миграции.
	SQL string
}

// migrations — упорядоченный список миграций схемы.
//
// Миграции применяются до старта ядра; ядро никогда не стартует на
// частично применённой схеме (каждая миграция выполняется в транзакции
// вместе с записью в schema_migrations).
var migrations = []migration{
	{
		Version: 1,
		Name:    "init",
		SQL: `
CREATE TABLE id_counters (
	kind    TEXT PRIMARY KEY,
	counter BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE workflows (
	_intid      BIGINT PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	definition  JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE workflow_versions (
	_intid          BIGINT PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	workflow_id     TEXT NOT NULL REFERENCES workflows(id),
	version         INTEGER NOT NULL,
	name            TEXT NOT NULL,
	description     TEXT,
	definition      JSONB NOT NULL,
	definition_hash TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (workflow_id, version)
);
CREATE INDEX ix_workflow_versions_workflow_id ON workflow_versions (workflow_id);

CREATE TABLE datasets (
	_intid      BIGINT PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	file_path   TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE output_files (
	_intid     BIGINT PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	file_name  TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE runs (
	_intid              BIGINT PRIMARY KEY,
	id                  TEXT NOT NULL UNIQUE,
	workflow_id         TEXT NOT NULL REFERENCES workflows(id),
	workflow_version_id TEXT NOT NULL REFERENCES workflow_versions(id),
	parent_run_id       TEXT REFERENCES runs(id),
	status              TEXT NOT NULL,
	run_type            TEXT NOT NULL,
	initial_inputs      JSONB,
	input_dataset_id    TEXT REFERENCES datasets(id),
	start_time          TIMESTAMPTZ,
	end_time            TIMESTAMPTZ,
	outputs             JSONB,
	output_file_id      TEXT REFERENCES output_files(id),
	error               TEXT
);
CREATE INDEX ix_runs_workflow_id ON runs (workflow_id);
CREATE INDEX ix_runs_workflow_version_id ON runs (workflow_version_id);
CREATE INDEX ix_runs_parent_run_id ON runs (parent_run_id);
CREATE INDEX ix_runs_input_dataset_id ON runs (input_dataset_id);
CREATE INDEX ix_runs_status ON runs (status);

CREATE TABLE tasks (
	_intid             BIGINT PRIMARY KEY,
	id                 TEXT NOT NULL UNIQUE,
	run_id             TEXT NOT NULL REFERENCES runs(id),
	node_id            TEXT NOT NULL,
	parent_task_id     TEXT REFERENCES tasks(id),
	status             TEXT NOT NULL,
	inputs             JSONB,
	outputs            JSONB,
	start_time         TIMESTAMPTZ,
	end_time           TIMESTAMPTZ,
	subworkflow        JSONB,
	subworkflow_output JSONB,
	error              TEXT
);
CREATE INDEX ix_tasks_run_id ON tasks (run_id);
CREATE INDEX ix_tasks_parent_task_id ON tasks (parent_task_id);

CREATE TABLE eval_runs (
	_intid          BIGINT PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	eval_name       TEXT NOT NULL,
	workflow_id     TEXT NOT NULL REFERENCES workflows(id),
	status          TEXT NOT NULL,
	output_variable TEXT NOT NULL,
	num_samples     INTEGER NOT NULL,
	start_time      TIMESTAMPTZ,
	end_time        TIMESTAMPTZ,
	results         JSONB
);
CREATE INDEX ix_eval_runs_workflow_id ON eval_runs (workflow_id);
`,
	},
}

// ApplyMigrations применяет все недостающие миграции по порядку.
//
// Повторный вызов — no-op: применённые версии учитываются в
// schema_migrations. Каждая миграция и её запись в журнале выполняются
// в одной транзакции.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	err = pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.Version, m.Name,
		); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		logger.Info("applied migration", "version", m.Version, "name", m.Name)
	}

	return nil
}
