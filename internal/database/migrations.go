package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name: "create transcripts",
		sql: `CREATE TABLE IF NOT EXISTS transcripts (
			id              uuid PRIMARY KEY,
			source          text NOT NULL,
			language        text NOT NULL DEFAULT '',
			model           text NOT NULL DEFAULT '',
			speaker_count   int NOT NULL DEFAULT 0,
			utterance_count int NOT NULL DEFAULT 0,
			warning_count   int NOT NULL DEFAULT 0,
			duration_ms     int NOT NULL DEFAULT 0,
			utterances      jsonb NOT NULL DEFAULT '[]',
			created_at      timestamptz NOT NULL DEFAULT now()
		)`,
		check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'transcripts')`,
	},
	{
		name:  "add transcripts.speakers",
		sql:   `ALTER TABLE transcripts ADD COLUMN IF NOT EXISTS speakers text[] NOT NULL DEFAULT '{}'`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'transcripts' AND column_name = 'speakers')`,
	},
	{
		name:  "add transcripts.outputs",
		sql:   `ALTER TABLE transcripts ADD COLUMN IF NOT EXISTS outputs jsonb NOT NULL DEFAULT '{}'`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'transcripts' AND column_name = 'outputs')`,
	},
	{
		name:  "add transcripts created_at index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts (created_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_transcripts_created_at')`,
	},
	{
		name:  "add transcripts speakers index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_transcripts_speakers ON transcripts USING gin (speakers)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_transcripts_speakers')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. A failed apply is fatal for the caller
// since the transcript queries depend on every column existing.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		db.log.Debug().Msg("schema up to date")
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart speaker-align.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
