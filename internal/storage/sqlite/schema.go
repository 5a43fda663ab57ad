package sqlite

import "github.com/steveyegge/analyst/internal/storage/migrations"

// schema is the run history schema, one migration per change
var schema = []migrations.Migration{
	{
		Version:     1,
		Description: "runs, iterations and run events",
		Up: `
			CREATE TABLE runs (
				id TEXT PRIMARY KEY,
				prompt TEXT NOT NULL,
				started_at TEXT NOT NULL,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				iterations INTEGER NOT NULL DEFAULT 0,
				stop_reason TEXT NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				verdict TEXT NOT NULL,
				topics TEXT NOT NULL DEFAULT '[]',
				recoveries INTEGER NOT NULL DEFAULT 0,
				steps INTEGER NOT NULL DEFAULT 0,
				artifact_steps INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE iterations (
				run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				idx INTEGER NOT NULL,
				iteration INTEGER NOT NULL,
				explanation TEXT NOT NULL DEFAULT '',
				code TEXT NOT NULL,
				output TEXT NOT NULL DEFAULT '',
				success INTEGER NOT NULL,
				artifact_count INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				PRIMARY KEY (run_id, idx)
			);

			CREATE TABLE run_events (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				seq INTEGER NOT NULL,
				type TEXT NOT NULL,
				iteration INTEGER NOT NULL DEFAULT 0,
				severity TEXT NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				data TEXT,
				timestamp TEXT NOT NULL
			);
		`,
		Down: `
			DROP TABLE run_events;
			DROP TABLE iterations;
			DROP TABLE runs;
		`,
	},
	{
		Version:     2,
		Description: "history lookup indexes",
		Up: `
			CREATE INDEX idx_runs_started_at ON runs(started_at);
			CREATE INDEX idx_run_events_run ON run_events(run_id, seq);
		`,
		Down: `
			DROP INDEX idx_run_events_run;
			DROP INDEX idx_runs_started_at;
		`,
	},
}
