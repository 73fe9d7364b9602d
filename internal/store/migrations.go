package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Balance runs - one row per balance invocation
		`CREATE TABLE IF NOT EXISTS balance_runs (
			id TEXT PRIMARY KEY,
			dataset_root TEXT NOT NULL,
			target INTEGER NOT NULL,
			planned INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'partial', 'dry_run')),
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,

		// Balance removals - audit trail of every deleted sample
		`CREATE TABLE IF NOT EXISTS balance_removals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES balance_runs(id) ON DELETE CASCADE,
			label TEXT NOT NULL,
			sample TEXT NOT NULL,
			removed_at DATETIME NOT NULL
		)`,

		// Label templates - averaged, normalized hand landmarks per label
		`CREATE TABLE IF NOT EXISTS label_templates (
			label TEXT PRIMARY KEY,
			samples INTEGER NOT NULL DEFAULT 0,
			tolerance REAL NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS template_landmarks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL REFERENCES label_templates(label) ON DELETE CASCADE,
			landmark_index INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL
		)`,

		// Inference sessions - one row per live inference run
		`CREATE TABLE IF NOT EXISTS inference_sessions (
			id TEXT PRIMARY KEY,
			camera_id INTEGER NOT NULL,
			classifier TEXT NOT NULL,
			smoothing_window INTEGER NOT NULL,
			frames INTEGER NOT NULL DEFAULT 0,
			no_hand_frames INTEGER NOT NULL DEFAULT 0,
			display_changes INTEGER NOT NULL DEFAULT 0,
			last_label TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_balance_removals_run_id ON balance_removals(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_template_landmarks_label ON template_landmarks(label)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
