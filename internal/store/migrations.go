package store

func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per prompt, response and speech cycle.
		`CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL CHECK(source IN ('gesture', 'speech', 'manual')),
			gesture TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL,
			response TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			spoken INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_exchanges_started_at ON exchanges(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
