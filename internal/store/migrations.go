package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - key/value pairs such as the API key and chosen speaker
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Translations table - one row per clip sent for translation
		`CREATE TABLE IF NOT EXISTS translations (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'manual',
			clip_mime TEXT NOT NULL DEFAULT '',
			clip_bytes INTEGER NOT NULL DEFAULT 0,
			clip_object TEXT NOT NULL DEFAULT '',
			speaker TEXT NOT NULL DEFAULT '',
			generation_time REAL NOT NULL DEFAULT 0,
			audio BLOB,
			audio_type TEXT NOT NULL DEFAULT '',
			speech_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_translations_created_at ON translations(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
