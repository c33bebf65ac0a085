package store

import (
	"context"
	"errors"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS locations (
			slug TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config TEXT NOT NULL,
			is_builtin INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_name ON locations(name)`,
	},
	{
		`CREATE INDEX IF NOT EXISTS idx_locations_builtin ON locations(is_builtin, slug)`,
	},
}

// SchemaVersion is the version Migrate brings a database to.
var SchemaVersion = len(migrations)

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for version := current; version < SchemaVersion; version++ {
		for _, stmt := range migrations[version] {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store migration %d failed: %w", version+1, err)
			}
		}
		// PRAGMA does not accept bound parameters.
		if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version+1)); err != nil {
			return fmt.Errorf("record schema version %d: %w", version+1, err)
		}
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
