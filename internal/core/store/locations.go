package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lumenhour/lumenhour/internal/core"
)

// ErrBuiltinLocation is returned when removing a bundled location.
var ErrBuiltinLocation = errors.New("built-in locations cannot be removed")

// SeedBuiltInLocations ensures built-in locations exist in the store.
func (s *Store) SeedBuiltInLocations(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	now := time.Now().UTC()
	for _, location := range core.BuiltInLocations {
		if err := s.UpsertLocation(ctx, location, true, now); err != nil {
			return err
		}
	}

	return nil
}

// UpsertLocation creates or updates a location record. The slug defaults to
// the slugified name.
func (s *Store) UpsertLocation(ctx context.Context, location core.Location, isBuiltin bool, updatedAt time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	location.Name = strings.TrimSpace(location.Name)
	location.Slug = strings.TrimSpace(location.Slug)
	if location.Slug == "" {
		location.Slug = core.Slugify(location.Name)
	}
	if err := core.ValidateLocation(location); err != nil {
		return err
	}
	if location.Slug == "" {
		return &core.ValidationError{Field: "slug", Message: "could not be derived from name"}
	}
	location.Source = ""

	if !isBuiltin {
		existing, err := s.GetLocation(ctx, location.Slug)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsBuiltin {
			return fmt.Errorf("%w: %s", ErrBuiltinLocation, location.Slug)
		}
	}

	payload, err := json.Marshal(location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}

	builtinValue := 0
	if isBuiltin {
		builtinValue = 1
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO locations (slug, name, config, is_builtin, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			config = excluded.config,
			is_builtin = excluded.is_builtin,
			updated_at = excluded.updated_at
	`, location.Slug, location.Name, string(payload), builtinValue, updatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store location: %w", err)
	}

	return nil
}

// GetLocation returns a location record by slug, or nil when it does not exist.
func (s *Store) GetLocation(ctx context.Context, slug string) (*core.LocationRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, errors.New("location slug is required")
	}

	var (
		configJSON string
		isBuiltin  int
		updatedAt  sql.NullInt64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT config, is_builtin, updated_at
		FROM locations
		WHERE slug = ?
	`, slug)

	if err := row.Scan(&configJSON, &isBuiltin, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch location: %w", err)
	}

	return decodeRecord(slug, configJSON, isBuiltin, updatedAt)
}

// ListLocations returns all locations ordered by slug.
func (s *Store) ListLocations(ctx context.Context) ([]core.LocationRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT slug, config, is_builtin, updated_at
		FROM locations
		ORDER BY slug
	`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var records []core.LocationRecord
	for rows.Next() {
		var (
			slug       string
			configJSON string
			isBuiltin  int
			updatedAt  sql.NullInt64
		)
		if err := rows.Scan(&slug, &configJSON, &isBuiltin, &updatedAt); err != nil {
			return nil, fmt.Errorf("list locations: %w", err)
		}

		record, err := decodeRecord(slug, configJSON, isBuiltin, updatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}

	return records, nil
}

// DeleteLocation removes a saved location. It reports whether a row was removed.
func (s *Store) DeleteLocation(ctx context.Context, slug string) (bool, error) {
	record, err := s.GetLocation(ctx, slug)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	if record.IsBuiltin {
		return false, fmt.Errorf("%w: %s", ErrBuiltinLocation, record.Location.Slug)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	result, err := s.DB.ExecContext(ctx, `DELETE FROM locations WHERE slug = ? AND is_builtin = 0`, record.Location.Slug)
	if err != nil {
		return false, fmt.Errorf("delete location: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete location: %w", err)
	}
	return affected > 0, nil
}

// ImportLocations decodes YAML and upserts every location as user-saved.
// Nothing is written unless every entry validates.
func (s *Store) ImportLocations(ctx context.Context, data []byte) (int, error) {
	locations, err := DecodeLocationsYAML(data)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for i, location := range locations {
		if err := s.UpsertLocation(ctx, location, false, now); err != nil {
			return i, fmt.Errorf("import %q: %w", location.Name, err)
		}
	}
	return len(locations), nil
}

type locationFile struct {
	Locations []core.Location `yaml:"locations"`
}

// DecodeLocationsYAML accepts either a top-level list or a `locations:` key
// and validates each entry.
func DecodeLocationsYAML(data []byte) ([]core.Location, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("location file is empty")
	}

	var locations []core.Location
	if data[0] == '-' {
		if err := yaml.Unmarshal(data, &locations); err != nil {
			return nil, fmt.Errorf("parse locations: %w", err)
		}
	} else {
		var file locationFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse locations: %w", err)
		}
		locations = file.Locations
	}
	if len(locations) == 0 {
		return nil, errors.New("location file has no entries")
	}

	for i := range locations {
		if locations[i].Slug == "" {
			locations[i].Slug = core.Slugify(locations[i].Name)
		}
		if err := core.ValidateLocation(locations[i]); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	return locations, nil
}

func decodeRecord(slug, configJSON string, isBuiltin int, updatedAt sql.NullInt64) (*core.LocationRecord, error) {
	var location core.Location
	if err := json.Unmarshal([]byte(configJSON), &location); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	if location.Slug == "" {
		location.Slug = slug
	}
	location.Source = core.LocationSourceSaved
	if isBuiltin == 1 {
		location.Source = core.LocationSourceBuiltin
	}

	record := &core.LocationRecord{
		Location:  location,
		IsBuiltin: isBuiltin == 1,
	}
	if updatedAt.Valid {
		record.UpdatedAt = time.Unix(updatedAt.Int64, 0).UTC()
	}
	return record, nil
}
