package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/lumenhour/lumenhour/internal/config"
)

const (
	driverLibsql           = "libsql"
	memoryPath             = ":memory:"
	localBusyTimeoutMillis = 5000
)

// Store holds saved and built-in locations in libsql: an embedded SQLite
// file by default, or a remote Turso database when store.url is set.
type Store struct {
	DB     *sql.DB
	driver string
	remote bool
}

// dataSource is a resolved libsql connection target. file is the local
// database path, empty for remote and in-memory databases.
type dataSource struct {
	dsn    string
	file   string
	remote bool
}

// Open connects to the configured store. Local files get WAL journaling
// and a single connection.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}
	if driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	src, err := resolveDataSource(cfg)
	if err != nil {
		return nil, err
	}
	if src.file != "" {
		if err := ensureParentDir(src.file); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driverLibsql, src.dsn)
	if err != nil {
		return nil, fmt.Errorf("open location store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping location store: %w", err)
	}
	if src.file != "" {
		if err := tuneLocalFile(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{DB: db, driver: driver, remote: src.remote}, nil
}

func tuneLocalFile(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable wal journal: %w", err)
	}
	var timeout int
	if err := db.QueryRowContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", localBusyTimeoutMillis)).Scan(&timeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// Remote reports whether the store is a remote libsql server.
func (s *Store) Remote() bool {
	return s != nil && s.remote
}

// resolveDataSource turns store config into a libsql DSN. store.url wins
// over store.path; a bare path becomes a file: DSN.
func resolveDataSource(cfg config.StoreConfig) (dataSource, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, cfg.AuthToken)
		return dataSource{dsn: dsn, remote: true}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return dataSource{}, errors.New("store path or url is required")
	case path == memoryPath:
		return dataSource{dsn: memoryPath}, nil
	case strings.HasPrefix(path, "libsql:"):
		return dataSource{dsn: path, remote: true}, nil
	case strings.HasPrefix(path, "file:"):
		u, err := url.Parse(path)
		if err != nil {
			return dataSource{}, fmt.Errorf("invalid store path: %w", err)
		}
		file := u.Path
		if file == "" {
			file = u.Opaque
		}
		return dataSource{dsn: path, file: strings.TrimPrefix(file, "//")}, nil
	default:
		file := filepath.Clean(path)
		return dataSource{dsn: "file:" + file, file: file}, nil
	}
}

// withAuthToken adds authToken to a remote DSN unless it already has one.
func withAuthToken(dsn, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := u.Query()
	if q.Get("authToken") != "" {
		return dsn, nil
	}
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func ensureParentDir(file string) error {
	dir := filepath.Dir(filepath.Clean(file))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
