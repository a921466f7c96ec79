// Package store implements vc.Store on SQLite. Multi-step mutations
// run inside single transactions so partial application is impossible;
// find methods return (nil, nil) for missing rows.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"vc-go/internal/model"
	"vc-go/internal/store/migrations"
	"vc-go/internal/vc"
)

// SQLiteStore implements the vc.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store connection.
// path can be a file path or ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly
// configured (foreign keys on).
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with the
// PRAGMAs the store relies on. Exported for tools and tests that need
// a properly configured connection.
// path can be a file path or ":memory:" for an in-memory store.
func OpenConnection(path string) (*sql.DB, error) {
	// DSN parameters apply the PRAGMAs on every pooled connection,
	// not just the first one.
	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if path == ":memory:" {
		// Each new pool connection would otherwise see a fresh empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// CheckMigrations verifies the store schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckStoreMigrationStatus(s.db)
}

// Close closes the store connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for migration tooling.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation reports whether err is a SQLite unique or primary
// key constraint failure.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// markPendingTx records a dirty marker for a branch entity. Markers
// are idempotent per (branch, kind, entity): re-marking keeps the
// original marking time.
func markPendingTx(tx *sql.Tx, branchID string, kind model.PendingKind, entityID string, now time.Time) error {
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO pending_changes (branch_id, kind, entity_id, marked_at)
		 VALUES (?, ?, ?, ?)`,
		branchID, kind, entityID, now,
	)
	if err != nil {
		return fmt.Errorf("marking pending change: %w", err)
	}
	return nil
}

// placeholders returns a comma-separated list of n SQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

// toAnySlice converts string ids into query arguments.
func toAnySlice(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// folderPaths resolves each folder id to its "/"-joined path from the
// top level. Folders whose parent is missing from the set (tombstoned
// or inconsistent) are treated as top-level; parent cycles are broken
// the same way.
func folderPaths(folders []*model.WorkingFolder) map[string]string {
	byID := make(map[string]*model.WorkingFolder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	paths := make(map[string]string, len(folders))
	walking := make(map[string]bool, len(folders))

	var resolve func(id string) string
	resolve = func(id string) string {
		if p, ok := paths[id]; ok {
			return p
		}
		f := byID[id]
		var path string
		switch {
		case f.ParentID == nil, walking[id]:
			path = f.Name
		default:
			walking[id] = true
			if parent, ok := byID[*f.ParentID]; ok {
				path = resolve(parent.ID) + "/" + f.Name
			} else {
				path = f.Name
			}
			delete(walking, id)
		}
		paths[id] = path
		return path
	}

	for _, f := range folders {
		resolve(f.ID)
	}
	return paths
}

// ensureFolderPathTx resolves a "/"-separated folder path on a branch,
// creating missing segments top-down. idx maps existing paths to
// folder ids and is updated as folders are created. Returns nil for
// the top level.
func ensureFolderPathTx(tx *sql.Tx, branchID, projectID, path string, now time.Time, idx map[string]string) (*string, error) {
	if path == "" {
		return nil, nil
	}
	if id, ok := idx[path]; ok {
		return &id, nil
	}

	var parentID *string
	var prefix string
	for _, name := range splitPath(path) {
		if prefix == "" {
			prefix = name
		} else {
			prefix = prefix + "/" + name
		}
		if id, ok := idx[prefix]; ok {
			parentID = &id
			continue
		}

		id := uuid.New().String()
		_, err := tx.Exec(
			`INSERT INTO working_folders (id, branch_id, project_id, parent_id, name, is_deleted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			id, branchID, projectID, parentID, name, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("creating folder %q: %w", prefix, err)
		}
		if err := markPendingTx(tx, branchID, model.PendingFolder, id, now); err != nil {
			return nil, err
		}
		idx[prefix] = id
		parentID = &id
	}
	return parentID, nil
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	return segments
}

// Compile-time interface check.
var _ vc.Store = (*SQLiteStore)(nil)
