package store

import (
	"fmt"
	"os"
	"path/filepath"

	"vc-go/internal/config"
	"vc-go/internal/store/migrations"
	"vc-go/internal/vc"
)

// DBPath returns the store's SQLite file path under a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "vc.db")
}

// NewStoreFromConfig creates a Store implementation based on the database config type.
// Memory stores are migrated to the latest schema on open; file-backed
// stores are opened as-is and the caller checks CheckMigrations.
func NewStoreFromConfig(cfg config.DatabaseConfig) (vc.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteStore(DBPath(cfg.DataDir))
	case "memory":
		s, err := NewSQLiteStore(":memory:")
		if err != nil {
			return nil, err
		}
		if err := migrations.MigrateUp(s.db); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating memory store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
