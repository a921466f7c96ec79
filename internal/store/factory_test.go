package store

import (
	"path/filepath"
	"testing"

	"vc-go/internal/config"
	"vc-go/internal/store/migrations"
)

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("memory store is migrated on open", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewStoreFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v, want nil", err)
		}
	})

	t.Run("sqlite store", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: t.TempDir(),
		}
		got, err := NewStoreFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		defer got.Close()

		// A fresh file has no schema yet; the check reports that
		// instead of silently serving an empty store.
		err = got.CheckMigrations()
		if err == nil {
			t.Error("CheckMigrations() on fresh file expected error, got nil")
		}
	})

	t.Run("sqlite store creates data dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "db")
		cfg := config.DatabaseConfig{Type: "sqlite", DataDir: dir}
		got, err := NewStoreFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		got.Close()
	})

	t.Run("sqlite store without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewStoreFromConfig(cfg)
		if err == nil {
			got.Close()
			t.Fatal("NewStoreFromConfig() expected error for missing data_dir, got nil")
		}
	})

	t.Run("unknown store type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "unknown"}
		got, err := NewStoreFromConfig(cfg)
		if err == nil {
			got.Close()
			t.Fatal("NewStoreFromConfig() expected error for unknown type, got nil")
		}
	})
}

func TestCheckMigrations_AfterMigrateUp(t *testing.T) {
	db, err := OpenConnection(filepath.Join(t.TempDir(), "vc.db"))
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	defer db.Close()

	if err := migrations.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	s := NewSQLiteStoreFromDB(db)
	if err := s.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() error = %v, want nil", err)
	}
}
