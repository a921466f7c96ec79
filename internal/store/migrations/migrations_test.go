package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshStore(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	err := MigrateUp(db)
	if err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Verify tables were created
	tables := []string{
		"branches", "working_folders", "working_files",
		"commits", "file_snapshots", "remote_sync_state",
		"pending_changes", "schema_migrations",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckStoreMigrationStatus_FreshStore(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Fresh store should need migration
	err := CheckStoreMigrationStatus(db)
	if err == nil {
		t.Error("CheckStoreMigrationStatus() expected error for fresh store, got nil")
	}

	// Error should mention needing migration
	if err.Error() != "store has no schema version (needs migration)" {
		t.Errorf("CheckStoreMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckStoreMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Status should be OK now
	err := CheckStoreMigrationStatus(db)
	if err != nil {
		t.Errorf("CheckStoreMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Run migration twice
	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	// Status should still be OK
	if err := CheckStoreMigrationStatus(db); err != nil {
		t.Errorf("CheckStoreMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Try to insert a file on a non-existent branch (should fail due to FK constraint)
	_, err := db.Exec(`
		INSERT INTO working_files (id, branch_id, project_id, name, file_type, content, content_hash, is_deleted, created_at, updated_at)
		VALUES ('file-1', 'ghost', 'proj-1', 'order', 'bpmn', '', 'hash', 0, datetime('now'), datetime('now'))
	`)

	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_OneMainBranchPerProject(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Insert the main branch
	_, err := db.Exec("INSERT INTO branches (id, project_id, owner_user_id, created_at) VALUES ('b-1', 'proj-1', NULL, datetime('now'))")
	if err != nil {
		t.Fatalf("Failed to insert main branch: %v", err)
	}

	// A second main for the same project violates the partial unique index
	_, err = db.Exec("INSERT INTO branches (id, project_id, owner_user_id, created_at) VALUES ('b-2', 'proj-1', NULL, datetime('now'))")
	if err == nil {
		t.Error("Expected unique constraint violation for second main branch, but insert succeeded")
	}

	// Draft branches are allowed, one per user
	_, err = db.Exec("INSERT INTO branches (id, project_id, owner_user_id, created_at) VALUES ('b-3', 'proj-1', 'user-1', datetime('now'))")
	if err != nil {
		t.Fatalf("Failed to insert draft branch: %v", err)
	}
	_, err = db.Exec("INSERT INTO branches (id, project_id, owner_user_id, created_at) VALUES ('b-4', 'proj-1', 'user-1', datetime('now'))")
	if err == nil {
		t.Error("Expected unique constraint violation for second draft of the same user, but insert succeeded")
	}
	_, err = db.Exec("INSERT INTO branches (id, project_id, owner_user_id, created_at) VALUES ('b-5', 'proj-1', 'user-2', datetime('now'))")
	if err != nil {
		t.Errorf("Failed to insert draft branch for another user: %v", err)
	}
}

func TestSchema_NaturalKeyFreesOnTombstone(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec("INSERT INTO branches (id, project_id, owner_user_id, created_at) VALUES ('b-1', 'proj-1', NULL, datetime('now'))"); err != nil {
		t.Fatalf("Failed to insert branch: %v", err)
	}

	insertFile := func(id string) error {
		_, err := db.Exec(`
			INSERT INTO working_files (id, branch_id, project_id, folder_id, name, file_type, content, content_hash, is_deleted, created_at, updated_at)
			VALUES (?, 'b-1', 'proj-1', NULL, 'order', 'bpmn', '', 'hash', 0, datetime('now'), datetime('now'))
		`, id)
		return err
	}

	if err := insertFile("file-1"); err != nil {
		t.Fatalf("Failed to insert first file: %v", err)
	}

	// A second live file with the same identity violates the natural key
	if err := insertFile("file-2"); err == nil {
		t.Error("Expected unique constraint violation for duplicate identity, but insert succeeded")
	}

	// Tombstoning the first file frees the identity for reuse
	if _, err := db.Exec("UPDATE working_files SET is_deleted = 1 WHERE id = 'file-1'"); err != nil {
		t.Fatalf("Failed to tombstone file: %v", err)
	}
	if err := insertFile("file-2"); err != nil {
		t.Errorf("Failed to reuse identity after tombstone: %v", err)
	}
}

func TestSchema_CommitSourceChecked(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec("INSERT INTO branches (id, project_id, owner_user_id, created_at) VALUES ('b-1', 'proj-1', NULL, datetime('now'))"); err != nil {
		t.Fatalf("Failed to insert branch: %v", err)
	}

	// Only 'manual' and 'system' pass the CHECK constraint
	_, err := db.Exec(`
		INSERT INTO commits (id, branch_id, author_user_id, message, source, created_at)
		VALUES ('c-1', 'b-1', 'user-1', 'bad source', 'robot', datetime('now'))
	`)
	if err == nil {
		t.Error("Expected check constraint violation for unknown commit source, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	return db
}
