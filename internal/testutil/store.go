package testutil

import (
	"testing"

	"vc-go/internal/store"
	"vc-go/internal/store/migrations"
	"vc-go/internal/vc"
)

// NewTestStore creates an in-memory SQLite store migrated to the latest
// schema. The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) vc.Store {
	t.Helper()

	db, err := store.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("failed to migrate store: %v", err)
	}

	st := store.NewSQLiteStoreFromDB(db)
	t.Cleanup(func() {
		st.Close()
	})

	return st
}
